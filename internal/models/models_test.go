package models

import "testing"

func TestNormalizeRole(t *testing.T) {
	cases := []struct {
		in   string
		want Role
		ok   bool
	}{
		{"superadmin", RoleSuperadmin, true},
		{"super", RoleSuperadmin, true},
		{"Admin", RoleAdmin, true},
		{"mod", RoleAdmin, true},
		{"moderator", RoleAdmin, true},
		{"  SUPER  ", RoleSuperadmin, true},
		{"viewer", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := NormalizeRole(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("NormalizeRole(%q) = %q, %v; want %q, %v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestRoleTiers(t *testing.T) {
	super := User{Role: RoleSuperadmin}
	admin := User{Role: RoleAdmin}
	if super.HasRole(RoleAdmin) {
		t.Fatal("superadmin is its own tier, not admin")
	}
	if !super.HasRole(RoleSuperadmin) {
		t.Fatal("superadmin should satisfy superadmin tier")
	}
	if admin.HasRole(RoleSuperadmin) {
		t.Fatal("admin should not satisfy superadmin tier")
	}
	if !super.IsAdmin() || !admin.IsAdmin() {
		t.Fatal("both tiers should count as content admins")
	}
	if (User{Role: "viewer"}).IsAdmin() {
		t.Fatal("unknown role should not count as admin")
	}
}

func TestPublicOmitsCredential(t *testing.T) {
	u := User{ID: "u1", Username: "imam", PasswordHash: "pbkdf2$sha256$1$x$y", Role: RoleAdmin}
	pub := u.Public()
	if pub.ID != "u1" || pub.Username != "imam" || pub.Role != RoleAdmin {
		t.Fatalf("unexpected projection: %+v", pub)
	}
}
