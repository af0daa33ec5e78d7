package models

import (
	"strings"
	"time"
)

// Role identifies the privilege tier of an administrative user.
type Role string

const (
	RoleSuperadmin Role = "superadmin"
	RoleAdmin      Role = "admin"
)

// NormalizeRole maps legacy role spellings onto the current set. The
// second return value reports whether the input named a known role.
func NormalizeRole(raw string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "superadmin", "super":
		return RoleSuperadmin, true
	case "admin", "mod", "moderator":
		return RoleAdmin, true
	default:
		return "", false
	}
}

// User is an administrative account. PasswordHash holds an encoded
// PBKDF2 digest and is never exposed through the API.
type User struct {
	ID           string    `json:"id" bson:"_id"`
	Username     string    `json:"username" bson:"username"`
	PasswordHash string    `json:"passwordHash,omitempty" bson:"passwordHash"`
	Role         Role      `json:"role" bson:"role"`
	CreatedAt    time.Time `json:"createdAt" bson:"createdAt"`
}

// HasRole reports whether the user holds exactly the given role.
// Superadmin and admin are distinct tiers; routes that accept either
// should use IsAdmin instead.
func (u User) HasRole(role Role) bool {
	return u.Role == role
}

// IsAdmin reports whether the user may manage site content. Both tiers
// qualify.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin || u.Role == RoleSuperadmin
}

// PublicUser is the API projection of a User without credentials.
type PublicUser struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// Public strips credential material for API responses.
func (u User) Public() PublicUser {
	return PublicUser{ID: u.ID, Username: u.Username, Role: u.Role, CreatedAt: u.CreatedAt}
}

// Book is a published volume with a link to its document or store page.
// Timestamps are Unix milliseconds.
type Book struct {
	ID        string `json:"id" bson:"_id"`
	Title     string `json:"title" bson:"title"`
	URL       string `json:"url" bson:"url"`
	CreatedAt int64  `json:"createdAt" bson:"createdAt"`
	UpdatedAt int64  `json:"updatedAt,omitempty" bson:"updatedAt,omitempty"`
}

// Tip is a short advisory note, optionally illustrated.
type Tip struct {
	ID        string `json:"id" bson:"_id"`
	Text      string `json:"text" bson:"text"`
	ImageURL  string `json:"imageUrl,omitempty" bson:"imageUrl,omitempty"`
	CreatedAt int64  `json:"createdAt" bson:"createdAt"`
	UpdatedAt int64  `json:"updatedAt,omitempty" bson:"updatedAt,omitempty"`
}

// Post is a lecture or article entry, optionally carrying a video link.
type Post struct {
	ID          string `json:"id" bson:"_id"`
	Title       string `json:"title" bson:"title"`
	Description string `json:"description,omitempty" bson:"description,omitempty"`
	VideoURL    string `json:"videoUrl,omitempty" bson:"videoUrl,omitempty"`
	CreatedAt   int64  `json:"createdAt" bson:"createdAt"`
	UpdatedAt   int64  `json:"updatedAt,omitempty" bson:"updatedAt,omitempty"`
}

// Setting is a named boolean site flag, such as maintenance mode.
type Setting struct {
	Name    string `json:"name" bson:"_id"`
	Enabled bool   `json:"enabled" bson:"enabled"`
}

// MaintenanceFlag is the settings entry consulted by the status endpoint.
const MaintenanceFlag = "maintenance"
