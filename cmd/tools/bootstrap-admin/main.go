// Command bootstrap-admin seeds or resets an administrator account in the datastore.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"minbar/internal/models"
	"minbar/internal/storage"
)

func main() {
	var (
		dataDir     string
		postgresDSN string
		mongoURI    string
		username    string
		password    string
		role        string
	)

	flag.StringVar(&dataDir, "data", "", "directory holding the JSON datastore files")
	flag.StringVar(&postgresDSN, "postgres-dsn", "", "Postgres connection string")
	flag.StringVar(&mongoURI, "mongo-uri", "", "MongoDB connection string")
	flag.StringVar(&username, "username", "", "username for the admin account")
	flag.StringVar(&password, "password", "", "password for the admin account")
	flag.StringVar(&role, "role", string(models.RoleSuperadmin), "role for the account (superadmin or admin)")
	flag.Parse()

	if countSelected(dataDir, postgresDSN, mongoURI) != 1 {
		fatalf("exactly one of --data, --postgres-dsn, or --mongo-uri must be provided")
	}
	username = strings.TrimSpace(username)
	if username == "" {
		fatalf("--username is required")
	}
	if len(password) < 8 {
		fatalf("--password must be at least 8 characters")
	}
	normalizedRole, ok := models.NormalizeRole(role)
	if !ok {
		fatalf("unknown role %q", role)
	}

	repo, err := openRepository(dataDir, postgresDSN, mongoURI)
	if err != nil {
		fatalf("open datastore: %v", err)
	}
	defer closeRepository(repo)

	user, created, err := seedAdmin(repo, username, password, normalizedRole)
	if err != nil {
		fatalf("seed admin: %v", err)
	}

	state := "password reset"
	if created {
		state = "created"
	}
	fmt.Printf("User %s (%s): %s.\n", user.Username, user.Role, state)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func countSelected(values ...string) int {
	n := 0
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			n++
		}
	}
	return n
}

func openRepository(dataDir, postgresDSN, mongoURI string) (storage.Repository, error) {
	switch {
	case strings.TrimSpace(postgresDSN) != "":
		return storage.NewPostgresRepository(postgresDSN)
	case strings.TrimSpace(mongoURI) != "":
		return storage.NewMongoRepository(mongoURI)
	default:
		return storage.NewJSONRepository(dataDir)
	}
}

func closeRepository(repo storage.Repository) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = repo.Close(ctx)
}

// seedAdmin creates the account, or resets the password when the username
// already exists. Roles of existing accounts are left untouched.
func seedAdmin(repo storage.Repository, username, password string, role models.Role) (models.User, bool, error) {
	_, exists, err := repo.FindUserByUsername(username)
	if err != nil {
		return models.User{}, false, err
	}
	if exists {
		user, err := repo.SetUserPassword(username, password)
		return user, false, err
	}
	user, err := repo.CreateUser(storage.CreateUserParams{
		Username: username,
		Password: password,
		Role:     string(role),
	})
	if err != nil {
		return models.User{}, false, err
	}
	return user, true, nil
}
