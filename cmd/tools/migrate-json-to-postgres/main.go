// Command migrate-json-to-postgres copies content from the JSON datastore into Postgres.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"minbar/internal/models"
	"minbar/internal/storage"
)

func main() {
	dataDir := flag.String("data", "data", "directory holding the JSON datastore files")
	postgresDSN := flag.String("postgres-dsn", "", "Postgres connection string")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	dsn := strings.TrimSpace(*postgresDSN)
	if dsn == "" {
		dsn = strings.TrimSpace(os.Getenv("MINBAR_POSTGRES_DSN"))
	}
	if dsn == "" {
		dsn = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	}
	if dsn == "" {
		logger.Error("postgres DSN required", "hint", "set --postgres-dsn, MINBAR_POSTGRES_DSN, or DATABASE_URL")
		os.Exit(1)
	}

	source, err := storage.NewJSONRepository(*dataDir)
	if err != nil {
		logger.Error("failed to open JSON datastore", "error", err)
		os.Exit(1)
	}

	target, err := storage.NewPostgresRepository(dsn)
	if err != nil {
		logger.Error("failed to open postgres repository", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = target.Close(context.Background())
	}()

	counts, err := migrate(source, target)
	if err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}

	if err := verifyCounts(context.Background(), dsn, counts); err != nil {
		logger.Error("verification failed", "error", err)
		os.Exit(1)
	}

	logger.Info("migration completed", "books", counts.books, "tips", counts.tips, "posts", counts.posts)
	logger.Info("admin accounts are not migrated", "hint", "recreate them with bootstrap-admin")
}

type migrationCounts struct {
	books int
	tips  int
	posts int
}

// migrate copies content records through the repository API, so identifiers
// and timestamps are regenerated on the Postgres side.
func migrate(source, target storage.Repository) (migrationCounts, error) {
	var counts migrationCounts

	books, err := source.ListBooks()
	if err != nil {
		return counts, fmt.Errorf("list books: %w", err)
	}
	for _, book := range books {
		if _, err := target.CreateBook(storage.CreateBookParams{Title: book.Title, URL: book.URL}); err != nil {
			return counts, fmt.Errorf("copy book %q: %w", book.Title, err)
		}
		counts.books++
	}

	tips, err := source.ListTips()
	if err != nil {
		return counts, fmt.Errorf("list tips: %w", err)
	}
	for _, tip := range tips {
		if _, err := target.CreateTip(storage.CreateTipParams{Text: tip.Text, ImageURL: tip.ImageURL}); err != nil {
			return counts, fmt.Errorf("copy tip %s: %w", tip.ID, err)
		}
		counts.tips++
	}

	posts, err := source.ListPosts()
	if err != nil {
		return counts, fmt.Errorf("list posts: %w", err)
	}
	for _, post := range posts {
		if _, err := target.CreatePost(storage.CreatePostParams{Title: post.Title, Description: post.Description, VideoURL: post.VideoURL}); err != nil {
			return counts, fmt.Errorf("copy post %q: %w", post.Title, err)
		}
		counts.posts++
	}

	maintenance, err := source.SettingEnabled(models.MaintenanceFlag)
	if err != nil {
		return counts, fmt.Errorf("read maintenance flag: %w", err)
	}
	if err := target.SetSetting(models.MaintenanceFlag, maintenance); err != nil {
		return counts, fmt.Errorf("copy maintenance flag: %w", err)
	}

	return counts, nil
}

func verifyCounts(ctx context.Context, dsn string, counts migrationCounts) error {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return fmt.Errorf("parse verification config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open verification connection: %w", err)
	}
	defer pool.Close()

	checks := []struct {
		name     string
		query    string
		expected int
	}{
		{"books", "SELECT COUNT(*) FROM books", counts.books},
		{"tips", "SELECT COUNT(*) FROM tips", counts.tips},
		{"posts", "SELECT COUNT(*) FROM posts", counts.posts},
	}

	for _, check := range checks {
		var actual int
		if err := pool.QueryRow(ctx, check.query).Scan(&actual); err != nil {
			return fmt.Errorf("query %s: %w", check.name, err)
		}
		if actual < check.expected {
			return fmt.Errorf("mismatch for %s: expected at least %d, got %d", check.name, check.expected, actual)
		}
	}
	return nil
}
