package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"minbar/internal/auth"
	"minbar/internal/models"
)

// PostgresRepository stores content, users and settings in Postgres so
// multiple replicas can share one datastore.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository opens a pooled connection using the DSN and ensures
// the schema exists.
func NewPostgresRepository(dsn string, opts ...Option) (*PostgresRepository, error) {
	cfg := PostgresConfig{DSN: dsn, MinConnections: -1}
	for _, opt := range opts {
		if opt != nil {
			opt.applyPostgres(&cfg)
		}
	}
	poolCfg, err := cfg.poolConfig()
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	repo := &PostgresRepository{pool: pool}
	if err := repo.ensureSchema(context.Background()); err != nil {
		pool.Close()
		return nil, err
	}
	return repo, nil
}

func (r *PostgresRepository) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS books (
    id         TEXT PRIMARY KEY,
    title      TEXT NOT NULL,
    url        TEXT NOT NULL,
    created_at BIGINT NOT NULL,
    updated_at BIGINT NOT NULL DEFAULT 0
)`,
		`CREATE TABLE IF NOT EXISTS tips (
    id         TEXT PRIMARY KEY,
    body       TEXT NOT NULL DEFAULT '',
    image_url  TEXT NOT NULL DEFAULT '',
    created_at BIGINT NOT NULL,
    updated_at BIGINT NOT NULL DEFAULT 0
)`,
		`CREATE TABLE IF NOT EXISTS posts (
    id          TEXT PRIMARY KEY,
    title       TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    video_url   TEXT NOT NULL DEFAULT '',
    created_at  BIGINT NOT NULL,
    updated_at  BIGINT NOT NULL DEFAULT 0
)`,
		`CREATE TABLE IF NOT EXISTS users (
    id            TEXT PRIMARY KEY,
    username      TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS settings (
    name    TEXT PRIMARY KEY,
    enabled BOOLEAN NOT NULL
)`,
	}
	for _, stmt := range statements {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Ping verifies the pool is reachable.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return r.pool.Ping(ctx)
}

// Close shuts the pool down, bounded by the context deadline.
func (r *PostgresRepository) Close(ctx context.Context) error {
	if r == nil || r.pool == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		r.pool.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Book operations

func (r *PostgresRepository) ListBooks() ([]models.Book, error) {
	rows, err := r.pool.Query(context.Background(), `
SELECT id, title, url, created_at, updated_at
FROM books
ORDER BY created_at, id
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	books := make([]models.Book, 0)
	for rows.Next() {
		var book models.Book
		if err := rows.Scan(&book.ID, &book.Title, &book.URL, &book.CreatedAt, &book.UpdatedAt); err != nil {
			return nil, err
		}
		books = append(books, book)
	}
	return books, rows.Err()
}

func (r *PostgresRepository) CreateBook(params CreateBookParams) (models.Book, error) {
	title := strings.TrimSpace(params.Title)
	url := strings.TrimSpace(params.URL)
	if title == "" || url == "" {
		return models.Book{}, ValidationError("title and url are required")
	}
	book := models.Book{ID: newID(), Title: title, URL: url, CreatedAt: nowMillis()}
	_, err := r.pool.Exec(context.Background(), `
INSERT INTO books (id, title, url, created_at, updated_at)
VALUES ($1, $2, $3, $4, 0)
`, book.ID, book.Title, book.URL, book.CreatedAt)
	if err != nil {
		return models.Book{}, err
	}
	return book, nil
}

func (r *PostgresRepository) UpdateBook(id string, update BookUpdate) (models.Book, error) {
	if update.Title != nil && strings.TrimSpace(*update.Title) == "" {
		return models.Book{}, ValidationError("title cannot be empty")
	}
	if update.URL != nil && strings.TrimSpace(*update.URL) == "" {
		return models.Book{}, ValidationError("url cannot be empty")
	}
	row := r.pool.QueryRow(context.Background(), `
UPDATE books
SET title      = COALESCE($2, title),
    url        = COALESCE($3, url),
    updated_at = GREATEST($4, created_at + 1)
WHERE id = $1
RETURNING id, title, url, created_at, updated_at
`, id, trimmedPtr(update.Title), trimmedPtr(update.URL), nowMillis())
	var book models.Book
	if err := row.Scan(&book.ID, &book.Title, &book.URL, &book.CreatedAt, &book.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Book{}, fmt.Errorf("book %s: %w", id, ErrNotFound)
		}
		return models.Book{}, err
	}
	return book, nil
}

func (r *PostgresRepository) DeleteBook(id string) (models.Book, error) {
	row := r.pool.QueryRow(context.Background(), `
DELETE FROM books
WHERE id = $1
RETURNING id, title, url, created_at, updated_at
`, id)
	var book models.Book
	if err := row.Scan(&book.ID, &book.Title, &book.URL, &book.CreatedAt, &book.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Book{}, fmt.Errorf("book %s: %w", id, ErrNotFound)
		}
		return models.Book{}, err
	}
	return book, nil
}

// Tip operations

func (r *PostgresRepository) ListTips() ([]models.Tip, error) {
	rows, err := r.pool.Query(context.Background(), `
SELECT id, body, image_url, created_at, updated_at
FROM tips
ORDER BY created_at, id
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	tips := make([]models.Tip, 0)
	for rows.Next() {
		var tip models.Tip
		if err := rows.Scan(&tip.ID, &tip.Text, &tip.ImageURL, &tip.CreatedAt, &tip.UpdatedAt); err != nil {
			return nil, err
		}
		tips = append(tips, tip)
	}
	return tips, rows.Err()
}

func (r *PostgresRepository) CreateTip(params CreateTipParams) (models.Tip, error) {
	tip := models.Tip{
		ID:        newID(),
		Text:      strings.TrimSpace(params.Text),
		ImageURL:  strings.TrimSpace(params.ImageURL),
		CreatedAt: nowMillis(),
	}
	_, err := r.pool.Exec(context.Background(), `
INSERT INTO tips (id, body, image_url, created_at, updated_at)
VALUES ($1, $2, $3, $4, 0)
`, tip.ID, tip.Text, tip.ImageURL, tip.CreatedAt)
	if err != nil {
		return models.Tip{}, err
	}
	return tip, nil
}

func (r *PostgresRepository) UpdateTip(id string, update TipUpdate) (models.Tip, error) {
	row := r.pool.QueryRow(context.Background(), `
UPDATE tips
SET body       = COALESCE($2, body),
    image_url  = COALESCE($3, image_url),
    updated_at = GREATEST($4, created_at + 1)
WHERE id = $1
RETURNING id, body, image_url, created_at, updated_at
`, id, trimmedPtr(update.Text), trimmedPtr(update.ImageURL), nowMillis())
	var tip models.Tip
	if err := row.Scan(&tip.ID, &tip.Text, &tip.ImageURL, &tip.CreatedAt, &tip.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Tip{}, fmt.Errorf("tip %s: %w", id, ErrNotFound)
		}
		return models.Tip{}, err
	}
	return tip, nil
}

func (r *PostgresRepository) DeleteTip(id string) (models.Tip, error) {
	row := r.pool.QueryRow(context.Background(), `
DELETE FROM tips
WHERE id = $1
RETURNING id, body, image_url, created_at, updated_at
`, id)
	var tip models.Tip
	if err := row.Scan(&tip.ID, &tip.Text, &tip.ImageURL, &tip.CreatedAt, &tip.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Tip{}, fmt.Errorf("tip %s: %w", id, ErrNotFound)
		}
		return models.Tip{}, err
	}
	return tip, nil
}

// Post operations

func (r *PostgresRepository) ListPosts() ([]models.Post, error) {
	rows, err := r.pool.Query(context.Background(), `
SELECT id, title, description, video_url, created_at, updated_at
FROM posts
ORDER BY created_at DESC, id DESC
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	posts := make([]models.Post, 0)
	for rows.Next() {
		var post models.Post
		if err := rows.Scan(&post.ID, &post.Title, &post.Description, &post.VideoURL, &post.CreatedAt, &post.UpdatedAt); err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

func (r *PostgresRepository) CreatePost(params CreatePostParams) (models.Post, error) {
	title := strings.TrimSpace(params.Title)
	if title == "" {
		return models.Post{}, ValidationError("title is required")
	}
	post := models.Post{
		ID:          newID(),
		Title:       title,
		Description: strings.TrimSpace(params.Description),
		VideoURL:    strings.TrimSpace(params.VideoURL),
		CreatedAt:   nowMillis(),
	}
	_, err := r.pool.Exec(context.Background(), `
INSERT INTO posts (id, title, description, video_url, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, 0)
`, post.ID, post.Title, post.Description, post.VideoURL, post.CreatedAt)
	if err != nil {
		return models.Post{}, err
	}
	return post, nil
}

func (r *PostgresRepository) UpdatePost(id string, update PostUpdate) (models.Post, error) {
	if update.Title != nil && strings.TrimSpace(*update.Title) == "" {
		return models.Post{}, ValidationError("title cannot be empty")
	}
	row := r.pool.QueryRow(context.Background(), `
UPDATE posts
SET title       = COALESCE($2, title),
    description = COALESCE($3, description),
    video_url   = COALESCE($4, video_url),
    updated_at  = GREATEST($5, created_at + 1)
WHERE id = $1
RETURNING id, title, description, video_url, created_at, updated_at
`, id, trimmedPtr(update.Title), trimmedPtr(update.Description), trimmedPtr(update.VideoURL), nowMillis())
	var post models.Post
	if err := row.Scan(&post.ID, &post.Title, &post.Description, &post.VideoURL, &post.CreatedAt, &post.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Post{}, fmt.Errorf("post %s: %w", id, ErrNotFound)
		}
		return models.Post{}, err
	}
	return post, nil
}

func (r *PostgresRepository) DeletePost(id string) (models.Post, error) {
	row := r.pool.QueryRow(context.Background(), `
DELETE FROM posts
WHERE id = $1
RETURNING id, title, description, video_url, created_at, updated_at
`, id)
	var post models.Post
	if err := row.Scan(&post.ID, &post.Title, &post.Description, &post.VideoURL, &post.CreatedAt, &post.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Post{}, fmt.Errorf("post %s: %w", id, ErrNotFound)
		}
		return models.Post{}, err
	}
	return post, nil
}

// User operations

func (r *PostgresRepository) CreateUser(params CreateUserParams) (models.User, error) {
	username := normalizeUsername(params.Username)
	if username == "" {
		return models.User{}, ValidationError("username is required")
	}
	if len(params.Password) < 8 {
		return models.User{}, ValidationError("password must be at least 8 characters")
	}
	role := models.RoleAdmin
	if strings.TrimSpace(params.Role) != "" {
		normalized, ok := models.NormalizeRole(params.Role)
		if !ok {
			return models.User{}, ValidationError("unknown role " + params.Role)
		}
		role = normalized
	}
	hashed, err := auth.HashPassword(params.Password)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}
	user := models.User{
		ID:           newID(),
		Username:     username,
		PasswordHash: hashed,
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}
	tag, err := r.pool.Exec(context.Background(), `
INSERT INTO users (id, username, password_hash, role, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (username) DO NOTHING
`, user.ID, user.Username, user.PasswordHash, string(user.Role), user.CreatedAt)
	if err != nil {
		return models.User{}, err
	}
	if tag.RowsAffected() == 0 {
		return models.User{}, ErrUsernameTaken
	}
	return user, nil
}

func (r *PostgresRepository) ListUsers() ([]models.User, error) {
	rows, err := r.pool.Query(context.Background(), `
SELECT id, username, password_hash, role, created_at
FROM users
ORDER BY created_at, id
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	users := make([]models.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (models.User, error) {
	var user models.User
	var role string
	if err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &role, &user.CreatedAt); err != nil {
		return models.User{}, err
	}
	user.Role = models.Role(role)
	return user, nil
}

func (r *PostgresRepository) GetUser(id string) (models.User, bool, error) {
	row := r.pool.QueryRow(context.Background(), `
SELECT id, username, password_hash, role, created_at
FROM users
WHERE id = $1
`, id)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, false, nil
		}
		return models.User{}, false, err
	}
	return user, true, nil
}

func (r *PostgresRepository) FindUserByUsername(username string) (models.User, bool, error) {
	row := r.pool.QueryRow(context.Background(), `
SELECT id, username, password_hash, role, created_at
FROM users
WHERE username = $1
`, normalizeUsername(username))
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, false, nil
		}
		return models.User{}, false, err
	}
	return user, true, nil
}

func (r *PostgresRepository) AuthenticateUser(username, password string) (models.User, error) {
	if password == "" {
		return models.User{}, auth.ErrInvalidCredentials
	}
	user, ok, err := r.FindUserByUsername(username)
	if err != nil {
		return models.User{}, err
	}
	if !ok {
		return models.User{}, auth.ErrInvalidCredentials
	}
	if err := auth.VerifyPassword(user.PasswordHash, password); err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (r *PostgresRepository) SetUserPassword(username, password string) (models.User, error) {
	if len(password) < 8 {
		return models.User{}, ValidationError("password must be at least 8 characters")
	}
	hashed, err := auth.HashPassword(password)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}
	row := r.pool.QueryRow(context.Background(), `
UPDATE users
SET password_hash = $2
WHERE username = $1
RETURNING id, username, password_hash, role, created_at
`, normalizeUsername(username), hashed)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, fmt.Errorf("user %s: %w", username, ErrNotFound)
		}
		return models.User{}, err
	}
	return user, nil
}

func (r *PostgresRepository) DeleteUser(id string) error {
	user, ok, err := r.GetUser(id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if user.Role == models.RoleSuperadmin {
		var remaining int
		row := r.pool.QueryRow(context.Background(), `
SELECT COUNT(*) FROM users WHERE role = $1 AND id <> $2
`, string(models.RoleSuperadmin), id)
		if err := row.Scan(&remaining); err != nil {
			return err
		}
		if remaining == 0 {
			return ValidationError("cannot delete the last superadmin")
		}
	}
	_, err = r.pool.Exec(context.Background(), `DELETE FROM users WHERE id = $1`, id)
	return err
}

func (r *PostgresRepository) CountUsers() (int, error) {
	var count int
	row := r.pool.QueryRow(context.Background(), `SELECT COUNT(*) FROM users`)
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// Setting operations

func (r *PostgresRepository) SettingEnabled(name string) (bool, error) {
	var enabled bool
	row := r.pool.QueryRow(context.Background(), `SELECT enabled FROM settings WHERE name = $1`, name)
	if err := row.Scan(&enabled); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return enabled, nil
}

func (r *PostgresRepository) SetSetting(name string, enabled bool) error {
	if strings.TrimSpace(name) == "" {
		return ValidationError("setting name is required")
	}
	_, err := r.pool.Exec(context.Background(), `
INSERT INTO settings (name, enabled)
VALUES ($1, $2)
ON CONFLICT (name) DO UPDATE SET enabled = EXCLUDED.enabled
`, name, enabled)
	return err
}

// trimmedPtr converts an optional field into a SQL parameter, trimming
// whitespace so the stored value matches the JSON backend.
func trimmedPtr(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	return &trimmed
}
