package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"minbar/internal/auth"
	"minbar/internal/models"
)

const (
	booksFile    = "books.json"
	tipsFile     = "tips.json"
	postsFile    = "posts.json"
	usersFile    = "users.json"
	settingsFile = "settings.json"
)

type dataset struct {
	Books    map[string]models.Book
	Tips     map[string]models.Tip
	Posts    map[string]models.Post
	Users    map[string]models.User
	Settings map[string]bool
}

func newDataset() dataset {
	return dataset{
		Books:    make(map[string]models.Book),
		Tips:     make(map[string]models.Tip),
		Posts:    make(map[string]models.Post),
		Users:    make(map[string]models.User),
		Settings: make(map[string]bool),
	}
}

func cloneDataset(src dataset) dataset {
	clone := newDataset()
	for id, book := range src.Books {
		clone.Books[id] = book
	}
	for id, tip := range src.Tips {
		clone.Tips[id] = tip
	}
	for id, post := range src.Posts {
		clone.Posts[id] = post
	}
	for id, user := range src.Users {
		clone.Users[id] = user
	}
	for name, enabled := range src.Settings {
		clone.Settings[name] = enabled
	}
	return clone
}

// Storage is the JSON file-backed datastore. Each entity lives in its own
// array file under the data directory, and every mutation rewrites the
// affected file atomically via a temp file rename.
type Storage struct {
	mu   sync.RWMutex
	dir  string
	data dataset
	// persistOverride allows tests to intercept persist operations.
	persistOverride func(file string, payload any) error
}

// NewStorage opens the JSON datastore rooted at dir, creating the directory
// when missing. Entity files are loaded concurrently.
func NewStorage(dir string, opts ...Option) (*Storage, error) {
	if dir == "" {
		return nil, fmt.Errorf("data directory required")
	}
	store := &Storage{dir: dir, data: newDataset()}
	for _, opt := range opts {
		if opt != nil {
			opt.applyJSON(store)
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if err := store.load(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Storage) load() error {
	var (
		books []models.Book
		tips  []models.Tip
		posts []models.Post
		users []models.User
		flags []models.Setting
	)
	var group errgroup.Group
	group.Go(func() error { return readEntityFile(filepath.Join(s.dir, booksFile), &books) })
	group.Go(func() error { return readEntityFile(filepath.Join(s.dir, tipsFile), &tips) })
	group.Go(func() error { return readEntityFile(filepath.Join(s.dir, postsFile), &posts) })
	group.Go(func() error { return readEntityFile(filepath.Join(s.dir, usersFile), &users) })
	group.Go(func() error { return readEntityFile(filepath.Join(s.dir, settingsFile), &flags) })
	if err := group.Wait(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var booksNormalized, tipsNormalized, postsNormalized bool
	for _, book := range books {
		if book.ID == "" {
			book.ID = newID()
			booksNormalized = true
		}
		s.data.Books[book.ID] = book
	}
	for _, tip := range tips {
		if tip.ID == "" {
			tip.ID = newID()
			tipsNormalized = true
		}
		s.data.Tips[tip.ID] = tip
	}
	for _, post := range posts {
		if post.ID == "" {
			post.ID = newID()
			postsNormalized = true
		}
		s.data.Posts[post.ID] = post
	}
	for _, user := range users {
		s.data.Users[user.ID] = user
	}
	for _, flag := range flags {
		s.data.Settings[flag.Name] = flag.Enabled
	}

	// Legacy files may hold records without ids; mint them and rewrite the
	// file so later lookups address every record.
	if booksNormalized {
		if err := s.persistBooks(s.data); err != nil {
			return err
		}
	}
	if tipsNormalized {
		if err := s.persistTips(s.data); err != nil {
			return err
		}
	}
	if postsNormalized {
		if err := s.persistPosts(s.data); err != nil {
			return err
		}
	}
	return nil
}

func readEntityFile[T any](path string, out *[]T) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

func (s *Storage) persistFile(name string, payload any) error {
	if s.persistOverride != nil {
		return s.persistOverride(name, payload)
	}
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", name, err)
	}
	tmpName := tmp.Name()
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()
	if _, err := tmp.Write(encoded); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("flush %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file for %s: %w", name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, name)); err != nil {
		return fmt.Errorf("replace %s: %w", name, err)
	}
	success = true
	return nil
}

func (s *Storage) persistBooks(data dataset) error {
	return s.persistFile(booksFile, sortedBooks(data.Books))
}

func (s *Storage) persistTips(data dataset) error {
	return s.persistFile(tipsFile, sortedTips(data.Tips))
}

func (s *Storage) persistPosts(data dataset) error {
	return s.persistFile(postsFile, sortedPosts(data.Posts))
}

func (s *Storage) persistUsers(data dataset) error {
	return s.persistFile(usersFile, sortedUsers(data.Users))
}

func (s *Storage) persistSettings(data dataset) error {
	flags := make([]models.Setting, 0, len(data.Settings))
	for name, enabled := range data.Settings {
		flags = append(flags, models.Setting{Name: name, Enabled: enabled})
	}
	sort.Slice(flags, func(i, j int) bool { return flags[i].Name < flags[j].Name })
	return s.persistFile(settingsFile, flags)
}

func sortedBooks(books map[string]models.Book) []models.Book {
	out := make([]models.Book, 0, len(books))
	for _, book := range books {
		out = append(out, book)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func sortedTips(tips map[string]models.Tip) []models.Tip {
	out := make([]models.Tip, 0, len(tips))
	for _, tip := range tips {
		out = append(out, tip)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// sortedPosts lists newest-first, the order the announcements page renders.
func sortedPosts(posts map[string]models.Post) []models.Post {
	out := make([]models.Post, 0, len(posts))
	for _, post := range posts {
		out = append(out, post)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func sortedUsers(users map[string]models.User) []models.User {
	out := make([]models.User, 0, len(users))
	for _, user := range users {
		out = append(out, user)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// bumpUpdatedAt guarantees updatedAt lands strictly after createdAt even
// when both fall inside the same millisecond.
func bumpUpdatedAt(createdAt int64) int64 {
	now := nowMillis()
	if now <= createdAt {
		now = createdAt + 1
	}
	return now
}

// Book operations

func (s *Storage) ListBooks() ([]models.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedBooks(s.data.Books), nil
}

func (s *Storage) CreateBook(params CreateBookParams) (models.Book, error) {
	title := strings.TrimSpace(params.Title)
	url := strings.TrimSpace(params.URL)
	if title == "" || url == "" {
		return models.Book{}, ValidationError("title and url are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	book := models.Book{
		ID:        newID(),
		Title:     title,
		URL:       url,
		CreatedAt: nowMillis(),
	}
	updated := cloneDataset(s.data)
	updated.Books[book.ID] = book
	if err := s.persistBooks(updated); err != nil {
		return models.Book{}, err
	}
	s.data = updated
	return book, nil
}

func (s *Storage) UpdateBook(id string, update BookUpdate) (models.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	book, ok := s.data.Books[id]
	if !ok {
		return models.Book{}, fmt.Errorf("book %s: %w", id, ErrNotFound)
	}
	if update.Title != nil {
		title := strings.TrimSpace(*update.Title)
		if title == "" {
			return models.Book{}, ValidationError("title cannot be empty")
		}
		book.Title = title
	}
	if update.URL != nil {
		url := strings.TrimSpace(*update.URL)
		if url == "" {
			return models.Book{}, ValidationError("url cannot be empty")
		}
		book.URL = url
	}
	book.UpdatedAt = bumpUpdatedAt(book.CreatedAt)

	updated := cloneDataset(s.data)
	updated.Books[id] = book
	if err := s.persistBooks(updated); err != nil {
		return models.Book{}, err
	}
	s.data = updated
	return book, nil
}

func (s *Storage) DeleteBook(id string) (models.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	book, ok := s.data.Books[id]
	if !ok {
		return models.Book{}, fmt.Errorf("book %s: %w", id, ErrNotFound)
	}
	updated := cloneDataset(s.data)
	delete(updated.Books, id)
	if err := s.persistBooks(updated); err != nil {
		return models.Book{}, err
	}
	s.data = updated
	return book, nil
}

// Tip operations

func (s *Storage) ListTips() ([]models.Tip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedTips(s.data.Tips), nil
}

func (s *Storage) CreateTip(params CreateTipParams) (models.Tip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Tips without text are allowed; an image alone is a valid tip.
	tip := models.Tip{
		ID:        newID(),
		Text:      strings.TrimSpace(params.Text),
		ImageURL:  strings.TrimSpace(params.ImageURL),
		CreatedAt: nowMillis(),
	}
	updated := cloneDataset(s.data)
	updated.Tips[tip.ID] = tip
	if err := s.persistTips(updated); err != nil {
		return models.Tip{}, err
	}
	s.data = updated
	return tip, nil
}

func (s *Storage) UpdateTip(id string, update TipUpdate) (models.Tip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tip, ok := s.data.Tips[id]
	if !ok {
		return models.Tip{}, fmt.Errorf("tip %s: %w", id, ErrNotFound)
	}
	if update.Text != nil {
		tip.Text = strings.TrimSpace(*update.Text)
	}
	if update.ImageURL != nil {
		tip.ImageURL = strings.TrimSpace(*update.ImageURL)
	}
	tip.UpdatedAt = bumpUpdatedAt(tip.CreatedAt)

	updated := cloneDataset(s.data)
	updated.Tips[id] = tip
	if err := s.persistTips(updated); err != nil {
		return models.Tip{}, err
	}
	s.data = updated
	return tip, nil
}

func (s *Storage) DeleteTip(id string) (models.Tip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tip, ok := s.data.Tips[id]
	if !ok {
		return models.Tip{}, fmt.Errorf("tip %s: %w", id, ErrNotFound)
	}
	updated := cloneDataset(s.data)
	delete(updated.Tips, id)
	if err := s.persistTips(updated); err != nil {
		return models.Tip{}, err
	}
	s.data = updated
	return tip, nil
}

// Post operations

func (s *Storage) ListPosts() ([]models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedPosts(s.data.Posts), nil
}

func (s *Storage) CreatePost(params CreatePostParams) (models.Post, error) {
	title := strings.TrimSpace(params.Title)
	if title == "" {
		return models.Post{}, ValidationError("title is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	post := models.Post{
		ID:          newID(),
		Title:       title,
		Description: strings.TrimSpace(params.Description),
		VideoURL:    strings.TrimSpace(params.VideoURL),
		CreatedAt:   nowMillis(),
	}
	updated := cloneDataset(s.data)
	updated.Posts[post.ID] = post
	if err := s.persistPosts(updated); err != nil {
		return models.Post{}, err
	}
	s.data = updated
	return post, nil
}

func (s *Storage) UpdatePost(id string, update PostUpdate) (models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.data.Posts[id]
	if !ok {
		return models.Post{}, fmt.Errorf("post %s: %w", id, ErrNotFound)
	}
	if update.Title != nil {
		title := strings.TrimSpace(*update.Title)
		if title == "" {
			return models.Post{}, ValidationError("title cannot be empty")
		}
		post.Title = title
	}
	if update.Description != nil {
		post.Description = strings.TrimSpace(*update.Description)
	}
	if update.VideoURL != nil {
		post.VideoURL = strings.TrimSpace(*update.VideoURL)
	}
	post.UpdatedAt = bumpUpdatedAt(post.CreatedAt)

	updated := cloneDataset(s.data)
	updated.Posts[id] = post
	if err := s.persistPosts(updated); err != nil {
		return models.Post{}, err
	}
	s.data = updated
	return post, nil
}

func (s *Storage) DeletePost(id string) (models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.data.Posts[id]
	if !ok {
		return models.Post{}, fmt.Errorf("post %s: %w", id, ErrNotFound)
	}
	updated := cloneDataset(s.data)
	delete(updated.Posts, id)
	if err := s.persistPosts(updated); err != nil {
		return models.Post{}, err
	}
	s.data = updated
	return post, nil
}

// User operations

func (s *Storage) CreateUser(params CreateUserParams) (models.User, error) {
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

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, user := range s.data.Users {
		if user.Username == username {
			return models.User{}, ErrUsernameTaken
		}
	}

	user := models.User{
		ID:           newID(),
		Username:     username,
		PasswordHash: hashed,
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}
	updated := cloneDataset(s.data)
	updated.Users[user.ID] = user
	if err := s.persistUsers(updated); err != nil {
		return models.User{}, err
	}
	s.data = updated
	return user, nil
}

func (s *Storage) ListUsers() ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedUsers(s.data.Users), nil
}

func (s *Storage) GetUser(id string) (models.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.data.Users[id]
	return user, ok, nil
}

func (s *Storage) FindUserByUsername(username string) (models.User, bool, error) {
	normalized := normalizeUsername(username)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.data.Users {
		if user.Username == normalized {
			return user, true, nil
		}
	}
	return models.User{}, false, nil
}

func (s *Storage) AuthenticateUser(username, password string) (models.User, error) {
	if password == "" {
		return models.User{}, auth.ErrInvalidCredentials
	}
	user, ok, err := s.FindUserByUsername(username)
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

func (s *Storage) SetUserPassword(username, password string) (models.User, error) {
	if len(password) < 8 {
		return models.User{}, ValidationError("password must be at least 8 characters")
	}
	hashed, err := auth.HashPassword(password)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}
	normalized := normalizeUsername(username)

	s.mu.Lock()
	defer s.mu.Unlock()

	var target models.User
	found := false
	for _, user := range s.data.Users {
		if user.Username == normalized {
			target = user
			found = true
			break
		}
	}
	if !found {
		return models.User{}, fmt.Errorf("user %s: %w", username, ErrNotFound)
	}
	target.PasswordHash = hashed

	updated := cloneDataset(s.data)
	updated.Users[target.ID] = target
	if err := s.persistUsers(updated); err != nil {
		return models.User{}, err
	}
	s.data = updated
	return target, nil
}

func (s *Storage) DeleteUser(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.data.Users[id]
	if !ok {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if user.Role == models.RoleSuperadmin {
		remaining := 0
		for _, other := range s.data.Users {
			if other.Role == models.RoleSuperadmin && other.ID != id {
				remaining++
			}
		}
		if remaining == 0 {
			return ValidationError("cannot delete the last superadmin")
		}
	}
	updated := cloneDataset(s.data)
	delete(updated.Users, id)
	if err := s.persistUsers(updated); err != nil {
		return err
	}
	s.data = updated
	return nil
}

func (s *Storage) CountUsers() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data.Users), nil
}

// Setting operations

func (s *Storage) SettingEnabled(name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Settings[name], nil
}

func (s *Storage) SetSetting(name string, enabled bool) error {
	if strings.TrimSpace(name) == "" {
		return ValidationError("setting name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	updated := cloneDataset(s.data)
	updated.Settings[name] = enabled
	if err := s.persistSettings(updated); err != nil {
		return err
	}
	s.data = updated
	return nil
}

// Ping reports whether the data directory is usable.
func (s *Storage) Ping(context.Context) error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return fmt.Errorf("data dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("data dir %s is not a directory", s.dir)
	}
	return nil
}

// Close is a no-op for the file-backed store.
func (s *Storage) Close(context.Context) error {
	return nil
}
