package storage

import (
	"errors"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// ErrNotFound marks lookups for identifiers with no matching record.
var ErrNotFound = errors.New("record not found")

// ErrUsernameTaken is returned when creating a user with a username that
// already exists.
var ErrUsernameTaken = errors.New("username already in use")

// ValidationError marks input the caller can correct. API handlers map it
// to a 400 response with the error text as the message.
type ValidationError string

func (e ValidationError) Error() string { return string(e) }

// CreateBookParams captures the attributes required to publish a book.
type CreateBookParams struct {
	Title string
	URL   string
}

// BookUpdate carries the fields of a partial book update. Nil fields keep
// their stored values.
type BookUpdate struct {
	Title *string
	URL   *string
}

// CreateTipParams captures the attributes of a new advisory note. Text may
// be empty for image-only tips.
type CreateTipParams struct {
	Text     string
	ImageURL string
}

// TipUpdate carries the fields of a partial tip update.
type TipUpdate struct {
	Text     *string
	ImageURL *string
}

// CreatePostParams captures the attributes of a new lecture post.
type CreatePostParams struct {
	Title       string
	Description string
	VideoURL    string
}

// PostUpdate carries the fields of a partial post update.
type PostUpdate struct {
	Title       *string
	Description *string
	VideoURL    *string
}

// CreateUserParams captures the attributes that can be set when creating an
// administrative user.
type CreateUserParams struct {
	Username string
	Password string
	Role     string
}

// nowMillis returns the current wall clock in Unix milliseconds, the
// timestamp unit used by all content records.
func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// normalizeUsername folds usernames to a canonical form so lookups are
// stable across clients sending differently composed Unicode.
func normalizeUsername(raw string) string {
	return strings.ToLower(norm.NFC.String(strings.TrimSpace(raw)))
}
