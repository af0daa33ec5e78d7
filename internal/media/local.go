package media

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// LocalStore writes uploads under a directory served by the HTTP server at
// baseURL. It is the default when no Cloudinary credentials are configured.
type LocalStore struct {
	dir     string
	baseURL string
}

// NewLocalStore prepares the upload directory. baseURL is the public path
// prefix the server mounts the directory at, such as /media.
func NewLocalStore(dir, baseURL string) (*LocalStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("media directory required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	if baseURL == "" {
		baseURL = "/media"
	}
	return &LocalStore{dir: dir, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

// Dir returns the directory uploads are written to.
func (s *LocalStore) Dir() string {
	return s.dir
}

// Upload writes the file under a random name, keeping the original
// extension so content types stay guessable.
func (s *LocalStore) Upload(_ context.Context, upload Upload) (string, error) {
	if len(upload.Data) == 0 {
		return "", ErrEmptyUpload
	}
	ext := sanitizeExtension(upload.Filename)
	name := uuid.NewString() + ext
	target := filepath.Join(s.dir, name)
	tmp, err := os.CreateTemp(s.dir, "upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp upload: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(upload.Data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("close upload: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("place upload: %w", err)
	}
	return s.baseURL + "/" + name, nil
}

// sanitizeExtension keeps only a short, safe extension from the client
// supplied filename.
func sanitizeExtension(filename string) string {
	ext := strings.ToLower(path.Ext(path.Base(filename)))
	if ext == "" || len(ext) > 8 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
