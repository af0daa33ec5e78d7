package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// SecretKeeper guards the shared administrative secret used by header and
// body password checks. The secret is kept as a salted digest in a small
// JSON side file so the plaintext never touches disk.
type SecretKeeper struct {
	path string
	mu   sync.Mutex
	hash string
}

type secretFile struct {
	PasswordHash string `json:"passwordHash"`
}

// OpenSecretFile loads the digest from path, seeding the file from the
// fallback plaintext when it does not exist yet.
func OpenSecretFile(path, fallback string) (*SecretKeeper, error) {
	if path == "" {
		return nil, fmt.Errorf("secret file path required")
	}
	keeper := &SecretKeeper{path: path}
	payload, err := os.ReadFile(path)
	switch {
	case err == nil:
		var file secretFile
		if err := json.Unmarshal(payload, &file); err != nil {
			return nil, fmt.Errorf("decode secret file: %w", err)
		}
		if file.PasswordHash == "" {
			return nil, fmt.Errorf("secret file %s has no password hash", path)
		}
		keeper.hash = file.PasswordHash
	case errors.Is(err, fs.ErrNotExist):
		if fallback == "" {
			return nil, fmt.Errorf("secret file %s missing and no fallback secret provided", path)
		}
		hashed, err := HashPassword(fallback)
		if err != nil {
			return nil, err
		}
		keeper.hash = hashed
		if err := keeper.persist(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("read secret file: %w", err)
	}
	return keeper, nil
}

// persist assumes the caller holds the mutex or the keeper is not yet shared.
func (k *SecretKeeper) persist() error {
	payload, err := json.MarshalIndent(secretFile{PasswordHash: k.hash}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode secret file: %w", err)
	}
	dir := filepath.Dir(k.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create secret dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "secret-*.json")
	if err != nil {
		return fmt.Errorf("create temp secret file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write secret file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync secret file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close secret file: %w", err)
	}
	if err := os.Rename(tmpName, k.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace secret file: %w", err)
	}
	return nil
}

// Verify checks a candidate secret against the stored digest.
func (k *SecretKeeper) Verify(candidate string) error {
	if candidate == "" {
		return ErrInvalidCredentials
	}
	k.mu.Lock()
	hash := k.hash
	k.mu.Unlock()
	return VerifyPassword(hash, candidate)
}

// Rotate replaces the stored secret after verifying the current one.
func (k *SecretKeeper) Rotate(current, next string) error {
	if next == "" {
		return fmt.Errorf("new secret is required")
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := VerifyPassword(k.hash, current); err != nil {
		return err
	}
	hashed, err := HashPassword(next)
	if err != nil {
		return err
	}
	previous := k.hash
	k.hash = hashed
	if err := k.persist(); err != nil {
		k.hash = previous
		return err
	}
	return nil
}
