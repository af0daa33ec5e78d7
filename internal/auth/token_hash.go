package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

var errSessionTokenRequired = errors.New("session token required")

// hashSessionToken digests a plaintext token for durable storage so a
// leaked store never yields usable credentials.
func hashSessionToken(token string) (string, error) {
	if token == "" {
		return "", errSessionTokenRequired
	}
	digest := sha256.Sum256([]byte(token))
	return hex.EncodeToString(digest[:]), nil
}
