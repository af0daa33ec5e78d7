package api

import (
	"errors"
	"fmt"
	"net/http"

	"minbar/internal/auth"
	"minbar/internal/storage"
)

// statusForError maps repository and credential errors onto HTTP status
// codes. Anything unrecognised is treated as an internal failure.
func statusForError(err error) int {
	var validation storage.ValidationError
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrUsernameTaken):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func writeStoreError(w http.ResponseWriter, err error) {
	writeError(w, statusForError(err), err)
}

func errNotFoundPath(path string) error {
	return fmt.Errorf("no route for %s", path)
}
