package storage

import "github.com/google/uuid"

// newID mints a random UUID for new records. Identifiers are opaque to
// clients and only required to be unique.
func newID() string {
	return uuid.NewString()
}
