// Package media stores uploaded files and hands back publicly reachable
// URLs for them. Two implementations exist: a local-disk store for
// single-host deployments and a Cloudinary-backed store for hosted media.
package media

import (
	"context"
	"errors"
)

// Upload carries one file received from a client.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Store persists an upload and returns the URL clients should use to
// fetch it.
type Store interface {
	Upload(ctx context.Context, upload Upload) (string, error)
}

// ErrEmptyUpload is returned when an upload carries no bytes.
var ErrEmptyUpload = errors.New("upload is empty")
