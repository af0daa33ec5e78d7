package server

import (
	"errors"
	"net/http"

	"minbar/internal/api"
)

// writeMiddlewareError keeps middleware rejections on the API JSON shape.
func writeMiddlewareError(w http.ResponseWriter, status int, message string) {
	api.WriteError(w, status, errors.New(message))
}
