package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"minbar/internal/media"
	"minbar/internal/storage"
)

const defaultMaxUploadBytes = 32 << 20

// receivedUpload is a parsed multipart submission: the file plus the
// optional text fields that ride alongside it.
type receivedUpload struct {
	file  media.Upload
	title string
	form  map[string]string
}

func (h *Handler) maxUploadBytes() int64 {
	if h.MaxUploadBytes > 0 {
		return h.MaxUploadBytes
	}
	return defaultMaxUploadBytes
}

// readUpload parses the single-file multipart form shared by the upload
// endpoints. The entity title defaults to the filename without extension.
func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request, extraFields ...string) (receivedUpload, bool) {
	limit := h.maxUploadBytes()
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) || strings.Contains(err.Error(), "request body too large") {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Errorf("upload exceeds %d bytes", limit))
		} else {
			writeError(w, http.StatusBadRequest, fmt.Errorf("parse multipart form: %w", err))
		}
		return receivedUpload{}, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("file field is required"))
		return receivedUpload{}, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("read upload: %w", err))
		return receivedUpload{}, false
	}

	title := strings.TrimSpace(r.FormValue("title"))
	if title == "" {
		title = titleFromFilename(header.Filename)
	}

	form := make(map[string]string, len(extraFields))
	for _, field := range extraFields {
		form[field] = strings.TrimSpace(r.FormValue(field))
	}

	return receivedUpload{
		file: media.Upload{
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Data:        data,
		},
		title: title,
		form:  form,
	}, true
}

func titleFromFilename(filename string) string {
	base := filepath.Base(filename)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.NewReplacer("_", " ", "-", " ").Replace(base)
	return strings.TrimSpace(base)
}

func (h *Handler) storeUpload(w http.ResponseWriter, r *http.Request, upload media.Upload) (string, bool) {
	if h.Media == nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("media storage is not configured"))
		return "", false
	}
	url, err := h.Media.Upload(r.Context(), upload)
	if err != nil {
		writeError(w, http.StatusBadGateway, fmt.Errorf("store upload: %w", err))
		return "", false
	}
	return url, true
}

// UploadBook stores the document and creates a book pointing at it.
func (h *Handler) UploadBook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}
	received, ok := h.readUpload(w, r)
	if !ok {
		return
	}
	url, ok := h.storeUpload(w, r, received.file)
	if !ok {
		return
	}
	book, err := h.Store.CreateBook(storage.CreateBookParams{Title: received.title, URL: url})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	h.metricsRecorder().ObserveUpload("book")
	writeData(w, http.StatusOK, book)
}

// UploadTip stores the image and creates a tip carrying it.
func (h *Handler) UploadTip(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}
	received, ok := h.readUpload(w, r, "text")
	if !ok {
		return
	}
	url, ok := h.storeUpload(w, r, received.file)
	if !ok {
		return
	}
	tip, err := h.Store.CreateTip(storage.CreateTipParams{Text: received.form["text"], ImageURL: url})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	h.metricsRecorder().ObserveUpload("tip")
	writeData(w, http.StatusOK, tip)
}

// UploadVideo stores the clip and creates a post linking to it.
func (h *Handler) UploadVideo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}
	received, ok := h.readUpload(w, r, "description")
	if !ok {
		return
	}
	url, ok := h.storeUpload(w, r, received.file)
	if !ok {
		return
	}
	post, err := h.Store.CreatePost(storage.CreatePostParams{
		Title:       received.title,
		Description: received.form["description"],
		VideoURL:    url,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	h.metricsRecorder().ObserveUpload("video")
	writeData(w, http.StatusOK, post)
}
