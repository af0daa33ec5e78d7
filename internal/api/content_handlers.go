package api

import (
	"fmt"
	"net/http"
	"strings"

	"minbar/internal/storage"
)

// Request bodies accept a legacy top-level password field so clients that
// still send the shared admin secret inline survive strict decoding.

type createBookRequest struct {
	Title    string `json:"title"`
	URL      string `json:"url"`
	Password string `json:"password,omitempty"`
}

type updateBookRequest struct {
	Title    *string `json:"title"`
	URL      *string `json:"url"`
	Password string  `json:"password,omitempty"`
}

type createTipRequest struct {
	Text     string `json:"text"`
	ImageURL string `json:"imageUrl"`
	Password string `json:"password,omitempty"`
}

type updateTipRequest struct {
	Text     *string `json:"text"`
	ImageURL *string `json:"imageUrl"`
	Password string  `json:"password,omitempty"`
}

type createPostRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	VideoURL    string `json:"videoUrl"`
	Password    string `json:"password,omitempty"`
}

type updatePostRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	VideoURL    *string `json:"videoUrl"`
	Password    string  `json:"password,omitempty"`
}

func resourceID(r *http.Request, prefix string) (string, error) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
	if id == "" || strings.Contains(id, "/") {
		return "", fmt.Errorf("resource id is required")
	}
	return id, nil
}

func (h *Handler) Books(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		books, err := h.Store.ListBooks()
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeData(w, http.StatusOK, books)
	case http.MethodPost:
		if _, ok := h.requireAdmin(w, r); !ok {
			return
		}
		var req createBookRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		book, err := h.Store.CreateBook(storage.CreateBookParams{Title: req.Title, URL: req.URL})
		if err != nil {
			writeStoreError(w, err)
			return
		}
		h.metricsRecorder().ObserveContentEvent("book_created")
		writeData(w, http.StatusOK, book)
	default:
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
	}
}

func (h *Handler) BookByID(w http.ResponseWriter, r *http.Request) {
	id, err := resourceID(r, "/books")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	switch r.Method {
	case http.MethodPut:
		if _, ok := h.requireAdmin(w, r); !ok {
			return
		}
		var req updateBookRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		book, err := h.Store.UpdateBook(id, storage.BookUpdate{Title: req.Title, URL: req.URL})
		if err != nil {
			writeStoreError(w, err)
			return
		}
		h.metricsRecorder().ObserveContentEvent("book_updated")
		writeData(w, http.StatusOK, book)
	case http.MethodDelete:
		if _, ok := h.requireAdmin(w, r); !ok {
			return
		}
		book, err := h.Store.DeleteBook(id)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		h.metricsRecorder().ObserveContentEvent("book_deleted")
		writeData(w, http.StatusOK, book)
	default:
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
	}
}

func (h *Handler) Tips(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		tips, err := h.Store.ListTips()
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeData(w, http.StatusOK, tips)
	case http.MethodPost:
		if _, ok := h.requireAdmin(w, r); !ok {
			return
		}
		var req createTipRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		tip, err := h.Store.CreateTip(storage.CreateTipParams{Text: req.Text, ImageURL: req.ImageURL})
		if err != nil {
			writeStoreError(w, err)
			return
		}
		h.metricsRecorder().ObserveContentEvent("tip_created")
		writeData(w, http.StatusOK, tip)
	default:
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
	}
}

func (h *Handler) TipByID(w http.ResponseWriter, r *http.Request) {
	id, err := resourceID(r, "/tips")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	switch r.Method {
	case http.MethodPut:
		if _, ok := h.requireAdmin(w, r); !ok {
			return
		}
		var req updateTipRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		tip, err := h.Store.UpdateTip(id, storage.TipUpdate{Text: req.Text, ImageURL: req.ImageURL})
		if err != nil {
			writeStoreError(w, err)
			return
		}
		h.metricsRecorder().ObserveContentEvent("tip_updated")
		writeData(w, http.StatusOK, tip)
	case http.MethodDelete:
		if _, ok := h.requireAdmin(w, r); !ok {
			return
		}
		tip, err := h.Store.DeleteTip(id)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		h.metricsRecorder().ObserveContentEvent("tip_deleted")
		writeData(w, http.StatusOK, tip)
	default:
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
	}
}

func (h *Handler) Posts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		posts, err := h.Store.ListPosts()
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeData(w, http.StatusOK, posts)
	case http.MethodPost:
		if _, ok := h.requireAdmin(w, r); !ok {
			return
		}
		var req createPostRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		post, err := h.Store.CreatePost(storage.CreatePostParams{
			Title:       req.Title,
			Description: req.Description,
			VideoURL:    req.VideoURL,
		})
		if err != nil {
			writeStoreError(w, err)
			return
		}
		h.metricsRecorder().ObserveContentEvent("post_created")
		writeData(w, http.StatusOK, post)
	default:
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
	}
}

func (h *Handler) PostByID(w http.ResponseWriter, r *http.Request) {
	id, err := resourceID(r, "/posts")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	switch r.Method {
	case http.MethodPut:
		if _, ok := h.requireAdmin(w, r); !ok {
			return
		}
		var req updatePostRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		post, err := h.Store.UpdatePost(id, storage.PostUpdate{
			Title:       req.Title,
			Description: req.Description,
			VideoURL:    req.VideoURL,
		})
		if err != nil {
			writeStoreError(w, err)
			return
		}
		h.metricsRecorder().ObserveContentEvent("post_updated")
		writeData(w, http.StatusOK, post)
	case http.MethodDelete:
		if _, ok := h.requireAdmin(w, r); !ok {
			return
		}
		post, err := h.Store.DeletePost(id)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		h.metricsRecorder().ObserveContentEvent("post_deleted")
		writeData(w, http.StatusOK, post)
	default:
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
	}
}
