package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"minbar/internal/feed"
	"minbar/internal/media"
	"minbar/internal/models"
)

func multipartRequest(t *testing.T, path, filename string, contents []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(contents); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("write field %s: %v", key, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func newUploadHandler(t *testing.T) *Handler {
	t.Helper()
	h := newTestHandler(t)
	store, err := media.NewLocalStore(t.TempDir(), "/media")
	if err != nil {
		t.Fatalf("new local store: %v", err)
	}
	h.Media = store
	return h
}

func TestUploadBookCreatesEntity(t *testing.T) {
	h := newUploadHandler(t)

	req := multipartRequest(t, "/uploadBook", "usul_al-fiqh.pdf", []byte("%PDF-1.4 stub"), nil)
	rec := httptest.NewRecorder()
	h.UploadBook(rec, withIdentity(req, models.RoleAdmin))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var book models.Book
	if err := json.Unmarshal(decodeEnvelope(t, rec).Data, &book); err != nil {
		t.Fatalf("decode book: %v", err)
	}
	if book.Title != "usul al fiqh" {
		t.Fatalf("title should derive from filename, got %q", book.Title)
	}
	if !strings.HasPrefix(book.URL, "/media/") || !strings.HasSuffix(book.URL, ".pdf") {
		t.Fatalf("unexpected url %q", book.URL)
	}
}

func TestUploadBookHonoursTitleField(t *testing.T) {
	h := newUploadHandler(t)

	req := multipartRequest(t, "/uploadBook", "scan0001.pdf", []byte("data"), map[string]string{
		"title": "Forty Hadith",
	})
	rec := httptest.NewRecorder()
	h.UploadBook(rec, withIdentity(req, models.RoleAdmin))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var book models.Book
	if err := json.Unmarshal(decodeEnvelope(t, rec).Data, &book); err != nil {
		t.Fatalf("decode book: %v", err)
	}
	if book.Title != "Forty Hadith" {
		t.Fatalf("title = %q", book.Title)
	}
}

func TestUploadTipCarriesText(t *testing.T) {
	h := newUploadHandler(t)

	req := multipartRequest(t, "/uploadTip", "reminder.png", []byte{0x89, 'P', 'N', 'G'}, map[string]string{
		"text": "Remember the five pillars",
	})
	rec := httptest.NewRecorder()
	h.UploadTip(rec, withIdentity(req, models.RoleAdmin))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var tip models.Tip
	if err := json.Unmarshal(decodeEnvelope(t, rec).Data, &tip); err != nil {
		t.Fatalf("decode tip: %v", err)
	}
	if tip.Text != "Remember the five pillars" || !strings.HasPrefix(tip.ImageURL, "/media/") {
		t.Fatalf("unexpected tip %+v", tip)
	}
}

func TestUploadVideoCreatesPost(t *testing.T) {
	h := newUploadHandler(t)

	req := multipartRequest(t, "/uploadVideo", "friday-khutbah.mp4", []byte("ftyp"), map[string]string{
		"description": "Recording from last Friday",
	})
	rec := httptest.NewRecorder()
	h.UploadVideo(rec, withIdentity(req, models.RoleAdmin))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var post models.Post
	if err := json.Unmarshal(decodeEnvelope(t, rec).Data, &post); err != nil {
		t.Fatalf("decode post: %v", err)
	}
	if post.Title != "friday khutbah" || !strings.HasPrefix(post.VideoURL, "/media/") {
		t.Fatalf("unexpected post %+v", post)
	}
}

func TestUploadRequiresFile(t *testing.T) {
	h := newUploadHandler(t)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	_ = writer.WriteField("title", "No File")
	_ = writer.Close()
	req := httptest.NewRequest(http.MethodPost, "/uploadBook", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	rec := httptest.NewRecorder()
	h.UploadBook(rec, withIdentity(req, models.RoleAdmin))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestUploadRequiresAdmin(t *testing.T) {
	h := newUploadHandler(t)
	req := multipartRequest(t, "/uploadBook", "book.pdf", []byte("data"), nil)
	rec := httptest.NewRecorder()
	h.UploadBook(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestUploadSizeCeiling(t *testing.T) {
	h := newUploadHandler(t)
	h.MaxUploadBytes = 64

	req := multipartRequest(t, "/uploadBook", "big.pdf", bytes.Repeat([]byte("x"), 4096), nil)
	rec := httptest.NewRecorder()
	h.UploadBook(rec, withIdentity(req, models.RoleAdmin))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestYouTubeFeedRelay(t *testing.T) {
	const rss = `<?xml version="1.0"?><feed><title>channel</title></feed>`
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("channel_id"); got != "UC123" {
			t.Errorf("channel_id = %q", got)
		}
		w.Header().Set("Content-Type", "text/xml; charset=UTF-8")
		_, _ = w.Write([]byte(rss))
	}))
	defer upstream.Close()

	h := newTestHandler(t)
	h.Feed = feed.NewClient(feed.WithBaseURL(upstream.URL))

	rec := httptest.NewRecorder()
	h.YouTubeFeed(rec, httptest.NewRequest(http.MethodGet, "/youtube-feed?channelId=UC123", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != rss {
		t.Fatalf("body not relayed verbatim: %q", rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/xml; charset=UTF-8" {
		t.Fatalf("content type = %q", ct)
	}
}

func TestYouTubeFeedRequiresChannel(t *testing.T) {
	h := newTestHandler(t)
	h.Feed = feed.NewClient()
	rec := httptest.NewRecorder()
	h.YouTubeFeed(rec, httptest.NewRequest(http.MethodGet, "/youtube-feed", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestYouTubeFeedUpstreamFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusServiceUnavailable)
	}))
	defer upstream.Close()

	h := newTestHandler(t)
	h.Feed = feed.NewClient(feed.WithBaseURL(upstream.URL))

	rec := httptest.NewRecorder()
	h.YouTubeFeed(rec, httptest.NewRequest(http.MethodGet, "/youtube-feed?channelId=UC123", nil))
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
}
