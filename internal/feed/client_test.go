package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetchRelaysFeed(t *testing.T) {
	const document = `<?xml version="1.0"?><feed><title>Lectures</title></feed>`
	var gotChannel string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotChannel = r.URL.Query().Get("channel_id")
		w.Header().Set("Content-Type", "text/xml; charset=utf-8")
		w.Write([]byte(document))
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL))
	result, err := client.Fetch(context.Background(), "UC12345")
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if gotChannel != "UC12345" {
		t.Fatalf("channel_id = %q, want UC12345", gotChannel)
	}
	if string(result.Body) != document {
		t.Fatalf("body should be relayed verbatim, got %q", result.Body)
	}
	if result.ContentType != "text/xml; charset=utf-8" {
		t.Fatalf("unexpected content type %q", result.ContentType)
	}
}

func TestFetchRequiresChannel(t *testing.T) {
	client := NewClient()
	if _, err := client.Fetch(context.Background(), ""); err == nil {
		t.Fatal("expected error for missing channel id")
	}
}

func TestFetchMapsUpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL))
	if _, err := client.Fetch(context.Background(), "UC1"); !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}

	server.Close()
	if _, err := client.Fetch(context.Background(), "UC1"); !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream for connection failure, got %v", err)
	}
}
