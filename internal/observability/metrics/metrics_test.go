package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestObserveRequestAndWrite(t *testing.T) {
	recorder := New()
	recorder.ObserveRequest("get", "/books", 200, 12*time.Millisecond)
	recorder.ObserveRequest("GET", "/books", 200, 8*time.Millisecond)
	recorder.ObserveRequest("PUT", "/books/0b6f1c40-9f7e-4f6a-9c6e-0a1b2c3d4e5f", 404, time.Millisecond)

	var sb strings.Builder
	recorder.Write(&sb)
	output := sb.String()

	if !strings.Contains(output, `minbar_http_requests_total{method="GET",path="/books",status="200"} 2`) {
		t.Fatalf("missing aggregated GET counter:\n%s", output)
	}
	if !strings.Contains(output, `path="/books/:id"`) {
		t.Fatalf("uuid segment should be normalized:\n%s", output)
	}
}

func TestNormalizePathKeepsRouteNames(t *testing.T) {
	cases := map[string]string{
		"/youtube-feed":     "/youtube-feed",
		"/uploadBook":       "/uploadBook",
		"/config/status":    "/config/status",
		"/auth/change-password": "/auth/change-password",
		"/tips/6ba7b810-9dad-11d1-80b4-00c04fd430c8": "/tips/:id",
		"": "/",
	}
	for input, want := range cases {
		if got := normalizePath(input); got != want {
			t.Errorf("normalizePath(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestEventCountersRender(t *testing.T) {
	recorder := New()
	recorder.ObserveContentEvent("book_created")
	recorder.ObserveAuthEvent("login_failure")
	recorder.ObserveUpload("video")
	recorder.ObserveFeedRelay("failure")
	recorder.SetMaintenanceMode(true)

	var sb strings.Builder
	recorder.Write(&sb)
	output := sb.String()
	for _, want := range []string{
		`minbar_content_events_total{event="book_created"} 1`,
		`minbar_auth_events_total{event="login_failure"} 1`,
		`minbar_uploads_total{kind="video"} 1`,
		`minbar_feed_relays_total{outcome="failure"} 1`,
		"minbar_maintenance_mode 1",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("missing %q in output:\n%s", want, output)
		}
	}
}

func TestHandlerContentType(t *testing.T) {
	recorder := New()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	recorder.Handler().ServeHTTP(rec, req)
	if got := rec.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/plain") {
		t.Fatalf("unexpected content type %q", got)
	}
}
