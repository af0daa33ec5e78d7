package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type requestLabel struct {
	method string
	path   string
	status string
}

// Recorder aggregates in-memory counters for HTTP requests, content
// mutations, authentication outcomes, uploads, and feed relays. It renders
// them in Prometheus text format on demand.
type Recorder struct {
	mu              sync.RWMutex
	requestCount    map[requestLabel]uint64
	requestDuration map[requestLabel]time.Duration
	contentEvents   map[string]uint64
	authEvents      map[string]uint64
	uploadEvents    map[string]uint64
	feedEvents      map[string]uint64
	maintenanceMode atomic.Int64
}

var defaultRecorder = New()

// New constructs an empty Recorder with initialized backing maps so callers
// can immediately record metrics without additional setup.
func New() *Recorder {
	return &Recorder{
		requestCount:    make(map[requestLabel]uint64),
		requestDuration: make(map[requestLabel]time.Duration),
		contentEvents:   make(map[string]uint64),
		authEvents:      make(map[string]uint64),
		uploadEvents:    make(map[string]uint64),
		feedEvents:      make(map[string]uint64),
	}
}

// Default returns the singleton Recorder shared by packages that do not
// carry their own instrumentation pipeline.
func Default() *Recorder {
	return defaultRecorder
}

// ObserveRequest accumulates request count and cumulative duration by HTTP
// method, normalized path, and status code.
func (r *Recorder) ObserveRequest(method, path string, status int, duration time.Duration) {
	label := requestLabel{
		method: strings.ToUpper(method),
		path:   normalizePath(path),
		status: fmt.Sprintf("%d", status),
	}
	r.mu.Lock()
	r.requestCount[label]++
	r.requestDuration[label] += duration
	r.mu.Unlock()
}

// ObserveContentEvent counts a content mutation such as "book_created" or
// "post_deleted".
func (r *Recorder) ObserveContentEvent(event string) {
	name := normalizeName(event)
	r.mu.Lock()
	r.contentEvents[name]++
	r.mu.Unlock()
}

// ObserveAuthEvent counts an authentication outcome such as
// "login_success" or "login_failure".
func (r *Recorder) ObserveAuthEvent(event string) {
	name := normalizeName(event)
	r.mu.Lock()
	r.authEvents[name]++
	r.mu.Unlock()
}

// ObserveUpload counts an accepted upload by kind ("book", "video", "tip").
func (r *Recorder) ObserveUpload(kind string) {
	name := normalizeName(kind)
	r.mu.Lock()
	r.uploadEvents[name]++
	r.mu.Unlock()
}

// ObserveFeedRelay counts a feed proxy attempt by outcome.
func (r *Recorder) ObserveFeedRelay(outcome string) {
	name := normalizeName(outcome)
	r.mu.Lock()
	r.feedEvents[name]++
	r.mu.Unlock()
}

// SetMaintenanceMode flips the maintenance gauge.
func (r *Recorder) SetMaintenanceMode(enabled bool) {
	if enabled {
		r.maintenanceMode.Store(1)
	} else {
		r.maintenanceMode.Store(0)
	}
}

// Reset clears all recorded values. Intended for tests.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.requestCount = make(map[requestLabel]uint64)
	r.requestDuration = make(map[requestLabel]time.Duration)
	r.contentEvents = make(map[string]uint64)
	r.authEvents = make(map[string]uint64)
	r.uploadEvents = make(map[string]uint64)
	r.feedEvents = make(map[string]uint64)
	r.mu.Unlock()
	r.maintenanceMode.Store(0)
}

// Handler exposes the recorder as a scrape endpoint.
func (r *Recorder) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		r.Write(w)
	})
}

// Write renders the metrics in Prometheus text format, sorting label sets
// for stable output.
func (r *Recorder) Write(w io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	requestLabels := r.sortedRequestLabels()

	fmt.Fprintln(w, "# HELP minbar_http_requests_total Total number of HTTP requests processed by the API")
	fmt.Fprintln(w, "# TYPE minbar_http_requests_total counter")
	for _, label := range requestLabels {
		fmt.Fprintf(w, "minbar_http_requests_total{method=\"%s\",path=\"%s\",status=\"%s\"} %d\n", label.method, label.path, label.status, r.requestCount[label])
	}

	fmt.Fprintln(w, "# HELP minbar_http_request_duration_seconds_sum Cumulative duration of HTTP requests in seconds")
	fmt.Fprintln(w, "# TYPE minbar_http_request_duration_seconds_sum counter")
	for _, label := range requestLabels {
		fmt.Fprintf(w, "minbar_http_request_duration_seconds_sum{method=\"%s\",path=\"%s\",status=\"%s\"} %f\n", label.method, label.path, label.status, r.requestDuration[label].Seconds())
	}

	fmt.Fprintln(w, "# HELP minbar_http_request_duration_seconds_count Total number of observations for request durations")
	fmt.Fprintln(w, "# TYPE minbar_http_request_duration_seconds_count counter")
	for _, label := range requestLabels {
		fmt.Fprintf(w, "minbar_http_request_duration_seconds_count{method=\"%s\",path=\"%s\",status=\"%s\"} %d\n", label.method, label.path, label.status, r.requestCount[label])
	}

	fmt.Fprintln(w, "# HELP minbar_content_events_total Content mutations by type")
	fmt.Fprintln(w, "# TYPE minbar_content_events_total counter")
	for _, event := range sortedKeys(r.contentEvents) {
		fmt.Fprintf(w, "minbar_content_events_total{event=\"%s\"} %d\n", event, r.contentEvents[event])
	}

	fmt.Fprintln(w, "# HELP minbar_auth_events_total Authentication outcomes by type")
	fmt.Fprintln(w, "# TYPE minbar_auth_events_total counter")
	for _, event := range sortedKeys(r.authEvents) {
		fmt.Fprintf(w, "minbar_auth_events_total{event=\"%s\"} %d\n", event, r.authEvents[event])
	}

	fmt.Fprintln(w, "# HELP minbar_uploads_total Accepted uploads by kind")
	fmt.Fprintln(w, "# TYPE minbar_uploads_total counter")
	for _, kind := range sortedKeys(r.uploadEvents) {
		fmt.Fprintf(w, "minbar_uploads_total{kind=\"%s\"} %d\n", kind, r.uploadEvents[kind])
	}

	fmt.Fprintln(w, "# HELP minbar_feed_relays_total Feed proxy attempts by outcome")
	fmt.Fprintln(w, "# TYPE minbar_feed_relays_total counter")
	for _, outcome := range sortedKeys(r.feedEvents) {
		fmt.Fprintf(w, "minbar_feed_relays_total{outcome=\"%s\"} %d\n", outcome, r.feedEvents[outcome])
	}

	fmt.Fprintln(w, "# HELP minbar_maintenance_mode Whether the site is flagged for maintenance")
	fmt.Fprintln(w, "# TYPE minbar_maintenance_mode gauge")
	fmt.Fprintf(w, "minbar_maintenance_mode %d\n", r.maintenanceMode.Load())
}

func (r *Recorder) sortedRequestLabels() []requestLabel {
	labels := make([]requestLabel, 0, len(r.requestCount))
	for label := range r.requestCount {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].path != labels[j].path {
			return labels[i].path < labels[j].path
		}
		if labels[i].method != labels[j].method {
			return labels[i].method < labels[j].method
		}
		return labels[i].status < labels[j].status
	})
	return labels
}

func sortedKeys(m map[string]uint64) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// normalizePath collapses record identifiers so each route yields one label
// set. Identifiers are UUIDs, so only UUID-shaped segments are replaced.
func normalizePath(path string) string {
	if path == "" || path == "/" {
		return "/"
	}
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if part == "" {
			continue
		}
		if _, err := uuid.Parse(part); err == nil {
			parts[i] = ":id"
		}
	}
	normalized := strings.Join(parts, "/")
	if !strings.HasPrefix(normalized, "/") {
		normalized = "/" + normalized
	}
	if strings.HasSuffix(normalized, "/") && len(normalized) > 1 {
		normalized = strings.TrimSuffix(normalized, "/")
	}
	return normalized
}

func normalizeName(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}

// ObserveRequest records into the default recorder.
func ObserveRequest(method, path string, status int, duration time.Duration) {
	defaultRecorder.ObserveRequest(method, path, status, duration)
}

// Handler exposes the default recorder.
func Handler() http.Handler {
	return defaultRecorder.Handler()
}
