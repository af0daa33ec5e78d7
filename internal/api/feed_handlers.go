package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"minbar/internal/feed"
)

// YouTubeFeed proxies the channel RSS so browsers are not blocked by the
// upstream's missing CORS headers. The body is relayed verbatim.
func (h *Handler) YouTubeFeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	if h.Feed == nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("feed proxy is not configured"))
		return
	}
	channelID := strings.TrimSpace(r.URL.Query().Get("channelId"))
	if channelID == "" {
		channelID = strings.TrimSpace(r.URL.Query().Get("channel_id"))
	}
	if channelID == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("channelId is required"))
		return
	}

	result, err := h.Feed.Fetch(r.Context(), channelID)
	if err != nil {
		h.metricsRecorder().ObserveFeedRelay("failure")
		if errors.Is(err, feed.ErrUpstream) {
			writeError(w, http.StatusBadGateway, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.metricsRecorder().ObserveFeedRelay("success")
	w.Header().Set("Content-Type", result.ContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Body)
}
