// Package feed relays YouTube channel RSS feeds so browsers can read them
// without tripping over CORS.
package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const defaultBaseURL = "https://www.youtube.com/feeds/videos.xml"

// ErrUpstream marks failures talking to the feed origin. Handlers map it to
// a 502 response.
var ErrUpstream = errors.New("feed upstream unavailable")

// Result holds the relayed feed document.
type Result struct {
	Body        []byte
	ContentType string
}

// Client fetches channel feeds with a bounded timeout.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxBytes   int64
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL points the client at a different feed origin, used by tests.
func WithBaseURL(base string) ClientOption {
	return func(c *Client) {
		if base != "" {
			c.baseURL = base
		}
	}
}

// WithHTTPClient swaps the underlying HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient builds a feed client. The default timeout is ten seconds and
// responses are capped at 4 MiB.
func NewClient(opts ...ClientOption) *Client {
	client := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		maxBytes:   4 << 20,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client
}

// Fetch retrieves the RSS document for the channel and relays it verbatim.
func (c *Client) Fetch(ctx context.Context, channelID string) (Result, error) {
	if channelID == "" {
		return Result{}, fmt.Errorf("channelId is required")
	}
	endpoint := c.baseURL + "?channel_id=" + url.QueryEscape(channelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Result{}, fmt.Errorf("build feed request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, fmt.Errorf("%w: status %s", ErrUpstream, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes))
	if err != nil {
		return Result{}, fmt.Errorf("%w: read body: %v", ErrUpstream, err)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/xml"
	}
	return Result{Body: body, ContentType: contentType}, nil
}
