package media

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// CloudinaryConfig holds the credentials parsed from a CLOUDINARY_URL value
// of the form cloudinary://<api_key>:<api_secret>@<cloud_name>.
type CloudinaryConfig struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
	// Endpoint overrides the upload API base, used by tests.
	Endpoint string
	// Timeout bounds each upload request.
	Timeout time.Duration
}

// ParseCloudinaryURL splits a cloudinary:// URL into credentials.
func ParseCloudinaryURL(raw string) (CloudinaryConfig, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return CloudinaryConfig{}, fmt.Errorf("parse cloudinary url: %w", err)
	}
	if parsed.Scheme != "cloudinary" {
		return CloudinaryConfig{}, fmt.Errorf("cloudinary url must use cloudinary:// scheme")
	}
	if parsed.User == nil {
		return CloudinaryConfig{}, fmt.Errorf("cloudinary url missing credentials")
	}
	secret, _ := parsed.User.Password()
	cfg := CloudinaryConfig{
		CloudName: parsed.Host,
		APIKey:    parsed.User.Username(),
		APISecret: secret,
	}
	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return CloudinaryConfig{}, fmt.Errorf("cloudinary url missing cloud name, key, or secret")
	}
	return cfg, nil
}

// CloudinaryStore uploads files to Cloudinary's signed upload API and
// returns the hosted secure URL.
type CloudinaryStore struct {
	cfg    CloudinaryConfig
	client *http.Client
	now    func() time.Time
}

// NewCloudinaryStore builds a store from parsed credentials.
func NewCloudinaryStore(cfg CloudinaryConfig) *CloudinaryStore {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://api.cloudinary.com/v1_1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &CloudinaryStore{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		now:    time.Now,
	}
}

type cloudinaryResponse struct {
	SecureURL string `json:"secure_url"`
	URL       string `json:"url"`
	Error     struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Upload sends the file as a signed multipart request. The signature covers
// every parameter except file and api_key, per the Cloudinary protocol.
func (s *CloudinaryStore) Upload(ctx context.Context, upload Upload) (string, error) {
	if len(upload.Data) == 0 {
		return "", ErrEmptyUpload
	}
	timestamp := strconv.FormatInt(s.now().Unix(), 10)
	params := map[string]string{"timestamp": timestamp}
	if s.cfg.Folder != "" {
		params["folder"] = s.cfg.Folder
	}
	signature := signParams(params, s.cfg.APISecret)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for key, value := range params {
		if err := writer.WriteField(key, value); err != nil {
			return "", fmt.Errorf("build upload form: %w", err)
		}
	}
	if err := writer.WriteField("api_key", s.cfg.APIKey); err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}
	if err := writer.WriteField("signature", signature); err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}
	part, err := writer.CreateFormFile("file", upload.Filename)
	if err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}
	if _, err := part.Write(upload.Data); err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/auto/upload", strings.TrimSuffix(s.cfg.Endpoint, "/"), s.cfg.CloudName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload to cloudinary: %w", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read cloudinary response: %w", err)
	}
	var decoded cloudinaryResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return "", fmt.Errorf("decode cloudinary response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message := decoded.Error.Message
		if message == "" {
			message = resp.Status
		}
		return "", fmt.Errorf("cloudinary upload failed: %s", message)
	}
	if decoded.SecureURL != "" {
		return decoded.SecureURL, nil
	}
	if decoded.URL != "" {
		return decoded.URL, nil
	}
	return "", fmt.Errorf("cloudinary response missing url")
}

// signParams produces the SHA-1 signature over the sorted parameter string.
func signParams(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, key+"="+params[key])
	}
	digest := sha1.Sum([]byte(strings.Join(pairs, "&") + secret))
	return hex.EncodeToString(digest[:])
}
