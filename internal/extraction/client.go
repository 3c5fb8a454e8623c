package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrExtraction is returned when the backend cannot produce documents for an upload.
var ErrExtraction = errors.New("extraction failed")

// File is one uploaded document.
type File struct {
	Name    string
	Content io.Reader
}

// Client calls the extraction backend.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient builds a Client for the backend at baseURL.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type extractResponse struct {
	Documents []Document `json:"documents"`
}

// Extract uploads files and returns the extracted documents in backend order.
// Any transport, status or schema failure fails the whole upload.
func (c *Client) Extract(ctx context.Context, files []File) ([]Document, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no files", ErrExtraction)
	}
	reqID := uuid.NewString()
	start := time.Now()
	logger := c.logger.With(slog.String("req_id", reqID))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, f := range files {
		part, err := mw.CreateFormFile("files", f.Name)
		if err != nil {
			return nil, fmt.Errorf("%w: build form: %v", ErrExtraction, err)
		}
		if _, err := io.Copy(part, f.Content); err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", ErrExtraction, f.Name, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("%w: build form: %v", ErrExtraction, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/extract", &body)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrExtraction, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)

	logger.Info("extraction request", slog.Int("files", len(files)), slog.Int("bytes", body.Len()))
	resp, err := c.http.Do(req)
	if err != nil {
		logger.Error("extraction send failed", slog.Any("error", err), slog.Int64("elapsed_ms", time.Since(start).Milliseconds()))
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Warn("extraction response close", slog.Any("error", err))
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrExtraction, err)
	}
	logger.Info("extraction response",
		slog.Int("status", resp.StatusCode),
		slog.Int("bytes", len(raw)),
		slog.Int64("elapsed_ms", time.Since(start).Milliseconds()),
	)
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("%w: backend returned status %d", ErrExtraction, resp.StatusCode)
	}
	if err := ValidateResponse(raw); err != nil {
		logger.Warn("extraction response rejected", slog.Any("error", err))
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	var out extractResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrExtraction, err)
	}
	for i := range out.Documents {
		doc := &out.Documents[i]
		if doc.Preview == "" {
			continue
		}
		thumb, err := Thumbnail(doc.Preview, ThumbnailWidth)
		if err != nil {
			logger.Warn("preview thumbnail skipped", slog.Int("document", i), slog.Any("error", err))
			continue
		}
		doc.Thumbnail = thumb
	}
	return out.Documents, nil
}
