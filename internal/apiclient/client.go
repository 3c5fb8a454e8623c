// Package apiclient drives the ledgerdesk JSON API. It implements the intake
// backend so batches can run from a workstation against a remote server.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerdesk/ledgerdesk/internal/intake"
	"github.com/ledgerdesk/ledgerdesk/internal/invoices"
	"github.com/ledgerdesk/ledgerdesk/internal/masterdata/parties"
	"github.com/ledgerdesk/ledgerdesk/internal/platform/httpx"
)

// ErrUnexpectedStatus wraps responses that map to no known error.
var ErrUnexpectedStatus = errors.New("unexpected api status")

// Client talks to a ledgerdesk server.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *slog.Logger
}

var (
	_ intake.Backend   = (*Client)(nil)
	_ intake.Directory = (*Client)(nil)
)

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

// WithToken sends token as a bearer credential.
func WithToken(token string) Option {
	return func(c *Client) { c.token = strings.TrimSpace(token) }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New builds a Client for the server at baseURL.
func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/") + "/api/v1",
		http:    &http.Client{Timeout: timeout},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type listEnvelope[T any] struct {
	Data []T `json:"data"`
}

func partiesPath(kind parties.Kind) string {
	return "/" + string(kind) + "s"
}

// ListParties returns every party of kind.
func (c *Client) ListParties(ctx context.Context, kind parties.Kind) ([]parties.Party, error) {
	var out listEnvelope[parties.Party]
	if err := c.do(ctx, http.MethodGet, partiesPath(kind), nil, &out); err != nil {
		return nil, fmt.Errorf("list %ss: %w", kind, err)
	}
	return out.Data, nil
}

// GetParty loads one party.
func (c *Client) GetParty(ctx context.Context, kind parties.Kind, id int64) (parties.Party, error) {
	var out parties.Party
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("%s/%d", partiesPath(kind), id), nil, &out)
	return out, err
}

// CreateParty creates a supplier or customer.
func (c *Client) CreateParty(ctx context.Context, req parties.CreatePartyRequest) (parties.Party, error) {
	var out parties.Party
	if err := c.do(ctx, http.MethodPost, partiesPath(req.Kind), req, &out); err != nil {
		return parties.Party{}, fmt.Errorf("create %s %q: %w", req.Kind, req.Name, err)
	}
	return out, nil
}

// CreateInvoice creates an invoice under its direction's route.
func (c *Client) CreateInvoice(ctx context.Context, input invoices.CreateInvoiceInput) (invoices.Invoice, error) {
	if !input.Direction.Valid() {
		return invoices.Invoice{}, fmt.Errorf("%w: unknown direction %q", httpx.ErrValidation, input.Direction)
	}
	var out invoices.Invoice
	if err := c.do(ctx, http.MethodPost, "/invoices/"+string(input.Direction), input, &out); err != nil {
		return invoices.Invoice{}, err
	}
	return out, nil
}

// GetInvoice loads one invoice.
func (c *Client) GetInvoice(ctx context.Context, id int64) (invoices.Invoice, error) {
	var out invoices.Invoice
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/invoices/%d", id), nil, &out)
	return out, err
}

// CreatePart books a part against an external invoice.
func (c *Client) CreatePart(ctx context.Context, input invoices.CreatePartInput) (invoices.Part, error) {
	var out invoices.Part
	if err := c.do(ctx, http.MethodPost, "/parts", input, &out); err != nil {
		return invoices.Part{}, err
	}
	return out, nil
}

// ListParts returns the parts of an invoice.
func (c *Client) ListParts(ctx context.Context, invoiceID int64) ([]invoices.Part, error) {
	var out listEnvelope[invoices.Part]
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/invoices/%d/parts", invoiceID), nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		payload = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	reqID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	c.logger.Debug("api call",
		slog.String("req_id", reqID),
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Int64("elapsed_ms", time.Since(start).Milliseconds()),
	)

	if resp.StatusCode/100 != 2 {
		return decodeProblem(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeProblem(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	problem := httpx.ProblemDetail{Status: resp.StatusCode, Title: http.StatusText(resp.StatusCode)}
	if len(raw) > 0 {
		var decoded httpx.ProblemDetail
		if json.Unmarshal(raw, &decoded) == nil && decoded.Title != "" {
			problem = decoded
			problem.Status = resp.StatusCode
		}
	}
	sentinel := httpx.ErrorForStatus(resp.StatusCode)
	if sentinel == nil {
		sentinel = ErrUnexpectedStatus
	}
	return fmt.Errorf("%w: %w", sentinel, problem)
}
