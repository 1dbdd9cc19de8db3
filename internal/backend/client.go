// Package backend implements the HTTP client for the ticketing/order API.
// All failures are mapped into the apperr taxonomy so raw transport errors
// never reach end users.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"ordergate/core/logger"
	"ordergate/internal/apperr"
)

const (
	defaultTimeout  = 8 * time.Second
	maxResponseSize = 2 * 1024 * 1024
)

// Config carries the settings required to reach the backend API.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client talks JSON to the backend API using an X-Api-Key header.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// User is an account entry from the backend user listing.
type User struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Order is the status snapshot of a single order.
type Order struct {
	ID          int64  `json:"id"`
	ServiceName string `json:"service_name"`
	Status      string `json:"status"`
	Quantity    int64  `json:"quantity"`
	Remains     int64  `json:"remains"`
	Created     string `json:"created"`
	Link        string `json:"link"`
}

// envelope is the common response wrapper; error_code zero means success.
type envelope struct {
	ErrorCode    int             `json:"error_code"`
	ErrorMessage string          `json:"error_message"`
	Data         json.RawMessage `json:"data"`
}

// NewClient validates the configuration and returns a ready client.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	key := strings.TrimSpace(cfg.APIKey)
	if base == "" {
		return nil, errors.New("backend: api url is empty")
	}
	if key == "" {
		return nil, errors.New("backend: api key is empty")
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("backend: parse api url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("backend: invalid api url: %s", base)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		baseURL:    strings.TrimRight(base, "/"),
		apiKey:     key,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// FindUserByIdentifier fetches the full user listing and matches identifier
// case-sensitively against username or email.
func (c *Client) FindUserByIdentifier(ctx context.Context, identifier string) (User, error) {
	var listing struct {
		List []User `json:"list"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/users", nil, &listing); err != nil {
		return User{}, err
	}
	for _, u := range listing.List {
		if u.Username == identifier || u.Email == identifier {
			return u, nil
		}
	}
	return User{}, apperr.New(apperr.CodeNotFound, "user not found")
}

// CreateVerificationTicket opens a support ticket tracing the verification
// attempt and returns its identifier.
func (c *Client) CreateVerificationTicket(ctx context.Context, username string) (string, error) {
	req := map[string]string{
		"username": username,
		"subject":  "Account verification",
		"message":  "Verification code requested via messaging gateway.",
	}
	var data struct {
		TicketID string `json:"ticket_id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/tickets/add", req, &data); err != nil {
		return "", err
	}
	if data.TicketID == "" {
		return "", apperr.New(apperr.CodeRemoteFailure, "tickets/add returned no ticket id")
	}
	return data.TicketID, nil
}

// ResolveTicket updates the status of an existing ticket. Callers treat this
// as best-effort bookkeeping.
func (c *Client) ResolveTicket(ctx context.Context, ticketID, status, message string) error {
	req := map[string]string{
		"ticket_id": ticketID,
		"status":    status,
		"message":   message,
	}
	return c.doJSON(ctx, http.MethodPost, "/tickets/update", req, nil)
}

// FetchOrder returns the status snapshot for a single order.
func (c *Client) FetchOrder(ctx context.Context, orderID string) (Order, error) {
	var order Order
	if err := c.doJSON(ctx, http.MethodGet, "/orders/"+url.PathEscape(orderID), nil, &order); err != nil {
		return Order{}, err
	}
	return order, nil
}

// doJSON performs one request/response cycle: marshal, send with auth and
// correlation headers, unwrap the envelope, and decode data into out.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return apperr.Wrap(apperr.CodeRemoteFailure, "marshal request", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return apperr.Wrap(apperr.CodeRemoteFailure, "build request", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("X-Request-Id", requestID)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logRequest(ctx, method, path, requestID, 0, start, err)
		return apperr.Wrap(apperr.CodeRemoteFailure, "execute request", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		c.logRequest(ctx, method, path, requestID, resp.StatusCode, start, err)
		return apperr.Wrap(apperr.CodeRemoteFailure, "read response", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		c.logRequest(ctx, method, path, requestID, resp.StatusCode, start, nil)
		return apperr.New(apperr.CodeNotFound, "resource not found")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("unexpected status %s", resp.Status)
		c.logRequest(ctx, method, path, requestID, resp.StatusCode, start, err)
		return apperr.Wrap(apperr.CodeRemoteFailure, "unexpected http status", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.logRequest(ctx, method, path, requestID, resp.StatusCode, start, err)
		return apperr.Wrap(apperr.CodeRemoteFailure, "decode response", err)
	}
	if env.ErrorCode != 0 {
		// The API message stays in logs; users only ever see the generic text.
		err := fmt.Errorf("error_code=%d message=%q", env.ErrorCode, env.ErrorMessage)
		c.logRequest(ctx, method, path, requestID, resp.StatusCode, start, err)
		return apperr.Wrap(apperr.CodeRemoteFailure, "application error", err)
	}

	c.logRequest(ctx, method, path, requestID, resp.StatusCode, start, nil)

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return apperr.Wrap(apperr.CodeRemoteFailure, "decode response data", err)
	}
	return nil
}

func (c *Client) logRequest(ctx context.Context, method, path, requestID string, status int, start time.Time, err error) {
	attrs := []slog.Attr{
		slog.String("status", logger.Status(err)),
		slog.String("method", method),
		slog.String("path", path),
		slog.String("request_id", requestID),
		slog.Duration("duration", logger.Took(start)),
	}
	if status != 0 {
		attrs = append(attrs, slog.Int("http_code", status))
	}
	if err != nil {
		attrs = append(attrs, slog.String("err", logger.SanitizeLimit(err.Error(), 256)))
		logger.Warn(ctx, "backend", "request.fail", attrs...)
		return
	}
	logger.Debug(ctx, "backend", "request.done", attrs...)
}
