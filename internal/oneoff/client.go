// Package oneoff talks to the external "fire once at T" scheduler and
// wraps it in the soft-failure bridge the reconciler uses.
package oneoff

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/dhima/schedule-reconciler/internal/metrics"
	"github.com/dhima/schedule-reconciler/internal/models"
	"github.com/dhima/schedule-reconciler/internal/tracing"
)

// ErrNotFound is returned when the scheduler no longer knows an event id.
var ErrNotFound = errors.New("one-off event not found")

// Client is the low-level scheduler API.
type Client interface {
	CreateScheduledEvent(ctx context.Context, req CreateRequest) (string, error)
	DeleteScheduledEvent(ctx context.Context, externalID string) error
}

// CreateRequest asks the scheduler to call the webhook once at FireAt.
type CreateRequest struct {
	FireAt  time.Time
	Payload models.OneOffPayload
	Comment string
}

// APIError is a non-2xx scheduler response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("one-off scheduler returned %d: %s", e.StatusCode, e.Body)
}

// HTTPClientConfig configures HTTPClient.
type HTTPClientConfig struct {
	Endpoint          string
	AdminSecret       string
	AdminSecretHeader string

	// WebhookURL receives the firing; the secret header is attached to
	// every registration so the webhook can authenticate the call.
	WebhookURL          string
	WebhookSecretHeader string
	WebhookSecret       string

	Timeout   time.Duration
	RateLimit float64 // requests per second
}

// HTTPClient speaks the metadata-API dialect of one-off scheduled events:
// {"type": "create_scheduled_event", "args": {...}}.
type HTTPClient struct {
	cfg     HTTPClientConfig
	http    *http.Client
	limiter *rate.Limiter
	metrics metrics.Sink
}

func NewHTTPClient(cfg HTTPClientConfig, sink metrics.Sink) *HTTPClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.AdminSecretHeader == "" {
		cfg.AdminSecretHeader = "X-Admin-Secret"
	}
	limit := rate.Inf
	burst := 1
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
		burst = max(1, int(cfg.RateLimit))
	}
	if sink == nil {
		sink = metrics.NewNoopSink()
	}
	return &HTTPClient{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, burst),
		metrics: sink,
	}
}

type metadataRequest struct {
	Type string `json:"type"`
	Args any    `json:"args"`
}

type header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type createArgs struct {
	Webhook    string               `json:"webhook"`
	ScheduleAt string               `json:"schedule_at"`
	Payload    models.OneOffPayload `json:"payload"`
	Headers    []header             `json:"headers,omitempty"`
	Comment    string               `json:"comment,omitempty"`
}

type deleteArgs struct {
	Type    string `json:"type"`
	EventID string `json:"event_id"`
}

type createResponse struct {
	Message string `json:"message"`
	EventID string `json:"event_id"`
}

// CreateScheduledEvent registers a one-shot webhook call and returns its id.
func (c *HTTPClient) CreateScheduledEvent(ctx context.Context, req CreateRequest) (string, error) {
	args := createArgs{
		Webhook:    c.cfg.WebhookURL,
		ScheduleAt: req.FireAt.UTC().Format(time.RFC3339),
		Payload:    req.Payload,
		Comment:    req.Comment,
	}
	if c.cfg.WebhookSecret != "" {
		args.Headers = []header{{Name: c.cfg.WebhookSecretHeader, Value: c.cfg.WebhookSecret}}
	}

	body, err := c.do(ctx, "create", metadataRequest{Type: "create_scheduled_event", Args: args})
	if err != nil {
		return "", err
	}

	var resp createResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode create response: %w", err)
	}
	if resp.EventID == "" {
		return "", fmt.Errorf("create response carried no event_id: %s", string(body))
	}
	return resp.EventID, nil
}

// DeleteScheduledEvent cancels a registration. ErrNotFound means it already fired or was removed.
func (c *HTTPClient) DeleteScheduledEvent(ctx context.Context, externalID string) error {
	_, err := c.do(ctx, "delete", metadataRequest{
		Type: "delete_scheduled_event",
		Args: deleteArgs{Type: "one_off", EventID: externalID},
	})
	return err
}

func (c *HTTPClient) do(ctx context.Context, operation string, payload metadataRequest) (_ []byte, err error) {
	ctx, span := tracing.StartClientSpan(ctx, operation, c.cfg.Endpoint)
	defer func() { tracing.End(span, err) }()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", operation, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.AdminSecret != "" {
		req.Header.Set(c.cfg.AdminSecretHeader, c.cfg.AdminSecret)
	}
	tracing.InjectHeaders(ctx, req.Header)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.OneOffRequestObserved(operation, metrics.ClassifyStatus(0), time.Since(start))
		return nil, fmt.Errorf("%s scheduled event: %w", operation, err)
	}
	defer resp.Body.Close()
	c.metrics.OneOffRequestObserved(operation, metrics.ClassifyStatus(resp.StatusCode), time.Since(start))

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", operation, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
