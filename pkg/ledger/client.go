package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/noah-isme/teacher-transfer-api/pkg/config"
)

// ErrUnavailable wraps breaker rejections so callers can tell them from remote failures.
var ErrUnavailable = errors.New("ledger: unavailable")

// StatusError is returned when the ledger gateway answers with a non-2xx status.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ledger: unexpected status %d: %s", e.Status, e.Body)
}

// Client submits commands to the ledger gateway over HTTP behind a circuit breaker.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// ClientOption customises the client.
type ClientOption func(*Client)

// WithHTTPClient overrides the transport, mostly for tests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// NewClient builds a ledger client from configuration.
func NewClient(cfg config.LedgerConfig, logger *zap.Logger, opts ...ClientOption) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	halfOpen := cfg.BreakerHalfOpens
	if halfOpen == 0 {
		halfOpen = 1
	}

	c := &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ledger",
		MaxRequests: halfOpen,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("ledger breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State reports the breaker state, e.g. "closed" or "open".
func (c *Client) State() string {
	return c.breaker.State().String()
}

// Submit sends a single command. Context cancellation aborts the in-flight request.
func (c *Client) Submit(ctx context.Context, cmd Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.post(ctx, cmd)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

func (c *Client) RequestSchoolChange(ctx context.Context, ref Ref, schoolName string) error {
	return c.Submit(ctx, RequestSchoolChange(ref, schoolName))
}

func (c *Client) ApproveSchoolChange(ctx context.Context, ref Ref) error {
	return c.Submit(ctx, ApproveSchoolChange(ref))
}

func (c *Client) RejectSchoolChange(ctx context.Context, ref Ref) error {
	return c.Submit(ctx, RejectSchoolChange(ref))
}

func (c *Client) RegisterTeacher(ctx context.Context, ref Ref, profile Profile) error {
	return c.Submit(ctx, RegisterTeacher(ref, profile))
}

func (c *Client) RemoveTeacher(ctx context.Context, ref Ref) error {
	return c.Submit(ctx, RemoveTeacher(ref))
}

func (c *Client) post(ctx context.Context, cmd Command) error {
	body, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("ledger: encode command: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/commands", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("ledger: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ledger: %s: %w", cmd.Operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Status: resp.StatusCode, Body: string(bytes.TrimSpace(snippet))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
