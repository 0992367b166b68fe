// Package s2s is the HTTP link between the two authorities. Payloads carry
// digests, election ids, definitions and aggregated results only.
package s2s

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ballotbox/election-service/internal/api/dto"
	"github.com/ballotbox/election-service/internal/auth"
	"github.com/ballotbox/election-service/internal/config"
)

// RemoteError is a non-2xx answer from the peer.
type RemoteError struct {
	Status    int
	Code      string
	Message   string
	Retryable bool
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("peer returned %d %s: %s", e.Status, e.Code, e.Message)
}

// Temporary reports whether retrying could help: the peer flagged the error
// retryable, or it failed server-side. A bare 429 without the envelope counts
// as retryable too.
func (e *RemoteError) Temporary() bool {
	if e.Retryable || e.Status >= 500 {
		return true
	}
	return e.Code == "" && e.Status == http.StatusTooManyRequests
}

// RemoteCode extracts the peer's error code, if err came from the peer.
func RemoteCode(err error) string {
	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote.Code
	}
	return ""
}

// Client performs authenticated JSON calls with a per-call timeout.
type Client struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	maxRetries int
	backoff    time.Duration
	logger     *zap.Logger
}

// NewClient builds a client for the peer described by cfg.
func NewClient(cfg config.S2SConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Client{
		baseURL:    cfg.PeerURL,
		apiKey:     cfg.APIKey,
		timeout:    timeout,
		maxRetries: cfg.MaxRetries,
		backoff:    100 * time.Millisecond,
		logger:     logger,
	}
}

type call struct {
	method string
	path   string
	body   any
	out    any
	retry  bool
}

func (c *Client) do(ctx context.Context, req call) error {
	attempts := 1
	if req.retry && c.maxRetries > 0 {
		attempts += c.maxRetries
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = c.once(ctx, req)
		if lastErr == nil {
			return nil
		}
		var remote *RemoteError
		if errors.As(lastErr, &remote) && !remote.Temporary() {
			return lastErr
		}
		if attempt == attempts {
			break
		}
		c.logger.Warn("s2s call failed; retrying",
			zap.String("method", req.method),
			zap.String("path", req.path),
			zap.Int("attempt", attempt),
			zap.Error(lastErr))

		timer := time.NewTimer(time.Duration(attempt) * c.backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}

func (c *Client) once(ctx context.Context, req call) error {
	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	if timeout <= 0 {
		return context.DeadlineExceeded
	}

	var agent *fiber.Agent
	url := c.baseURL + req.path
	switch req.method {
	case fiber.MethodGet:
		agent = fiber.Get(url)
	case fiber.MethodPut:
		agent = fiber.Put(url)
	default:
		agent = fiber.Post(url)
	}
	agent.Set(auth.ServiceKeyHeader, c.apiKey).
		Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON).
		Timeout(timeout)
	if req.body != nil {
		agent.JSON(req.body)
	}

	status, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("%s %s: %w", req.method, req.path, errors.Join(errs...))
	}
	if status < 200 || status > 299 {
		remote := &RemoteError{Status: status}
		var envelope dto.ErrorEnvelope
		if err := json.Unmarshal(body, &envelope); err == nil {
			remote.Code = envelope.Error.Code
			remote.Message = envelope.Error.Message
			remote.Retryable = envelope.Error.Retryable
		}
		return remote
	}
	if req.out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, req.out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.path, err)
	}
	return nil
}
