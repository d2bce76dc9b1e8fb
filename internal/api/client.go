// Package api is the HTTP client for the medical-advice backend. It maps
// transport and status failures onto application errors and clears the
// stored token when the backend rejects it.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/gmsas95/carecache/internal/config"
	apperrors "github.com/gmsas95/carecache/internal/errors"
)

const (
	msgNetwork      = "Network error"
	msgUnauthorized = "Session expired. Please log in again."
)

// StatusError is a non-2xx response from the backend
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.Status, e.Message)
}

// StatusCode returns the HTTP status carried by err, or 0
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return 0
}

// errServerFault marks 5xx responses so the breaker counts them
var errServerFault = errors.New("server fault")

type response struct {
	status int
	body   []byte
}

// Client provides backend API access
type Client struct {
	baseURL string
	client  *http.Client
	tokens  TokenSource
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[*response]
	logger  *zap.Logger
}

// NewClient creates a new API client. tokens may be nil for anonymous use.
func NewClient(cfg config.APIConfig, tokens TokenSource, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RateRPS > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateRPS), burst)
	}

	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	breaker := gobreaker.NewCircuitBreaker[*response](gobreaker.Settings{
		Name:    "backend",
		Timeout: cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		tokens:  tokens,
		limiter: limiter,
		breaker: breaker,
		logger:  logger,
	}
}

// do sends a request and returns the body of a 2xx response. Every failure
// is an *apperrors.AppError.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload any) ([]byte, error) {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, "failed to marshal request")
		}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrTransport.Code, msgNetwork)
		}
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	resp, err := c.breaker.Execute(func() (*response, error) {
		return c.roundTrip(ctx, method, endpoint, body)
	})
	if err != nil && !errors.Is(err, errServerFault) {
		c.logger.Debug("Request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, apperrors.Wrap(err, apperrors.ErrTransport.Code, msgNetwork)
	}

	if resp.status >= 200 && resp.status < 300 {
		return resp.body, nil
	}
	return nil, c.statusError(ctx, resp)
}

func (c *Client) roundTrip(ctx context.Context, method, endpoint string, body []byte) (*response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			c.logger.Warn("Failed to read auth token", zap.Error(err))
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	httpResp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	resp := &response{status: httpResp.StatusCode, body: data}
	if resp.status >= 500 {
		return resp, errServerFault
	}
	return resp, nil
}

func (c *Client) statusError(ctx context.Context, resp *response) error {
	cause := &StatusError{Status: resp.status, Message: errorMessage(resp.body, resp.status)}

	switch {
	case resp.status == http.StatusUnauthorized:
		if c.tokens != nil {
			if err := c.tokens.Clear(ctx); err != nil {
				c.logger.Warn("Failed to clear auth token", zap.Error(err))
			}
		}
		c.logger.Info("Backend rejected credentials")
		return apperrors.New(apperrors.ErrUnauthorized.Code, msgUnauthorized, cause)
	case resp.status == http.StatusTooManyRequests:
		return apperrors.New(apperrors.ErrRateLimited.Code, cause.Message, cause)
	case resp.status >= 500:
		return apperrors.New(apperrors.ErrServiceState.Code, cause.Message, cause)
	default:
		return apperrors.New(apperrors.ErrServer.Code, cause.Message, cause)
	}
}

// errorMessage extracts the backend's error text from a failure body
func errorMessage(body []byte, status int) string {
	var payload struct {
		Error   string `json:"error"`
		Detail  any    `json:"detail"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if detail, ok := payload.Detail.(string); ok && detail != "" {
			return detail
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return fmt.Sprintf("status %d", status)
}

// envelope is the success flag most endpoints wrap their payload in
type envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func (e envelope) failure(fallback string) error {
	msg := e.Error
	if msg == "" {
		msg = fallback
	}
	return apperrors.New(apperrors.ErrServer.Code, msg)
}

func decode(body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return apperrors.Wrap(err, apperrors.ErrServer.Code, "invalid response from server")
	}
	return nil
}
