package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Retry and backoff constants.
const (
	maxRetries     = 5
	baseBackoff    = 1 * time.Second
	maxBackoff     = 60 * time.Second
	backoffFactor  = 2.0
	jitterFraction = 0.25
	userAgent      = "minidrive-go/0.1"
)

// CredentialSource provides the current bearer credential, or reports that
// no session is present. Defined at the consumer per Go convention "accept
// interfaces, return structs" — the session package provides the real
// implementation.
type CredentialSource interface {
	Credential() (string, bool)
}

// Client is an HTTP client for the Mini Drive server. It handles request
// construction, bearer authentication, retry with exponential backoff, and
// error classification. Every 401 response invokes the auth-failure hook
// (session teardown) before the call itself fails — callers always see
// their own error and never act on stale data.
type Client struct {
	baseURL    string
	httpClient *http.Client
	creds      CredentialSource
	logger     *slog.Logger

	// onAuthFailure is invoked for every authentication-failure response.
	// The hook itself must be idempotent (session.Store.Clear is); the
	// client makes no attempt to deduplicate concurrent failures.
	onAuthFailure func()

	// sleepFunc is called to wait between retries. Defaults to timeSleep.
	// Tests override this to avoid real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewClient creates a Mini Drive API client. creds may be nil for a client
// that only serves the login and signup endpoints. onAuthFailure may be nil
// when no session teardown is wanted (tests, bootstrap).
func NewClient(baseURL string, httpClient *http.Client, creds CredentialSource, onAuthFailure func(), logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		baseURL:       baseURL,
		httpClient:    httpClient,
		creds:         creds,
		onAuthFailure: onAuthFailure,
		logger:        logger,
		sleepFunc:     timeSleep,
	}
}

// Do executes an HTTP request against the server. The path is appended to
// the client's base URL. A non-nil body is sent as application/json on
// every attempt. The caller is responsible for closing the response body
// on success.
func (c *Client) Do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	return c.do(ctx, method, path, body, "application/json")
}

// do is the retrying request loop backing Do. Uploads pass their own
// content type (multipart); everything else is JSON.
func (c *Client) do(ctx context.Context, method, path string, body []byte, contentType string) (*http.Response, error) {
	url := c.baseURL + path
	reqID := uuid.NewString()

	var attempt int
	for {
		resp, err := c.doOnce(ctx, method, url, reqID, body, contentType)
		if err != nil {
			// Context cancellation is not retryable.
			if ctx.Err() != nil {
				return nil, fmt.Errorf("api: request canceled: %w", ctx.Err())
			}

			// Network errors are retryable.
			if attempt < maxRetries {
				backoff := c.calcBackoff(attempt)
				c.logger.Warn("retrying after network error",
					slog.String("method", method),
					slog.String("path", path),
					slog.Int("attempt", attempt+1),
					slog.Duration("backoff", backoff),
					slog.String("error", err.Error()),
				)

				if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
					return nil, fmt.Errorf("api: request canceled: %w", sleepErr)
				}

				attempt++

				continue
			}

			return nil, fmt.Errorf("api: %s %s failed after %d retries: %w", method, path, maxRetries, err)
		}

		// 2xx — success.
		if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
			c.logger.Debug("request succeeded",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("status", resp.StatusCode),
			)

			return resp, nil
		}

		// Read and close body for error responses.
		errBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if readErr != nil {
			errBody = []byte("(failed to read response body)")
		}

		if isRetryable(resp.StatusCode) && attempt < maxRetries {
			backoff := c.retryBackoff(resp, attempt)
			c.logger.Warn("retrying after HTTP error",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff),
			)

			if err := c.sleepFunc(ctx, backoff); err != nil {
				return nil, fmt.Errorf("api: request canceled: %w", err)
			}

			attempt++

			continue
		}

		sentinel := classifyStatus(resp.StatusCode)

		// Authentication failure tears the session down. The hook runs for
		// every failing call — idempotence lives in the session store — and
		// the call still fails individually so the caller never proceeds on
		// stale data. Login and signup are exempt: a 401 there means bad
		// credentials, not an expired session.
		if resp.StatusCode == http.StatusUnauthorized && c.onAuthFailure != nil && !strings.HasPrefix(path, "/auth/") {
			c.logger.Info("authentication failure, tearing down session",
				slog.String("method", method),
				slog.String("path", path),
			)
			c.onAuthFailure()
		}

		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			RequestID:  reqID,
			Message:    extractMessage(errBody),
			Err:        sentinel,
		}

		if attempt > 0 {
			c.logger.Error("request failed after retries",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempts", attempt+1),
			)
		}

		return nil, apiErr
	}
}

// doOnce executes a single HTTP request (no retry). body is materialized
// into a fresh reader on each attempt so retries never send a drained body.
func (c *Client) doOnce(ctx context.Context, method, url, reqID string, body []byte, contentType string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	if c.creds != nil {
		if cred, ok := c.creds.Credential(); ok {
			req.Header.Set("Authorization", "Bearer "+cred)
		}
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Request-ID", reqID)

	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}

	return c.httpClient.Do(req)
}

// getJSON performs a GET and decodes the JSON response into out.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	resp, err := c.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("api: decoding response for %s: %w", path, err)
	}

	return nil
}

// postJSON performs a POST with a JSON body. When out is non-nil the JSON
// response is decoded into it; otherwise the body is discarded.
func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	var body []byte

	if in != nil {
		var err error

		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("api: encoding request for %s: %w", path, err)
		}
	}

	resp, err := c.Do(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("api: decoding response for %s: %w", path, err)
	}

	return nil
}

// delete performs a DELETE and discards the response body.
func (c *Client) delete(ctx context.Context, path string) error {
	resp, err := c.Do(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, resp.Body)

	return nil
}

// serverMessage is the error envelope the server uses for all failures.
type serverMessage struct {
	Message string `json:"message"`
}

// extractMessage pulls the human-readable message out of a server error
// body, falling back to the raw body when it is not the JSON envelope.
func extractMessage(body []byte) string {
	var sm serverMessage
	if err := json.Unmarshal(body, &sm); err == nil && sm.Message != "" {
		return sm.Message
	}

	return string(body)
}

// retryBackoff returns the backoff duration for a retryable response.
// For 429 responses with a Retry-After header, that value is used.
func (c *Client) retryBackoff(resp *http.Response, attempt int) time.Duration {
	if resp.StatusCode == http.StatusTooManyRequests {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
				return time.Duration(seconds) * time.Second
			}
		}
	}

	return c.calcBackoff(attempt)
}

// calcBackoff computes exponential backoff with ±25% jitter.
func (c *Client) calcBackoff(attempt int) time.Duration {
	backoff := float64(baseBackoff) * math.Pow(backoffFactor, float64(attempt))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	jitter := backoff * jitterFraction * (rand.Float64()*2 - 1) //nolint:gosec // jitter does not need crypto rand
	backoff += jitter

	return time.Duration(backoff)
}

// timeSleep waits for the given duration or until the context is canceled.
// It is the default sleepFunc for Client.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
