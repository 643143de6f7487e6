package rewards

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"perk-quiz-service/internal/domain"
)

const (
	DefaultBaseURL      = "https://perk.studio/api/v2"
	DefaultActionSource = "Interactive Quiz"
	defaultTimeout      = 10 * time.Second
	defaultMaxAttempts  = 2
	initialBackoff      = 250 * time.Millisecond
)

// Options configures the rewards partner client.
type Options struct {
	BaseURL     string
	APIKey      string
	Timeout     time.Duration // per attempt
	MaxAttempts int
	HTTPClient  *http.Client
}

// HTTPError is a non-2xx answer from the rewards API.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	msg := strings.TrimSpace(e.Body)
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("rewards api: status=%d message=%s", e.StatusCode, msg)
}

// Temporary reports whether retrying the same request may succeed.
func (e *HTTPError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Client talks to the rewards partner (PUT /participants/points).
type Client struct {
	baseURL     string
	apiKey      string
	timeout     time.Duration
	maxAttempts int
	httpClient  *http.Client
	backoff     time.Duration
}

func NewClient(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, errors.New("rewards api key required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	attempts := opts.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{
		baseURL:     baseURL,
		apiKey:      apiKey,
		timeout:     timeout,
		maxAttempts: attempts,
		httpClient:  hc,
		backoff:     initialBackoff,
	}, nil
}

// AwardPoints upserts the participant's points for one action.
// Network errors, 429 and 5xx are retried up to the attempt limit.
func (c *Client) AwardPoints(ctx context.Context, award domain.PointsAward) error {
	body, err := json.Marshal(award)
	if err != nil {
		return err
	}

	var lastErr error
	backoff := c.backoff
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = c.put(ctx, "/participants/points", body)
		if lastErr == nil {
			return nil
		}
		var herr *HTTPError
		if errors.As(lastErr, &herr) && !herr.Temporary() {
			return lastErr
		}

		if attempt < c.maxAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}
	return lastErr
}

func (c *Client) put(ctx context.Context, path string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("rewards api: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return nil
}
