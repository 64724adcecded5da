package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"catalog-sync/internal/httpx"
	"catalog-sync/internal/logger"
	"catalog-sync/internal/metrics"
)

// Page is the envelope shared by the paginated catalog APIs.
type Page[T any] struct {
	Count   int     `json:"count"`
	Next    *string `json:"next"`
	Results []T     `json:"results"`
}

func (p Page[T]) HasNext() bool { return p.Next != nil && *p.Next != "" }

// PageCount is the number of pages needed for count records.
func PageCount(count, pageSize int) int {
	if count <= 0 || pageSize <= 0 {
		return 0
	}
	return (count + pageSize - 1) / pageSize
}

type Options struct {
	AccessToken string
	TokenType   string
	Timeout     time.Duration
	MaxAttempts int
}

// Client is the authenticated JSON transport for one upstream API.
type Client struct {
	Name    string
	BaseURL string
	HTTP    *http.Client
	Retry   httpx.RetryConfig

	authorization string
	breaker       *gobreaker.CircuitBreaker[[]byte]
	log           *logger.Logger
}

func NewClient(name, baseURL string, opts Options, log *logger.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	retry := httpx.DefaultRetryConfig()
	if opts.MaxAttempts > 0 {
		retry.MaxAttempts = opts.MaxAttempts
	}
	c := &Client{
		Name:    name,
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: opts.Timeout},
		Retry:   retry,
		log:     log.With("client", name),
	}
	c.Retry.OnRetry = c.onRetry
	if opts.AccessToken != "" {
		tokenType := opts.TokenType
		if tokenType == "" {
			tokenType = "JWT"
		}
		c.authorization = tokenType + " " + opts.AccessToken
	}

	metrics.UpstreamBreakerState.WithLabelValues(name).Set(0)
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || isClientError(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn("upstream breaker state change", "from", from.String(), "to", to.String())
			metrics.UpstreamBreakerState.WithLabelValues(name).Set(float64(to))
		},
	})
	return c
}

func (c *Client) onRetry(r httpx.Retry) {
	reason := "network"
	var herr *httpx.HTTPError
	if errors.As(r.Err, &herr) {
		reason = "status"
		if herr.Throttled() {
			reason = "throttled"
		}
	}
	metrics.UpstreamRetries.WithLabelValues(c.Name, reason).Inc()
	c.log.Warn("retrying upstream request", "attempt", r.Attempt, "wait", r.Wait, "reason", reason, "error", r.Err)
}

// isClientError marks 4xx answers as the caller's problem, not upstream health.
func isClientError(err error) bool {
	var herr *httpx.HTTPError
	return errors.As(err, &herr) && herr.StatusCode >= 400 && herr.StatusCode < 500
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// GetJSON fetches path relative to BaseURL and decodes the body into out.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	target := c.endpoint(path, query)
	body, err := c.breaker.Execute(func() ([]byte, error) {
		_, body, err := httpx.DoWithRetry(ctx, c.HTTP, func(ctx context.Context) (*http.Request, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
			if err != nil {
				return nil, err
			}
			req.Header.Set("Accept", "application/json")
			req.Header.Set("Accept-Encoding", httpx.AcceptEncoding)
			if c.authorization != "" {
				req.Header.Set("Authorization", c.authorization)
			}
			return req, nil
		}, c.Retry)
		return body, err
	})
	if err != nil {
		return fmt.Errorf("%s: GET %s: %w", c.Name, target, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: decode %s: %w", c.Name, target, err)
	}
	return nil
}

// Fetch downloads an absolute URL without credentials. Non-2xx statuses are
// returned, not treated as errors.
func (c *Client) Fetch(ctx context.Context, rawURL string) (int, []byte, error) {
	resp, body, err := httpx.DoWithRetry(ctx, c.HTTP, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	}, c.Retry)
	var herr *httpx.HTTPError
	if errors.As(err, &herr) {
		return herr.StatusCode, herr.Body, nil
	}
	if err != nil {
		return 0, nil, fmt.Errorf("%s: GET %s: %w", c.Name, rawURL, err)
	}
	return resp.StatusCode, body, nil
}
