package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"
)

// Common errors.
var (
	ErrNotFound     = errors.New("http: resource not found")
	ErrForbidden    = errors.New("http: access forbidden")
	ErrUnauthorized = errors.New("http: unauthorized")
	ErrServerError  = errors.New("http: server error")
	ErrThrottled    = errors.New("http: too many requests")
	ErrEmptyBody    = errors.New("http: empty response body")
)

// TransientError is a failed attempt that may succeed if retried: a
// transport error, a timeout, or a non-2xx response.
type TransientError struct {
	URL        string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transient: %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transient: %s: %v", e.URL, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// Options configures the HTTP client.
type Options struct {
	// MaxIdleConnsPerHost sets the maximum idle connections per host.
	// Default: 4
	MaxIdleConnsPerHost int

	// Timeout bounds a single request, including reading the body.
	// Default: 30s
	Timeout time.Duration

	// PolitenessDelay is the fixed wait before every request.
	// Default: 1s
	PolitenessDelay time.Duration

	// PolitenessJitter adds a random wait in [0, PolitenessJitter) on top
	// of PolitenessDelay.
	// Default: 2s
	PolitenessJitter time.Duration

	// RetryAttempts is the total number of attempts, including the first.
	// Default: 2
	RetryAttempts int

	// RetryBackoff is the initial backoff duration.
	// Default: 5s
	RetryBackoff time.Duration

	// RetryMaxBackoff is the maximum backoff duration.
	// Default: 30s
	RetryMaxBackoff time.Duration

	// UserAgent is sent with every request.
	UserAgent string
}

// DefaultOptions returns options tuned for a shared public data server.
func DefaultOptions() Options {
	return Options{
		MaxIdleConnsPerHost: 4,
		Timeout:             30 * time.Second,
		PolitenessDelay:     time.Second,
		PolitenessJitter:    2 * time.Second,
		RetryAttempts:       2,
		RetryBackoff:        5 * time.Second,
		RetryMaxBackoff:     30 * time.Second,
		UserAgent:           "gridfetch/1",
	}
}

// Client is an HTTP client that paces its requests.
type Client struct {
	client *http.Client
	opts   Options

	// sleep waits for d or until ctx is done. Replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a new HTTP client with the given options.
func NewClient(opts Options) *Client {
	if opts.MaxIdleConnsPerHost <= 0 {
		opts.MaxIdleConnsPerHost = 4
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 1
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConnsPerHost: opts.MaxIdleConnsPerHost,
		MaxIdleConns:        opts.MaxIdleConnsPerHost * 2,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Client{
		client: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
		},
		opts:  opts,
		sleep: sleepCtx,
	}
}

// Options returns the options the client was built with.
func (c *Client) Options() Options {
	return c.opts
}

// Get performs a single GET attempt after the politeness delay. The caller
// must close the returned body. Any failure to obtain a 2xx response is a
// *TransientError.
func (c *Client) Get(ctx context.Context, url string) (io.ReadCloser, error) {
	if err := c.politeness(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.opts.UserAgent != "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		// A cancelled run is not a transient failure of the job.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransientError{URL: url, Err: err}
	}

	if err := checkStatusCode(resp.StatusCode); err != nil {
		resp.Body.Close()
		return nil, &TransientError{URL: url, StatusCode: resp.StatusCode, Err: err}
	}

	return resp.Body, nil
}

// Retry calls fn until it succeeds, returns a non-transient error, or the
// attempt budget is spent, waiting with exponential backoff between
// attempts. It returns the number of attempts made and the last error.
func (c *Client) Retry(ctx context.Context, fn func(ctx context.Context, attempt int) error) (int, error) {
	var lastErr error

	for attempt := 1; attempt <= c.opts.RetryAttempts; attempt++ {
		if attempt > 1 {
			if err := c.backoff(ctx, attempt-1); err != nil {
				return attempt - 1, err
			}
		}

		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return attempt, nil
		}
		if !IsTransient(lastErr) {
			return attempt, lastErr
		}
	}

	return c.opts.RetryAttempts, lastErr
}

// politeness waits the fixed delay plus random jitter before a request.
func (c *Client) politeness(ctx context.Context) error {
	d := c.opts.PolitenessDelay
	if c.opts.PolitenessJitter > 0 {
		d += time.Duration(rand.Int63n(int64(c.opts.PolitenessJitter)))
	}
	return c.sleep(ctx, d)
}

// backoff waits for an exponentially increasing duration with jitter.
func (c *Client) backoff(ctx context.Context, retry int) error {
	backoff := c.opts.RetryBackoff * time.Duration(1<<uint(retry-1))
	if c.opts.RetryMaxBackoff > 0 && backoff > c.opts.RetryMaxBackoff {
		backoff = c.opts.RetryMaxBackoff
	}

	// Add jitter: 0.5 to 1.5 of backoff
	jitter := time.Duration(float64(backoff) * (0.5 + rand.Float64()))

	return c.sleep(ctx, jitter)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// checkStatusCode returns an appropriate error for non-success status codes.
func checkStatusCode(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusForbidden:
		return ErrForbidden
	case code == http.StatusUnauthorized:
		return ErrUnauthorized
	case code == http.StatusTooManyRequests:
		return ErrThrottled
	case code >= 500:
		return ErrServerError
	default:
		return fmt.Errorf("unexpected status code: %d", code)
	}
}
