package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

// ClientConfig holds the outbound HTTP settings shared by every adapter
type ClientConfig struct {
	Timeout        time.Duration
	MaxRetries     int           // retries for idempotent reads; logins and writes never retry
	RetryInterval  time.Duration // initial backoff interval
	RateLimit      float64       // requests per second per provider, 0 disables limiting
	RateLimitBurst int
	UserAgent      string

	// HTTPClient overrides the client built from Timeout
	HTTPClient *http.Client
	// Now overrides the clock used for credential expiry
	Now func() time.Time
}

// apiClient wraps http.Client with per-provider rate limiting and bounded
// retries of idempotent reads
type apiClient struct {
	provider      string
	httpClient    *http.Client
	limiter       *rate.Limiter
	maxRetries    int
	retryInterval time.Duration
	userAgent     string
	logger        *slog.Logger
}

func newAPIClient(provider string, cfg ClientConfig, defaultUserAgent string, logger *slog.Logger) *apiClient {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	retryInterval := cfg.RetryInterval
	if retryInterval <= 0 {
		retryInterval = 200 * time.Millisecond
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &apiClient{
		provider:      provider,
		httpClient:    httpClient,
		limiter:       limiter,
		maxRetries:    cfg.MaxRetries,
		retryInterval: retryInterval,
		userAgent:     userAgent,
		logger:        logger.With(slog.String("provider", provider)),
	}
}

// do sends a single request after waiting for the rate limiter
func (c *apiClient) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	return c.httpClient.Do(req)
}

// getJSON issues an idempotent GET and decodes the JSON response into out.
// Transport errors, 429 and 5xx responses are retried with exponential backoff.
func (c *apiClient) getJSON(ctx context.Context, operation, url string, header http.Header, out any) error {
	attempt := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to build %s request: %w", operation, err))
		}
		for k, v := range header {
			req.Header[k] = v
		}

		resp, err := c.do(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return fmt.Errorf("%s: failed to %s: %w", c.provider, operation, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			upstreamErr := newUpstreamError(c.provider, operation, resp)
			if upstreamErr.Temporary() {
				return upstreamErr
			}
			return backoff.Permanent(upstreamErr)
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("%s: failed to decode %s response: %w", c.provider, operation, err))
		}

		return nil
	}

	if c.maxRetries <= 0 {
		err := attempt()
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return permanent.Err
		}
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryInterval
	policy.MaxElapsedTime = 0

	notify := func(err error, wait time.Duration) {
		c.logger.Warn("Provider request failed, retrying",
			slog.String("operation", operation),
			slog.Duration("retry_after", wait),
			slog.String("error", err.Error()),
		)
	}

	return backoff.RetryNotify(attempt, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.maxRetries)), ctx), notify)
}

// isUnauthorized reports whether err is an upstream 401, meaning the cached
// credential was revoked before its local expiry
func isUnauthorized(err error) bool {
	var upstreamErr *UpstreamRequestError
	return errors.As(err, &upstreamErr) && upstreamErr.StatusCode == http.StatusUnauthorized
}
