// Package docfetch retrieves companion documents with per-source rate
// limiting and a linear-backoff retry policy.
package docfetch

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BD4L/breachwatch/internal/metrics"
)

// Config controls fetch behavior for one source.
type Config struct {
	// SourceID labels metrics and logs.
	SourceID   string
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	// MinDelay/MaxDelay bound the jittered inter-request delay applied
	// before every network call against the source's host.
	MinDelay time.Duration
	MaxDelay time.Duration
	// BackoffStep is the linear backoff unit between retry attempts.
	BackoffStep time.Duration
}

func (c *Config) defaults() {
	if c.UserAgent == "" {
		c.UserAgent = "breachwatch/0.1"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.MinDelay <= 0 {
		c.MinDelay = 500 * time.Millisecond
	}
	if c.MaxDelay < c.MinDelay {
		c.MaxDelay = c.MinDelay
	}
	if c.BackoffStep <= 0 {
		c.BackoffStep = 1 * time.Second
	}
}

// StatusError reports a non-success HTTP status.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d", e.Code)
}

// ErrMalformedURL marks an unfetchable document reference. Never retried.
var ErrMalformedURL = errors.New("malformed document url")

// Fetcher fetches documents for one source. The limiter is shared across
// all workers of that source's run, so the per-host delay holds in
// aggregate regardless of row parallelism.
type Fetcher struct {
	cfg     Config
	base    *colly.Collector
	limiter *rate.Limiter
	logger  *zap.Logger
}

// New builds a Fetcher. One Fetcher per source per run; its lifetime is the
// run.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	cfg.defaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false), colly.UserAgent(cfg.UserAgent))
	c.SetRequestTimeout(cfg.Timeout)
	return &Fetcher{
		cfg:     cfg,
		base:    c,
		limiter: rate.NewLimiter(rate.Every(cfg.MinDelay), 1),
		logger:  logger,
	}
}

// Fetch retrieves the document bytes, retrying transient failures with
// linear backoff. Permanent failures (4xx, malformed URL) return
// immediately.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrMalformedURL, rawURL)
	}

	var lastErr error
	for attempt := 0; attempt <= f.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, time.Duration(attempt)*f.cfg.BackoffStep); err != nil {
				return nil, err
			}
			metrics.ObserveFetchRetry(f.cfg.SourceID)
			f.logger.Debug("retrying document fetch",
				zap.String("url", rawURL),
				zap.Int("attempt", attempt),
			)
		}
		if err := f.politeWait(ctx); err != nil {
			return nil, err
		}

		body, err := f.visit(ctx, rawURL)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !isTransient(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("fetch %s after %d retries: %w", rawURL, f.cfg.MaxRetries, lastErr)
}

// politeWait blocks for the rate-limit token plus random jitter within the
// configured window.
func (f *Fetcher) politeWait(ctx context.Context) error {
	if err := f.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return sleepCtx(ctx, randomJitter(f.cfg.MaxDelay-f.cfg.MinDelay))
}

func (f *Fetcher) visit(ctx context.Context, rawURL string) ([]byte, error) {
	var (
		body     []byte
		status   int
		fetchErr error
	)
	c := f.base.Clone()
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = append([]byte(nil), r.Body...)
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = err
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := c.Visit(rawURL); err != nil && fetchErr == nil {
			fetchErr = err
		}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-done:
	}

	if status >= 400 {
		return nil, &StatusError{Code: status}
	}
	if fetchErr != nil {
		return nil, fmt.Errorf("visit %s: %w", rawURL, fetchErr)
	}
	return body, nil
}

// isTransient reports whether the failure is worth retrying: timeouts and
// 5xx responses are, 4xx and context cancellation are not.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return true
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
