package fetcher

import (
	"bytes"
	"context"
	"io"
	"mime"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/time/rate"

	"github.com/sells-group/lead-pipeline/internal/resilience"
)

// DefaultUserAgent identifies the pipeline to registry sites.
const DefaultUserAgent = "Mozilla/5.0 (compatible; SunbizAgent/1.0)"

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent    string
	Timeout      time.Duration
	MaxAttempts  int
	RetryDelay   time.Duration
	MaxBodyBytes int64
	RateLimiters map[string]*AdaptiveLimiter

	// Observe, when set, is called once per Fetch with the final outcome.
	Observe func(label string, d time.Duration, err error)
}

// AdaptiveLimiter is a per-host rate.Limiter that speeds up by 20% on
// success (up to 2x initial) and halves on 429 (down to initial/4).
type AdaptiveLimiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	initial rate.Limit
	current rate.Limit
}

// NewAdaptiveLimiter returns a limiter starting at initialRate.
func NewAdaptiveLimiter(initialRate rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		limiter: rate.NewLimiter(initialRate, burst),
		initial: initialRate,
		current: initialRate,
	}
}

// Wait blocks until the limiter allows a request.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess raises the rate.
func (a *AdaptiveLimiter) OnSuccess() {
	a.setRate(min(a.Limit()*1.2, a.initial*2))
}

// OnRateLimit halves the rate.
func (a *AdaptiveLimiter) OnRateLimit() {
	r := max(a.Limit()*0.5, a.initial/4)
	a.setRate(r)
	zap.L().Warn("fetcher: reducing rate after 429", zap.Float64("new_rate", float64(r)))
}

// Limit returns the current rate.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

func (a *AdaptiveLimiter) setRate(r rate.Limit) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.current = r
	a.limiter.SetLimit(r)
}

// DefaultRateLimiters returns limiters for the state registry hosts.
func DefaultRateLimiters() map[string]*AdaptiveLimiter {
	return map[string]*AdaptiveLimiter{
		"search.sunbiz.org":   NewAdaptiveLimiter(2, 2),
		"ecorp.sos.ga.gov":    NewAdaptiveLimiter(2, 2),
		"arc-sos.state.al.us": NewAdaptiveLimiter(2, 2),
	}
}

// HTTPFetcher implements Fetcher over net/http with fixed-delay retries,
// per-host rate limiting, block detection and charset decoding.
type HTTPFetcher struct {
	client *http.Client
	opts   HTTPOptions
}

// NewHTTPFetcher returns a fetcher. Zero options get registry defaults:
// 25s timeout, 3 attempts, 2s between attempts, 5 MiB body cap.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 25 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 2 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 5 << 20
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.RateLimiters == nil {
		opts.RateLimiters = DefaultRateLimiters()
	}
	transport := &http.Transport{
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     90 * time.Second,
	}
	return &HTTPFetcher{
		client: &http.Client{Timeout: opts.Timeout, Transport: transport},
		opts:   opts,
	}
}

func (f *HTTPFetcher) limiterFor(rawURL string) *AdaptiveLimiter {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	return f.opts.RateLimiters[u.Host]
}

// Fetch GETs rawURL and returns the decoded body. Network errors, timeouts,
// 408, 429 and 5xx are retried with a fixed delay. Other non-2xx statuses
// and anti-bot pages fail immediately.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL, label string) (string, error) {
	start := time.Now()
	log := zap.L().With(zap.String("label", label), zap.String("url", rawURL))

	cfg := resilience.FixedRetryConfig(f.opts.MaxAttempts, f.opts.RetryDelay)
	cfg.OnRetry = func(attempt int, err error) {
		log.Warn("http request failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
	}

	body, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (string, error) {
		return f.fetchOnce(ctx, rawURL)
	})
	if f.opts.Observe != nil {
		f.opts.Observe(label, time.Since(start), err)
	}
	if err != nil {
		return "", eris.Wrapf(err, "fetcher: %s", label)
	}

	log.Debug("fetched page",
		zap.Int("bytes", len(body)),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return body, nil
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, rawURL string) (string, error) {
	lim := f.limiterFor(rawURL)
	if lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return "", eris.Wrap(err, "rate limiter wait")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", eris.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", resilience.NewTransientError(eris.Wrap(err, "http get"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBodyBytes))
	if err != nil {
		return "", resilience.NewTransientError(eris.Wrap(err, "read body"), resp.StatusCode)
	}

	if blocked, bt := DetectBlock(resp, raw); blocked {
		return "", eris.Wrapf(ErrBlocked, "%s at %s", bt, rawURL)
	}

	if resp.StatusCode == http.StatusTooManyRequests && lim != nil {
		lim.OnRateLimit()
	}
	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return "", resilience.NewTransientError(eris.Errorf("http %d from %s", resp.StatusCode, rawURL), resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", eris.Errorf("unexpected status %d from %s", resp.StatusCode, rawURL)
	}
	if lim != nil {
		lim.OnSuccess()
	}

	return decodeBody(raw, resp.Header.Get("Content-Type")), nil
}

// decodeBody converts raw to UTF-8 using the charset in contentType. Unknown
// or missing charsets leave the bytes as-is.
func decodeBody(raw []byte, contentType string) string {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return string(raw)
	}
	cs := params["charset"]
	if cs == "" {
		return string(raw)
	}
	enc, err := htmlindex.Get(cs)
	if err != nil {
		zap.L().Debug("fetcher: unsupported charset", zap.String("charset", cs))
		return string(raw)
	}
	out, err := io.ReadAll(enc.NewDecoder().Reader(bytes.NewReader(raw)))
	if err != nil {
		return string(raw)
	}
	return string(out)
}
