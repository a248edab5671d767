package google

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/lead-pipeline/internal/resilience"
)

const (
	// fullPage is the page size at which Places may hold more results.
	fullPage = 20
	// MaxBrandLocations caps any single brand estimate.
	MaxBrandLocations = 200
)

// BrandLocations is a best-effort location estimate for a brand in a region.
type BrandLocations struct {
	Count   int      `json:"count"`
	Types   []string `json:"types,omitempty"`
	Website string   `json:"website,omitempty"`
}

// LocationCache stores brand estimates between runs.
type LocationCache interface {
	Get(ctx context.Context, key string) (BrandLocations, bool)
	Set(ctx context.Context, key string, v BrandLocations)
}

// LocationCounter estimates how many locations a brand operates.
type LocationCounter struct {
	client  Client
	cache   LocationCache
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig
}

// CounterOption configures a LocationCounter.
type CounterOption func(*LocationCounter)

// WithCache enables caching of brand estimates.
func WithCache(c LocationCache) CounterOption {
	return func(lc *LocationCounter) {
		lc.cache = c
	}
}

// WithBreaker guards Places calls with cb.
func WithBreaker(cb *resilience.CircuitBreaker) CounterOption {
	return func(lc *LocationCounter) {
		lc.breaker = cb
	}
}

// WithRetry overrides the retry policy for Places calls.
func WithRetry(cfg resilience.RetryConfig) CounterOption {
	return func(lc *LocationCounter) {
		lc.retry = cfg
	}
}

// NewLocationCounter returns a counter backed by client.
func NewLocationCounter(client Client, opts ...CounterOption) *LocationCounter {
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = 2
	retry.OnRetry = resilience.RetryLogger("google_places", "text_search")

	lc := &LocationCounter{client: client, retry: retry}
	for _, o := range opts {
		o(lc)
	}
	return lc
}

// CachedLocations returns the cached estimate for name in region without
// calling Places.
func (lc *LocationCounter) CachedLocations(ctx context.Context, name, region string) (BrandLocations, bool) {
	if lc.cache == nil || strings.TrimSpace(name) == "" {
		return BrandLocations{}, false
	}
	return lc.cache.Get(ctx, cacheKey(strings.TrimSpace(name+" "+region)))
}

// CountLocationsForBrand searches Places for "name region" and counts the
// hits. A full page with a continuation token counts one extra location. Any
// failure yields the zero value.
func (lc *LocationCounter) CountLocationsForBrand(ctx context.Context, name, region string) BrandLocations {
	query := strings.TrimSpace(name + " " + region)
	if strings.TrimSpace(name) == "" {
		return BrandLocations{}
	}

	key := cacheKey(query)
	if lc.cache != nil {
		if v, ok := lc.cache.Get(ctx, key); ok {
			return v
		}
	}

	log := zap.L().With(zap.String("brand", name), zap.String("region", region))

	search := func(ctx context.Context) (*TextSearchResponse, error) {
		return resilience.DoVal(ctx, lc.retry, func(ctx context.Context) (*TextSearchResponse, error) {
			return lc.client.TextSearch(ctx, TextSearchRequest{TextQuery: query, PageSize: fullPage})
		})
	}

	var (
		resp *TextSearchResponse
		err  error
	)
	if lc.breaker != nil {
		resp, err = resilience.ExecuteVal(ctx, lc.breaker, search)
	} else {
		resp, err = search(ctx)
	}
	if err != nil {
		log.Warn("google: location count failed", zap.Error(err))
		return BrandLocations{}
	}

	out := summarize(resp)
	if lc.cache != nil {
		lc.cache.Set(ctx, key, out)
	}
	log.Debug("google: location count", zap.Int("count", out.Count))
	return out
}

func summarize(resp *TextSearchResponse) BrandLocations {
	var out BrandLocations
	if resp == nil {
		return out
	}

	seen := make(map[string]struct{})
	for _, p := range resp.Places {
		if p.BusinessStatus == "CLOSED_PERMANENTLY" {
			continue
		}
		out.Count++
		if out.Website == "" {
			out.Website = p.WebsiteURI
		}
		for _, t := range p.Types {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			out.Types = append(out.Types, t)
		}
	}

	if resp.NextPageToken != "" && out.Count >= fullPage {
		out.Count = min(out.Count+1, MaxBrandLocations)
	}
	return out
}

func cacheKey(query string) string {
	return "places:count:" + strings.ToLower(strings.Join(strings.Fields(query), " "))
}
