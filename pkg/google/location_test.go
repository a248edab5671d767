package google_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/sells-group/lead-pipeline/internal/resilience"
	"github.com/sells-group/lead-pipeline/pkg/google"
	"github.com/sells-group/lead-pipeline/pkg/google/mocks"
)

type memCache struct {
	mu   sync.Mutex
	data map[string]google.BrandLocations
}

func (c *memCache) Get(_ context.Context, key string) (google.BrandLocations, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok
}

func (c *memCache) Set(_ context.Context, key string, v google.BrandLocations) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = v
}

func places(n int) []google.Place {
	out := make([]google.Place, n)
	for i := range out {
		out[i] = google.Place{
			ID:          fmt.Sprintf("p%d", i),
			DisplayName: google.DisplayName{Text: "Sunshine Grill"},
			Types:       []string{"restaurant", "food"},
		}
	}
	return out
}

func noRetry() google.CounterOption {
	return google.WithRetry(resilience.FixedRetryConfig(1, time.Millisecond))
}

func TestCountLocationsForBrand_PageCount(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("TextSearch", mock.Anything, google.TextSearchRequest{TextQuery: "Sunshine Grill FL", PageSize: 20}).
		Return(&google.TextSearchResponse{Places: places(12)}, nil)

	lc := google.NewLocationCounter(client, noRetry())
	got := lc.CountLocationsForBrand(context.Background(), "Sunshine Grill", "FL")

	assert.Equal(t, 12, got.Count)
	assert.Equal(t, []string{"restaurant", "food"}, got.Types)
}

func TestCountLocationsForBrand_FullPageWithToken(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("TextSearch", mock.Anything, mock.Anything).
		Return(&google.TextSearchResponse{Places: places(20), NextPageToken: "more"}, nil)

	lc := google.NewLocationCounter(client, noRetry())
	got := lc.CountLocationsForBrand(context.Background(), "Sunshine Grill", "FL")

	assert.Equal(t, 21, got.Count)
}

func TestCountLocationsForBrand_SkipsClosed(t *testing.T) {
	ps := places(3)
	ps[1].BusinessStatus = "CLOSED_PERMANENTLY"
	ps[2].WebsiteURI = "https://sunshinegrill.com"

	client := mocks.NewMockClient(t)
	client.On("TextSearch", mock.Anything, mock.Anything).
		Return(&google.TextSearchResponse{Places: ps}, nil)

	got := google.NewLocationCounter(client, noRetry()).CountLocationsForBrand(context.Background(), "Sunshine Grill", "FL")

	assert.Equal(t, 2, got.Count)
	assert.Equal(t, "https://sunshinegrill.com", got.Website)
}

func TestCountLocationsForBrand_ErrorYieldsZero(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("TextSearch", mock.Anything, mock.Anything).
		Return(nil, eris.New("google: unexpected status 403"))

	got := google.NewLocationCounter(client, noRetry()).CountLocationsForBrand(context.Background(), "Sunshine Grill", "FL")

	assert.Equal(t, google.BrandLocations{}, got)
}

func TestCountLocationsForBrand_EmptyName(t *testing.T) {
	client := mocks.NewMockClient(t)

	got := google.NewLocationCounter(client).CountLocationsForBrand(context.Background(), "  ", "FL")

	assert.Zero(t, got.Count)
	client.AssertNotCalled(t, "TextSearch", mock.Anything, mock.Anything)
}

func TestCountLocationsForBrand_UsesCache(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("TextSearch", mock.Anything, mock.Anything).
		Return(&google.TextSearchResponse{Places: places(4)}, nil).Once()

	cache := &memCache{data: make(map[string]google.BrandLocations)}
	lc := google.NewLocationCounter(client, noRetry(), google.WithCache(cache))

	first := lc.CountLocationsForBrand(context.Background(), "Sunshine Grill", "FL")
	second := lc.CountLocationsForBrand(context.Background(), "sunshine  grill", "fl")

	assert.Equal(t, 4, first.Count)
	assert.Equal(t, first, second)
}

func TestCachedLocations(t *testing.T) {
	client := mocks.NewMockClient(t)
	cache := &memCache{data: make(map[string]google.BrandLocations)}
	lc := google.NewLocationCounter(client, noRetry(), google.WithCache(cache))

	_, ok := lc.CachedLocations(context.Background(), "Sunshine Grill", "FL")
	assert.False(t, ok)

	cache.Set(context.Background(), "places:count:sunshine grill fl", google.BrandLocations{Count: 9})
	got, ok := lc.CachedLocations(context.Background(), "Sunshine  Grill", "FL")
	assert.True(t, ok)
	assert.Equal(t, 9, got.Count)

	_, ok = google.NewLocationCounter(client).CachedLocations(context.Background(), "Sunshine Grill", "FL")
	assert.False(t, ok)
	client.AssertNotCalled(t, "TextSearch", mock.Anything, mock.Anything)
}

func TestCountLocationsForBrand_OpenBreakerYieldsZero(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("TextSearch", mock.Anything, mock.Anything).
		Return(nil, eris.New("boom")).Once()

	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour})
	lc := google.NewLocationCounter(client, noRetry(), google.WithBreaker(cb))

	assert.Zero(t, lc.CountLocationsForBrand(context.Background(), "Sunshine Grill", "FL").Count)
	assert.Equal(t, resilience.CircuitOpen, cb.State())
	assert.Zero(t, lc.CountLocationsForBrand(context.Background(), "Sunshine Grill", "FL").Count)
}
