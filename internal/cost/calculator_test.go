package cost

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRates() Rates {
	return Rates{
		PlacesPerCall:      0.032,
		HunterPerSearch:    0.049,
		SalesforcePerCall:  0,
		RegistryPerFetch:   0,
		BaseRunOverheadUSD: 0.50,
	}
}

func TestPerCall(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())

	assert.InDelta(t, 0.032, calc.PerCall(ServicePlaces), 1e-9)
	assert.InDelta(t, 0.049, calc.PerCall(ServiceHunter), 1e-9)
	assert.Zero(t, calc.PerCall(ServiceSalesforce))
	assert.Zero(t, calc.PerCall(Service("unknown")))
}

func TestEstimate(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())

	tests := []struct {
		name  string
		calls map[Service]int
		want  float64
	}{
		{"overhead only", nil, 0.50},
		{"places and hunter", map[Service]int{ServicePlaces: 100, ServiceHunter: 20}, 0.50 + 3.2 + 0.98},
		{"free services", map[Service]int{ServiceRegistry: 500, ServiceSalesforce: 50}, 0.50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, calc.Estimate(tt.calls), 1e-9)
		})
	}
}

func TestDefaultRates(t *testing.T) {
	t.Parallel()
	r := DefaultRates()
	assert.Greater(t, r.PlacesPerCall, 0.0)
	assert.Greater(t, r.HunterPerSearch, 0.0)
}

func TestMeter_Cap(t *testing.T) {
	t.Parallel()
	m := NewMeter(NewCalculator(Rates{PlacesPerCall: 1, BaseRunOverheadUSD: 0.5}), 3)

	require.NoError(t, m.Reserve(ServicePlaces))
	require.NoError(t, m.Reserve(ServicePlaces))
	assert.ErrorIs(t, m.Reserve(ServicePlaces), ErrCapReached)

	// free calls still pass once the cap is hit
	assert.NoError(t, m.Reserve(ServiceRegistry))

	assert.Equal(t, 2, m.Calls()[ServicePlaces])
	assert.Equal(t, 1, m.Calls()[ServiceRegistry])
	assert.InDelta(t, 2.5, m.Total(), 1e-9)
}

func TestMeter_NoCap(t *testing.T) {
	t.Parallel()
	m := NewMeter(NewCalculator(testRates()), 0)

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.Reserve(ServiceHunter)
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, m.Calls()[ServiceHunter])
	assert.InDelta(t, 0.50+50*0.049, m.Total(), 1e-9)
}
