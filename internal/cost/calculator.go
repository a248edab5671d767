package cost

import (
	"sync"

	"github.com/rotisserie/eris"
)

// Service names a paid or metered external API.
type Service string

const (
	ServicePlaces     Service = "google_places"
	ServiceHunter     Service = "hunter"
	ServiceSalesforce Service = "salesforce"
	ServiceRegistry   Service = "registry"
)

// ErrCapReached is returned once a run has spent its cost cap.
var ErrCapReached = eris.New("cost: run cost cap reached")

// Rates holds per-call pricing (USD).
type Rates struct {
	PlacesPerCall      float64 `yaml:"places_per_call" mapstructure:"places_per_call"`
	HunterPerSearch    float64 `yaml:"hunter_per_search" mapstructure:"hunter_per_search"`
	SalesforcePerCall  float64 `yaml:"salesforce_per_call" mapstructure:"salesforce_per_call"`
	RegistryPerFetch   float64 `yaml:"registry_per_fetch" mapstructure:"registry_per_fetch"`
	BaseRunOverheadUSD float64 `yaml:"base_run_overhead_usd" mapstructure:"base_run_overhead_usd"`
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		PlacesPerCall:      0.032,
		HunterPerSearch:    0.049,
		BaseRunOverheadUSD: 0.50,
	}
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// PerCall returns the price of a single call to svc.
func (c *Calculator) PerCall(svc Service) float64 {
	switch svc {
	case ServicePlaces:
		return c.rates.PlacesPerCall
	case ServiceHunter:
		return c.rates.HunterPerSearch
	case ServiceSalesforce:
		return c.rates.SalesforcePerCall
	case ServiceRegistry:
		return c.rates.RegistryPerFetch
	}
	return 0
}

// Estimate prices a set of call counts, including the fixed run overhead.
func (c *Calculator) Estimate(calls map[Service]int) float64 {
	total := c.rates.BaseRunOverheadUSD
	for svc, n := range calls {
		total += float64(n) * c.PerCall(svc)
	}
	return total
}

// Meter counts calls for one run and enforces an optional spending cap.
// It is safe for concurrent use.
type Meter struct {
	calc   *Calculator
	capUSD float64

	mu    sync.Mutex
	calls map[Service]int
	spent float64
}

// NewMeter returns a meter. capUSD <= 0 disables the cap.
func NewMeter(calc *Calculator, capUSD float64) *Meter {
	return &Meter{
		calc:   calc,
		capUSD: capUSD,
		calls:  make(map[Service]int),
		spent:  calc.rates.BaseRunOverheadUSD,
	}
}

// Reserve records one call to svc. It returns ErrCapReached, without
// recording, when the call would push spend past the cap.
func (m *Meter) Reserve(svc Service) error {
	price := m.calc.PerCall(svc)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.capUSD > 0 && price > 0 && m.spent+price > m.capUSD {
		return ErrCapReached
	}
	m.calls[svc]++
	m.spent += price
	return nil
}

// Calls returns a copy of the per-service call counts.
func (m *Meter) Calls() map[Service]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[Service]int, len(m.calls))
	for k, v := range m.calls {
		out[k] = v
	}
	return out
}

// Total returns the estimated spend so far.
func (m *Meter) Total() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.spent
}
