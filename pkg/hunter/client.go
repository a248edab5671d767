// Package hunter provides a Hunter.io v2 API client for domain contact
// search and company lookups.
package hunter

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/lead-pipeline/internal/resilience"
)

const defaultBaseURL = "https://api.hunter.io/v2"

// Client performs Hunter.io API operations.
type Client interface {
	DomainSearch(ctx context.Context, domain string, limit int) ([]Email, error)
	CompanySearch(ctx context.Context, company string) (*Company, error)
}

// Email is one contact returned by a domain search.
type Email struct {
	Value      string `json:"value"`
	Type       string `json:"type"`
	Confidence int    `json:"confidence"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Position   string `json:"position"`
	LinkedIn   string `json:"linkedin"`
	Phone      string `json:"phone_number"`
	Verified   bool   `json:"-"`
}

// Company is the result of a company lookup.
type Company struct {
	Name      string `json:"name"`
	Domain    string `json:"domain"`
	Headcount int    `json:"-"`
	City      string `json:"-"`
	State     string `json:"-"`
}

type domainSearchResponse struct {
	Data struct {
		Domain       string      `json:"domain"`
		Organization string      `json:"organization"`
		Headcount    string      `json:"headcount"`
		Emails       []emailJSON `json:"emails"`
	} `json:"data"`
}

type emailJSON struct {
	Email
	Verification struct {
		Status string `json:"status"`
	} `json:"verification"`
}

type companyResponse struct {
	Data companyJSON `json:"data"`
}

type companyJSON struct {
	Name    string         `json:"name"`
	Domain  string         `json:"domain"`
	Metrics companyMetrics `json:"metrics"`
	Geo     companyGeo     `json:"geo"`
}

type companyMetrics struct {
	Employees string `json:"employees"`
}

type companyGeo struct {
	City      string `json:"city"`
	StateCode string `json:"stateCode"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a Hunter.io client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// DomainSearch returns the contacts Hunter knows for domain.
func (c *httpClient) DomainSearch(ctx context.Context, domain string, limit int) ([]Email, error) {
	if domain == "" {
		return nil, eris.New("hunter: domain is required")
	}
	q := url.Values{}
	q.Set("domain", domain)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var resp domainSearchResponse
	if err := c.get(ctx, "/domain-search", q, &resp); err != nil {
		return nil, eris.Wrapf(err, "hunter: domain search %s", domain)
	}

	out := make([]Email, 0, len(resp.Data.Emails))
	for _, e := range resp.Data.Emails {
		em := e.Email
		em.Verified = e.Verification.Status == "valid"
		out = append(out, em)
	}
	return out, nil
}

// CompanySearch resolves a company name to its domain and headcount. It
// returns nil when Hunter has no domain for the name.
func (c *httpClient) CompanySearch(ctx context.Context, company string) (*Company, error) {
	if company == "" {
		return nil, eris.New("hunter: company is required")
	}
	q := url.Values{}
	q.Set("company", company)

	var resp domainSearchResponse
	if err := c.get(ctx, "/domain-search", q, &resp); err != nil {
		return nil, eris.Wrapf(err, "hunter: company search %s", company)
	}
	if resp.Data.Domain == "" {
		return nil, nil
	}

	out := &Company{
		Name:      resp.Data.Organization,
		Domain:    resp.Data.Domain,
		Headcount: ParseHeadcount(resp.Data.Headcount),
	}

	var enr companyResponse
	q = url.Values{}
	q.Set("domain", out.Domain)
	if err := c.get(ctx, "/companies/find", q, &enr); err == nil {
		if n := ParseHeadcount(enr.Data.Metrics.Employees); n > 0 {
			out.Headcount = n
		}
		out.City = enr.Data.Geo.City
		out.State = enr.Data.Geo.StateCode
		if out.Name == "" {
			out.Name = enr.Data.Name
		}
	}
	return out, nil
}

func (c *httpClient) get(ctx context.Context, path string, q url.Values, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return eris.Wrap(err, "hunter: rate limiter wait")
		}
	}

	q.Set("api_key", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return eris.Wrap(err, "hunter: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return resilience.NewTransientError(eris.Wrap(err, "hunter: send request"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "hunter: read response")
	}

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("hunter: unexpected status %d: %s", resp.StatusCode, string(body))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(err, resp.StatusCode)
		}
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrap(err, "hunter: unmarshal response")
	}
	return nil
}
