package opencage

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
)

const defaultBaseURL = "https://api.opencagedata.com/geocode/v1/json"

// Client performs forward geocoding against the OpenCage API.
type Client interface {
	Geocode(ctx context.Context, query string) (*Result, error)
}

// Result is a single geocoding match. Matched false means the query
// resolved to nothing; it is not an error.
type Result struct {
	Latitude  float64
	Longitude float64
	Formatted string
	Matched   bool
}

type geocodeResponse struct {
	Results []struct {
		Geometry struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"geometry"`
		Formatted string `json:"formatted"`
	} `json:"results"`
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

// WithRateLimit caps requests per second. The free OpenCage tier allows 1 rps.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithLanguage sets the response language (default "es").
func WithLanguage(lang string) Option {
	return func(c *httpClient) {
		c.language = lang
	}
}

type httpClient struct {
	apiKey   string
	baseURL  string
	language string
	limiter  *rate.Limiter
	http     *http.Client
}

// NewClient creates an OpenCage geocoding client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:   apiKey,
		baseURL:  defaultBaseURL,
		language: "es",
		limiter:  rate.NewLimiter(rate.Limit(1), 1),
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Geocode(ctx context.Context, query string) (*Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "opencage: rate limit")
	}

	params := url.Values{
		"q":        {query},
		"key":      {c.apiKey},
		"language": {c.language},
		"limit":    {strconv.Itoa(1)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "opencage: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "opencage: send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "opencage: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("opencage: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var parsed geocodeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrap(err, "opencage: unmarshal response")
	}

	if len(parsed.Results) == 0 {
		return &Result{Matched: false}, nil
	}

	first := parsed.Results[0]
	return &Result{
		Latitude:  first.Geometry.Lat,
		Longitude: first.Geometry.Lng,
		Formatted: first.Formatted,
		Matched:   true,
	}, nil
}
