package opencage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeocodeMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "Centro, Querétaro, México", q.Get("q"))
		assert.Equal(t, "test-key", q.Get("key"))
		assert.Equal(t, "es", q.Get("language"))
		assert.Equal(t, "1", q.Get("limit"))

		w.Write([]byte(`{
			"results": [
				{"geometry": {"lat": 20.5888, "lng": -100.3899}, "formatted": "Centro, Santiago de Querétaro"}
			]
		}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL), WithRateLimit(1000))
	result, err := client.Geocode(context.Background(), "Centro, Querétaro, México")
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.Equal(t, 20.5888, result.Latitude)
	assert.Equal(t, -100.3899, result.Longitude)
	assert.Equal(t, "Centro, Santiago de Querétaro", result.Formatted)
}

func TestGeocodeNoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results": []}`))
	}))
	defer srv.Close()

	client := NewClient("key", WithBaseURL(srv.URL), WithRateLimit(1000))
	result, err := client.Geocode(context.Background(), "lugar inexistente")
	require.NoError(t, err, "empty results are not an error")
	assert.False(t, result.Matched)
}

func TestGeocodeErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"status":{"code":402}}`, http.StatusPaymentRequired)
	}))
	defer srv.Close()

	client := NewClient("key", WithBaseURL(srv.URL), WithRateLimit(1000))
	_, err := client.Geocode(context.Background(), "Centro")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "402")
}

func TestGeocodeLanguageOption(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "en", r.URL.Query().Get("language"))
		w.Write([]byte(`{"results": []}`))
	}))
	defer srv.Close()

	client := NewClient("key", WithBaseURL(srv.URL), WithLanguage("en"), WithRateLimit(1000))
	_, err := client.Geocode(context.Background(), "Centro")
	require.NoError(t, err)
}

func TestGeocodeRateLimitHonorsCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results": []}`))
	}))
	defer srv.Close()

	client := NewClient("key", WithBaseURL(srv.URL), WithRateLimit(0.001))

	// Burn the single burst token.
	_, err := client.Geocode(context.Background(), "primera")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = client.Geocode(ctx, "segunda")
	assert.Error(t, err)
}
