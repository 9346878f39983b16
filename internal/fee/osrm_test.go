package fee

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockRoundTripper func(req *http.Request) (*http.Response, error)

func (f MockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
		Header:     make(http.Header),
	}
}

func TestOSRMRouter_Route(t *testing.T) {
	router := NewOSRMRouter("http://osrm.local/")
	origin := Point{Lat: -23.5, Lng: -46.6}
	dest := Point{Lat: -23.6, Lng: -46.7}

	t.Run("Success", func(t *testing.T) {
		router.httpClient.Transport = MockRoundTripper(func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, http.MethodGet, req.Method)
			assert.Equal(t, "osrm.local", req.URL.Host)
			assert.Equal(t, "/route/v1/driving/-46.600000,-23.500000;-46.700000,-23.600000", req.URL.Path)
			return jsonResponse(http.StatusOK, `{"code":"Ok","routes":[{"distance":4250,"duration":780}]}`), nil
		})

		r, err := router.Route(context.Background(), origin, dest)
		require.NoError(t, err)
		assert.InDelta(t, 4.25, r.DistanceKm, 1e-9)
		assert.InDelta(t, 13.0, r.DurationMin, 1e-9)
	})

	t.Run("No route", func(t *testing.T) {
		router.httpClient.Transport = MockRoundTripper(func(*http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK, `{"code":"NoRoute","routes":[]}`), nil
		})

		_, err := router.Route(context.Background(), origin, dest)
		assert.ErrorIs(t, err, ErrRouteUnavailable)
	})

	t.Run("Server error", func(t *testing.T) {
		router.httpClient.Transport = MockRoundTripper(func(*http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusBadGateway, `upstream down`), nil
		})

		_, err := router.Route(context.Background(), origin, dest)
		assert.ErrorIs(t, err, ErrRouteUnavailable)
	})

	t.Run("Transport error", func(t *testing.T) {
		router.httpClient.Transport = MockRoundTripper(func(*http.Request) (*http.Response, error) {
			return nil, errors.New("connection refused")
		})

		_, err := router.Route(context.Background(), origin, dest)
		assert.ErrorIs(t, err, ErrRouteUnavailable)
	})

	t.Run("Bad JSON", func(t *testing.T) {
		router.httpClient.Transport = MockRoundTripper(func(*http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK, `{`), nil
		})

		_, err := router.Route(context.Background(), origin, dest)
		assert.ErrorIs(t, err, ErrRouteUnavailable)
	})
}
