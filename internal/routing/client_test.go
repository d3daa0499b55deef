package routing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	berlin  = Coordinate{Lat: 52.52, Lng: 13.405}
	potsdam = Coordinate{Lat: 52.391, Lng: 13.064}
	munich  = Coordinate{Lat: 48.137, Lng: 11.575}
)

func TestHaversineKm(t *testing.T) {
	// Berlin to Munich is roughly 504 km great-circle.
	km := HaversineKm(berlin, munich)
	assert.InDelta(t, 504, km, 10)

	assert.Equal(t, 0.0, HaversineKm(berlin, berlin))
	assert.InDelta(t, HaversineKm(berlin, potsdam), HaversineKm(potsdam, berlin), 1e-9)
}

func TestFallbackIsDeterministic(t *testing.T) {
	a := Fallback(berlin, potsdam)
	b := Fallback(berlin, potsdam)
	assert.Equal(t, a.Duration, b.Duration)
	assert.Equal(t, a.Path, b.Path)
	require.Len(t, a.Path, 2)
	assert.Equal(t, berlin, a.Path[0])
	assert.Equal(t, potsdam, a.Path[1])
}

func TestFallbackClamping(t *testing.T) {
	// Zero distance clamps up to the minimum.
	r := Fallback(berlin, berlin)
	assert.Equal(t, minTransit, r.Duration)

	// A cross-country leg clamps down to the maximum.
	r = Fallback(berlin, munich)
	assert.Equal(t, maxTransit, r.Duration)

	// Berlin-Potsdam (~30 km) lands inside the window at 30 km/h.
	r = Fallback(berlin, potsdam)
	assert.Greater(t, r.Duration, minTransit)
	assert.Less(t, r.Duration, maxTransit)
}

func TestETA(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/route", r.URL.Path)
		assert.NotEmpty(t, r.URL.Query().Get("from_lat"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"duration_seconds": 1800, "polyline": [{"lat":52.52,"lng":13.405},{"lat":52.45,"lng":13.2},{"lat":52.391,"lng":13.064}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	r, err := c.ETA(context.Background(), berlin, potsdam)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, r.Duration)
	assert.Len(t, r.Path, 3)
}

func TestETAFailures(t *testing.T) {
	t.Run("no base url", func(t *testing.T) {
		_, err := NewClient("").ETA(context.Background(), berlin, potsdam)
		assert.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("server error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()
		_, err := NewClient(srv.URL).ETA(context.Background(), berlin, potsdam)
		assert.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("non-positive duration", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"duration_seconds": 0}`))
		}))
		defer srv.Close()
		_, err := NewClient(srv.URL).ETA(context.Background(), berlin, potsdam)
		assert.ErrorIs(t, err, ErrUnavailable)
	})
}

func TestEstimateFallsBack(t *testing.T) {
	// Unreachable service: Estimate degrades to the great-circle fallback
	// instead of failing.
	c := NewClient("")
	r := c.Estimate(context.Background(), berlin, potsdam)
	require.NotNil(t, r)
	assert.Equal(t, Fallback(berlin, potsdam).Duration, r.Duration)
}

func TestPointAlong(t *testing.T) {
	path := []Coordinate{berlin, potsdam}

	assert.Equal(t, berlin, PointAlong(path, 0))
	assert.Equal(t, berlin, PointAlong(path, -1))
	assert.Equal(t, potsdam, PointAlong(path, 1))
	assert.Equal(t, potsdam, PointAlong(path, 2))

	mid := PointAlong(path, 0.5)
	assert.InDelta(t, (berlin.Lat+potsdam.Lat)/2, mid.Lat, 1e-6)
	assert.InDelta(t, (berlin.Lng+potsdam.Lng)/2, mid.Lng, 1e-6)
}

func TestPointAlongWeightsSegments(t *testing.T) {
	// Path with a long first segment and a short second one: at frac 0.5 the
	// position is still inside the first segment.
	far := Coordinate{Lat: 52.52, Lng: 14.5}
	near := Coordinate{Lat: 52.52, Lng: 14.6}
	path := []Coordinate{berlin, far, near}

	mid := PointAlong(path, 0.5)
	assert.Less(t, mid.Lng, far.Lng)
	assert.Greater(t, mid.Lng, berlin.Lng)
}

func TestPointAlongDegenerate(t *testing.T) {
	assert.Equal(t, Coordinate{}, PointAlong(nil, 0.5))
	assert.Equal(t, berlin, PointAlong([]Coordinate{berlin}, 0.7))
	// Identical points have zero total length.
	assert.Equal(t, berlin, PointAlong([]Coordinate{berlin, berlin}, 0.7))
}
