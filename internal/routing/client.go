// Package routing talks to the external routing/ETA service and provides a
// deterministic great-circle fallback for when it is unreachable.  The
// estimates feed the simulated transit only; this service never computes
// real road routes itself.
package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"
)

// ErrUnavailable is returned when the routing service cannot be reached or
// answers with garbage.  Callers substitute the fallback estimate instead of
// propagating it.
var ErrUnavailable = errors.New("routing service unavailable")

// Coordinate is a WGS84 point.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Route is a travel estimate between two points: how long the courier leg
// takes and the path to animate the simulated position along.
type Route struct {
	Duration time.Duration
	Path     []Coordinate
}

// Courier speed assumed by the fallback estimate.
const fallbackSpeedKmh = 30.0

// Bounds applied to every transit duration so the simulation stays usable
// for very short and very long distances alike.
const (
	minTransit = 5 * time.Minute
	maxTransit = 2 * time.Hour
)

// Client calls the routing service over HTTP.
type Client struct {
	baseURL string
	hc      *http.Client
}

// NewClient builds a routing client.  An empty baseURL produces a client
// whose ETA calls always report ErrUnavailable, which keeps the fallback
// path working in deployments without a routing service.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		hc:      &http.Client{Timeout: 5 * time.Second},
	}
}

type etaResponse struct {
	DurationSeconds float64      `json:"duration_seconds"`
	Polyline        []Coordinate `json:"polyline"`
}

// ETA asks the routing service for a travel estimate between two points.
// Any transport or decode failure is reported as ErrUnavailable.
func (c *Client) ETA(ctx context.Context, from, to Coordinate) (*Route, error) {
	if c.baseURL == "" {
		return nil, ErrUnavailable
	}
	url := fmt.Sprintf("%s/route?from_lat=%f&from_lng=%f&to_lat=%f&to_lng=%f",
		c.baseURL, from.Lat, from.Lng, to.Lat, to.Lng)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	var body etaResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if body.DurationSeconds <= 0 {
		return nil, fmt.Errorf("%w: non-positive duration", ErrUnavailable)
	}
	path := body.Polyline
	if len(path) < 2 {
		path = []Coordinate{from, to}
	}
	return &Route{
		Duration: clampTransit(time.Duration(body.DurationSeconds * float64(time.Second))),
		Path:     path,
	}, nil
}

// Estimate returns the service ETA when reachable and otherwise the
// deterministic great-circle fallback.  It never fails.
func (c *Client) Estimate(ctx context.Context, from, to Coordinate) *Route {
	if r, err := c.ETA(ctx, from, to); err == nil {
		return r
	}
	return Fallback(from, to)
}

// Fallback estimates transit from the great-circle distance at a fixed
// courier speed.  It is a pure function of the two coordinates.
func Fallback(from, to Coordinate) *Route {
	km := HaversineKm(from, to)
	d := time.Duration(km / fallbackSpeedKmh * float64(time.Hour))
	return &Route{
		Duration: clampTransit(d),
		Path:     []Coordinate{from, to},
	}
}

func clampTransit(d time.Duration) time.Duration {
	if d < minTransit {
		return minTransit
	}
	if d > maxTransit {
		return maxTransit
	}
	return d
}

// HaversineKm returns the great-circle distance between two points in
// kilometers.
func HaversineKm(a, b Coordinate) float64 {
	const earthRadiusKm = 6371.0
	la1 := a.Lat * math.Pi / 180
	la2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(la1)*math.Cos(la2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}

// PointAlong returns the simulated position after covering frac of the
// path's total length.  frac outside [0,1] is clamped.  Segments are
// weighted by their great-circle length so progress looks uniform.
func PointAlong(path []Coordinate, frac float64) Coordinate {
	if len(path) == 0 {
		return Coordinate{}
	}
	if frac <= 0 || len(path) == 1 {
		return path[0]
	}
	if frac >= 1 {
		return path[len(path)-1]
	}
	total := 0.0
	segs := make([]float64, len(path)-1)
	for i := 0; i < len(path)-1; i++ {
		segs[i] = HaversineKm(path[i], path[i+1])
		total += segs[i]
	}
	if total == 0 {
		return path[0]
	}
	target := frac * total
	for i, seg := range segs {
		if target <= seg && seg > 0 {
			t := target / seg
			return Coordinate{
				Lat: path[i].Lat + (path[i+1].Lat-path[i].Lat)*t,
				Lng: path[i].Lng + (path[i+1].Lng-path[i].Lng)*t,
			}
		}
		target -= seg
	}
	return path[len(path)-1]
}
