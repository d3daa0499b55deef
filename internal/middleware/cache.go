package middleware

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/medirent/equipment-rental/internal/config"
)

// cachedResponse is the envelope stored in Redis.  Status and headers travel
// with the body so a hit replays the original response byte for byte,
// content type and formatting included.
type cachedResponse struct {
	Status int         `json:"status"`
	Header http.Header `json:"header"`
	Body   []byte      `json:"body"`
}

// bodyRecorder tees the response body while it streams to the client,
// keeping at most limit bytes for the cache.
type bodyRecorder struct {
	http.ResponseWriter
	status  int
	buf     bytes.Buffer
	written int64
	limit   int64
}

func (br *bodyRecorder) WriteHeader(code int) {
	br.status = code
	br.ResponseWriter.WriteHeader(code)
}

func (br *bodyRecorder) Write(b []byte) (int, error) {
	if keep := br.limit - br.written; keep > 0 {
		if int64(len(b)) <= keep {
			br.buf.Write(b)
		} else {
			br.buf.Write(b[:keep])
		}
	}
	br.written += int64(len(b))
	return br.ResponseWriter.Write(b)
}

// cacheKey hashes the request identity down to a fixed-size key so an
// arbitrarily long query string cannot bloat the Redis keyspace.
func cacheKey(cfg config.CacheConfig, c echo.Context) string {
	r := c.Request()
	var id string
	switch strings.ToLower(cfg.KeyStrategy) {
	case "route":
		id = c.Path()
	case "method_route":
		id = r.Method + ":" + c.Path()
	case "method_route_query":
		id = r.Method + ":" + c.Path() + "?" + r.URL.RawQuery
	default: // route_query
		id = c.Path() + "?" + r.URL.RawQuery
	}
	sum := sha1.Sum([]byte(id))
	return fmt.Sprintf("%s:%x", cfg.Prefix, sum)
}

// NewRedisCache caches successful responses of the public browse endpoints.
// The equipment catalogue is read far more often than it changes and every
// visitor sees the same payload, so even a short shared TTL takes most GET
// traffic off MySQL.  Only 200 responses are stored; errors and partial
// results pass through untouched.
func NewRedisCache(cfg config.CacheConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	maxBody := int64(cfg.MaxBodyBytes)
	if maxBody <= 0 {
		maxBody = 1 << 20
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !cfg.Methods[strings.ToUpper(c.Request().Method)] {
				return next(c)
			}
			key := cacheKey(cfg, c)

			if raw, err := rdb.Get(c.Request().Context(), key).Bytes(); err == nil {
				var hit cachedResponse
				if json.Unmarshal(raw, &hit) == nil {
					return replay(c, hit)
				}
			}

			rec := &bodyRecorder{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: maxBody}
			c.Response().Writer = rec
			c.Response().Header().Set("X-Cache", "MISS")
			if err := next(c); err != nil {
				return err
			}
			// Oversized bodies are served but not cached; a truncated entry
			// must never be replayed.
			if rec.status != http.StatusOK || rec.written > maxBody {
				return nil
			}
			entry := cachedResponse{
				Status: rec.status,
				Header: c.Response().Header().Clone(),
				Body:   rec.buf.Bytes(),
			}
			if raw, err := json.Marshal(entry); err == nil {
				// Detached context: the client may disconnect the moment
				// the response is flushed.
				_ = rdb.SetEx(context.Background(), key, raw, cfg.TTL).Err()
			}
			return nil
		}
	}
}

func replay(c echo.Context, hit cachedResponse) error {
	h := c.Response().Header()
	for k, vals := range hit.Header {
		if strings.EqualFold(k, "Content-Length") {
			continue
		}
		for _, v := range vals {
			h.Add(k, v)
		}
	}
	h.Set("X-Cache", "HIT")
	c.Response().WriteHeader(hit.Status)
	if len(hit.Body) > 0 {
		_, err := c.Response().Write(hit.Body)
		return err
	}
	return nil
}
