package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/medirent/equipment-rental/internal/handler"
	"github.com/medirent/equipment-rental/internal/middleware"
)

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	// Load balancers and monitoring probe this endpoint.
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers all authentication-related routes and applies the
// necessary middleware.  Unauthenticated operations live under /v1/auth,
// while protected endpoints live under /v1.  The optional rate limiter
// throttles credential guessing.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	// Session establishment does not require an existing session.
	g := e.Group("/v1/auth")
	if limit != nil {
		g.Use(limit)
	}
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	// Refresh rotates the refresh token; refresh-access only mints a new
	// access token.
	g.POST("/refresh", a.Refresh)
	g.POST("/refresh-access", a.RefreshAccess)
	// Logout accepts either a bearer token or a refresh_token body, so it
	// stays outside the JWT middleware.
	g.POST("/logout", a.Logout)
	e.POST("/v1/logout", a.Logout)

	auth := protectedGroup(e, jwtSecret)
	auth.GET("/me", a.Me)
}

// RegisterItems registers listing endpoints.  Browsing is public; creating
// and inspecting one's own listings require a session.  The optional cache
// middleware is applied to the public browse routes only, where responses
// are shared across users.
func RegisterItems(e *echo.Echo, h *handler.ItemHandler, jwtSecret string, cache echo.MiddlewareFunc) {
	pub := e.Group("/v1")
	if cache != nil {
		pub.Use(cache)
	}
	pub.GET("/items", h.List)
	pub.GET("/items/:id", h.Get)

	auth := protectedGroup(e, jwtSecret)
	auth.POST("/items", h.Create)
	// Pre-listing video screening; advisory, nothing is stored.
	auth.POST("/items/analyze-video", h.AnalyzeVideo)
	auth.GET("/my/items", h.MyListings)
}

// RegisterBookings registers booking creation, listing and lifecycle action
// routes.  Every route requires a session; whether the caller may take an
// action on a given booking is decided per booking by the lifecycle layer.
func RegisterBookings(e *echo.Echo, b *handler.BookingHandler, p *handler.ProgressHandler, jwtSecret string) {
	auth := protectedGroup(e, jwtSecret)
	auth.POST("/bookings", b.Create)
	auth.GET("/bookings", b.List)
	auth.GET("/bookings/:id", b.Get)
	auth.GET("/bookings/:id/progress", p.Get)

	// Owner-side decisions on a request.
	auth.POST("/bookings/:id/accept", b.Accept)
	auth.POST("/bookings/:id/reject", b.Reject)
	// Renter withdraws a pending request.
	auth.POST("/bookings/:id/cancel", b.Cancel)
	// Delivery flow.
	auth.POST("/bookings/:id/mark-delivered", b.MarkDelivered)
	auth.POST("/bookings/:id/start-use", b.StartUse)
	// Return flow.
	auth.POST("/bookings/:id/return-request", b.RequestReturn)
	auth.POST("/bookings/:id/return-accept", b.AcceptReturn)
	auth.POST("/bookings/:id/return-pickup", b.MarkReturnPickedUp)
	auth.POST("/bookings/:id/complete", b.Complete)
	// Settlement-side damage comparison; informational only.
	auth.POST("/bookings/:id/return-audit", b.ReturnAudit)
}

// RegisterHandover registers the QR handover exchange at the root, outside
// the /v1 prefix and the JWT middleware, matching the scanner client's
// contract.  The rate limiter keeps code guessing impractical.
func RegisterHandover(e *echo.Echo, h *handler.HandoverHandler, limit echo.MiddlewareFunc) {
	if limit != nil {
		e.POST("/generate-handover", h.Generate, limit)
		e.POST("/scan-handover", h.Scan, limit)
		return
	}
	e.POST("/generate-handover", h.Generate)
	e.POST("/scan-handover", h.Scan)
}

// protectedGroup returns a /v1 group guarded by JWT validation and the
// user-presence check.
func protectedGroup(e *echo.Echo, jwtSecret string) *echo.Group {
	g := e.Group("/v1")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.Use(middleware.RequireUser())
	return g
}
