package main // Entry point package

import (
	"context"
	"log"

	"github.com/joho/godotenv"    // loads .env files in development
	"github.com/labstack/echo/v4" // Echo web framework

	"github.com/medirent/equipment-rental/internal/audit"
	"github.com/medirent/equipment-rental/internal/config"
	"github.com/medirent/equipment-rental/internal/database"
	"github.com/medirent/equipment-rental/internal/handler"
	"github.com/medirent/equipment-rental/internal/middleware"
	"github.com/medirent/equipment-rental/internal/queue"
	"github.com/medirent/equipment-rental/internal/repository"
	"github.com/medirent/equipment-rental/internal/router"
	"github.com/medirent/equipment-rental/internal/routing"
	"github.com/medirent/equipment-rental/internal/service"
)

func main() {
	_ = godotenv.Load() // .env is optional; real deployments set env vars directly

	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// Redis is optional: without it the API runs with caching and rate
	// limiting disabled.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Printf("redis unavailable, caching and rate limiting disabled")
	}

	// Repositories.
	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	items := repository.NewItemRepo(db)
	bookings := repository.NewBookingRepo(db)
	codes := repository.NewHandoverRepo(db)

	// External service clients.
	auditClient := audit.NewClient(cfg.AuditURL)
	routeClient := routing.NewClient(cfg.RoutingURL)

	// Services.
	bookingSvc := service.NewBookingService(bookings, items, service.PublishLifecycleEvent)
	handoverSvc := service.NewHandoverService(bookings, codes, service.PublishLifecycleEvent)
	tracker := service.NewTransitTracker(bookings, items, routeClient, bookingSvc)

	// Restart transit timers for legs that were in flight when the process
	// last stopped.
	tracker.Resume(context.Background())

	// Lifecycle events end up in logs/booking.log via the broker.
	go func() {
		if err := queue.StartLifecycleConsumer(); err != nil {
			log.Printf("lifecycle consumer stopped: %v", err)
		}
	}()

	e := echo.New()

	var cache, limit echo.MiddlewareFunc
	if rdb != nil {
		cache = middleware.NewRedisCache(config.LoadCacheConfig(), rdb)
		limit = middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)
	}

	router.RegisterRoutes(e)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users, tokens), cfg.JWTSecret, limit)
	router.RegisterItems(e, handler.NewItemHandler(items, auditClient), cfg.JWTSecret, cache)
	router.RegisterBookings(e,
		handler.NewBookingHandler(bookingSvc, bookings, tracker, auditClient),
		handler.NewProgressHandler(bookings, tracker),
		cfg.JWTSecret)
	router.RegisterHandover(e, handler.NewHandoverHandler(handoverSvc, tracker), limit)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
