package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/seoulbike/internal/pkg/metrics"
)

const (
	readTimeout    = 10 * time.Second
	refreshTimeout = 2 * time.Minute
)

// SetupRoutes registers all REST, GraphQL, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	// Prometheus metrics
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	app.Use(requestid.New())
	app.Use(RequestIDLogMiddleware())
	app.Use(AccessLogMiddleware())

	// Security headers + API version
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	app.Use(CachingMiddleware())

	// Health & readiness (no timeout, fast internal checks)
	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	v1 := app.Group("/v1")
	v1.Get("/snapshot", timeout.NewWithContext(SnapshotHandler(deps), readTimeout))
	v1.Get("/stations", timeout.NewWithContext(ListStationsHandler(deps), readTimeout))
	v1.Get("/stations/:id", timeout.NewWithContext(GetStationHandler(deps), readTimeout))
	v1.Get("/stations/:id/samples", timeout.NewWithContext(StationSamplesHandler(deps), readTimeout))
	v1.Get("/favorites", timeout.NewWithContext(FavoritesHandler(deps), readTimeout))
	v1.Get("/nearby", timeout.NewWithContext(NearbyHandler(deps), readTimeout))
	v1.Get("/history/:period", timeout.NewWithContext(HistoryHandler(deps), readTimeout))
	v1.Get("/account", timeout.NewWithContext(AccountHandler(deps), readTimeout))
	v1.Get("/entities", timeout.NewWithContext(EntitiesHandler(deps), readTimeout))
	v1.Get("/trips", timeout.NewWithContext(ListTripsHandler(deps), readTimeout))
	v1.Get("/trips/:key", timeout.NewWithContext(GetTripHandler(deps), readTimeout))

	// Refreshes hit the upstream site; 6 per minute per client is plenty.
	refresh := v1.Group("/refresh", limiter.New(limiter.Config{
		Max:        6,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return newError(c, 429, "rate_limited", "too many refresh requests, please try again later")
		},
	}))
	refresh.Post("/", timeout.NewWithContext(RefreshAllHandler(deps), refreshTimeout))
	refresh.Post("/account", timeout.NewWithContext(RefreshAccountHandler(deps), refreshTimeout))
	refresh.Post("/history/:period", timeout.NewWithContext(RefreshHistoryHandler(deps), refreshTimeout))
	refresh.Post("/favorites/:id", timeout.NewWithContext(RefreshFavoriteHandler(deps), refreshTimeout))
	refresh.Post("/stations", timeout.NewWithContext(RefreshStationsHandler(deps), refreshTimeout))
	refresh.Post("/stations/:id", timeout.NewWithContext(RefreshStationHandler(deps), refreshTimeout))

	app.Post("/graphql", GraphQLHandler(deps))

	SetupDocs(app)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(WebSocketHandler(deps.NATS)))
}
