package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/samirrijal/seoulbike/internal/adapters/bikeseoul"
	"github.com/samirrijal/seoulbike/internal/adapters/http"
	"github.com/samirrijal/seoulbike/internal/adapters/mqtt"
	natsadapter "github.com/samirrijal/seoulbike/internal/adapters/nats"
	"github.com/samirrijal/seoulbike/internal/adapters/openapi"
	"github.com/samirrijal/seoulbike/internal/adapters/postgres"
	"github.com/samirrijal/seoulbike/internal/adapters/valkey"
	"github.com/samirrijal/seoulbike/internal/core/domain"
	"github.com/samirrijal/seoulbike/internal/core/ports"
	"github.com/samirrijal/seoulbike/internal/core/projection"
	"github.com/samirrijal/seoulbike/internal/core/usecases"
	"github.com/samirrijal/seoulbike/internal/pkg/config"
	"github.com/samirrijal/seoulbike/internal/pkg/logging"
	"github.com/samirrijal/seoulbike/internal/pkg/metrics"
	"github.com/samirrijal/seoulbike/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("seoulbike-poller")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	httpDeps := &http.Dependencies{}
	var listeners []ports.SnapshotListener

	// Cache
	cache, err := valkey.New(cfg.Valkey.Addr)
	if err != nil {
		slog.Warn("valkey unavailable", "error", err)
	} else {
		defer cache.Close()
		httpDeps.Cache = cache
		listeners = append(listeners, usecases.NewSnapshotCache(cache, time.Duration(cfg.Valkey.SnapshotTTL)*time.Second))
	}

	// NATS
	var events ports.EventPublisher
	if pub, err := natsadapter.NewPublisher(cfg.NATS.URL); err != nil {
		slog.Warn("nats unavailable", "error", err)
	} else {
		defer pub.Close()
		events = pub
		listeners = append(listeners, usecases.NewEventRelay(pub))
	}

	// Raw NATS connection for WebSocket relay
	if natsConn, err := natsadapter.RawConn(cfg.NATS.URL); err != nil {
		slog.Warn("nats ws conn unavailable", "error", err)
	} else {
		defer natsConn.Close()
		httpDeps.NATS = natsConn
	}

	// Database
	if cfg.Database.Enabled {
		db, err := postgres.New(ctx, cfg.Database.DSN())
		if err != nil {
			slog.Warn("database unavailable, archive disabled", "error", err)
		} else {
			defer db.Close()
			samples := postgres.NewStationSampleRepo(db)
			httpDeps.DB = db
			httpDeps.Samples = samples
			httpDeps.Trips = usecases.NewTripService(postgres.NewTripRepo(db), events)
			listeners = append(listeners, usecases.NewStationRecorder(samples))
			go reportPoolStats(ctx, db)
		}
	}

	// Upstream
	deps := usecases.Deps{Logger: logger}
	if cfg.Bike.Mode == "api_key" {
		deps.Source = openapi.New(openapi.Options{
			Host:          cfg.Bike.OpenAPIHost,
			Key:           cfg.Bike.APIKey,
			Timeout:       time.Duration(cfg.Bike.RequestTimeout) * time.Second,
			PageSize:      cfg.Bike.PageSize,
			MaxPages:      cfg.Bike.MaxPages,
			Retries:       cfg.Bike.PageRetries,
			RetryInterval: time.Second,
		})
	} else {
		site, err := bikeseoul.New(bikeseoul.Options{
			BaseURL:     cfg.Bike.BaseURL,
			Cookie:      cfg.Bike.Cookie,
			Timeout:     time.Duration(cfg.Bike.RequestTimeout) * time.Second,
			RealtimeTTL: time.Duration(cfg.Bike.RealtimeTTL) * time.Second,
			Location:    cfg.Bike.Location(),
		})
		if err != nil {
			log.Fatalf("site client: %v", err)
		}
		deps.Site = site
		if cache != nil {
			deps.Cookies = valkey.NewCookieStore(cache)
		}
	}

	// Home automation
	home := domain.GeoPoint{Lat: cfg.Nearby.HomeLat, Lon: cfg.Nearby.HomeLon}
	deps.Location = usecases.HomeLocation{Point: home}

	var (
		mq       *mqtt.Client
		tracked  *mqtt.TrackedLocation
		mqttOpts = mqtt.Options{
			Broker:          cfg.MQTT.Broker,
			ClientID:        cfg.MQTT.ClientID,
			Username:        cfg.MQTT.Username,
			Password:        cfg.MQTT.Password,
			TopicPrefix:     cfg.MQTT.TopicPrefix,
			DiscoveryPrefix: cfg.MQTT.DiscoveryPrefix,
		}
	)
	if cfg.MQTT.Enabled {
		mq = mqtt.NewClient(mqttOpts, logger)
		httpDeps.MQTT = mq
		listeners = append(listeners, usecases.NewEntitySync(mqtt.NewEntityPublisher(mq, mqttOpts)))
		if cfg.Nearby.LocationTopic != "" {
			tracked = mqtt.NewTrackedLocation(cfg.Nearby.LocationTopic, home, logger)
			deps.Location = tracked
		}
	}
	deps.Listeners = listeners

	coord, err := usecases.NewCoordinator(deps, usecases.Options{
		Auth:          cfg.Bike.AuthMode(),
		StationInputs: cfg.Bike.StationIDs,
		Nearby: usecases.NearbyOptions{
			Radius:     cfg.Nearby.Radius,
			MinBikes:   cfg.Nearby.MinBikes,
			MaxResults: cfg.Nearby.MaxResults,
		},
		HistoryPeriods:  cfg.Bike.HistoryPeriods,
		HistoryInterval: cfg.Bike.History(),
		AccountInterval: cfg.Bike.Account(),
		CountPolicy:     cfg.Bike.CountPolicy(),
		Location:        cfg.Bike.Location(),
	})
	if err != nil {
		log.Fatalf("coordinator: %v", err)
	}
	httpDeps.Poller = coord

	if mq != nil {
		router := mqtt.NewButtonRouter(mqttOpts, func() []domain.Entity {
			if snap := coord.Snapshot(); snap != nil {
				return projection.Build(snap)
			}
			return nil
		}, coord, logger)
		if err := router.Register(mq); err != nil {
			slog.Warn("button subscription failed", "error", err)
		}
		if tracked != nil {
			if err := tracked.Register(mq); err != nil {
				slog.Warn("location subscription failed", "error", err)
			}
		}
		go func() {
			if err := mq.Connect(ctx); err != nil {
				slog.Error("mqtt connect failed", "error", err)
			}
		}()
	}

	coord.Init(ctx)
	go coord.Run(ctx, cfg.Bike.Poll())

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024, // 1 MB max request body
		AppName:      "Seoul Bike Poller",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept",
		MaxAge:       3600,
	}))

	http.SetupRoutes(app, httpDeps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("poller starting", "addr", addr, "mode", coord.Mode())
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, stopping poller...", "signal", sig.String())
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}
	if mq != nil {
		mq.Disconnect()
	}

	slog.Info("poller stopped")
}

func reportPoolStats(ctx context.Context, db *postgres.DB) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.UpdateDBPoolMetrics(db.Stat())
		}
	}
}
