package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// HealthHandler returns a basic liveness check with the last cycle outcome.
func HealthHandler(deps *Dependencies) fiber.Handler {
	startedAt := time.Now()

	return func(c *fiber.Ctx) error {
		body := fiber.Map{
			"status":  "healthy",
			"uptime":  time.Since(startedAt).String(),
			"version": "dev",
		}
		if deps.Poller != nil {
			body["mode"] = deps.Poller.Mode()
			if snap := deps.Poller.Snapshot(); snap != nil {
				body["validation_status"] = snap.ValidationStatus
				body["updated_at"] = snap.UpdatedAt
			}
		}
		return c.JSON(body)
	}
}

// ReadyHandler checks that a snapshot exists and that the configured
// backing services respond.
func ReadyHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
		defer cancel()

		checks := make(map[string]string)
		allOK := true

		if _, err := deps.snapshot(ctx); err != nil {
			checks["snapshot"] = err.Error()
			allOK = false
		} else {
			checks["snapshot"] = "ok"
		}

		ping := func(name string, p Pinger) {
			if p == nil {
				checks[name] = "not configured"
				return
			}
			if err := p.Ping(ctx); err != nil {
				checks[name] = "error: " + err.Error()
				allOK = false
				return
			}
			checks[name] = "ok"
		}
		ping("database", deps.DB)
		ping("cache", deps.Cache)

		connected := func(name string, ok, configured bool) {
			switch {
			case !configured:
				checks[name] = "not configured"
			case ok:
				checks[name] = "ok"
			default:
				checks[name] = "disconnected"
				allOK = false
			}
		}
		connected("nats", deps.NATS != nil && deps.NATS.IsConnected(), deps.NATS != nil)
		connected("mqtt", deps.MQTT != nil && deps.MQTT.IsConnected(), deps.MQTT != nil)

		status := "ready"
		code := 200
		if !allOK {
			status = "not ready"
			code = 503
		}

		return c.Status(code).JSON(fiber.Map{
			"status": status,
			"checks": checks,
		})
	}
}
