package http

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"
)

// refreshHandler runs one coordinator refresh and answers with the snapshot
// it produced.
func refreshHandler(deps *Dependencies, name string, run func(ctx context.Context, c *fiber.Ctx) error) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Poller == nil {
			return errUnavailable(c, "refresh is only served by the poller")
		}
		ctx := c.UserContext()
		if err := run(ctx, c); err != nil {
			LoggerFromCtx(ctx).Warn("refresh failed", slog.String("refresh", name), slog.Any("error", err))
			return errFromDomain(c, err)
		}
		return c.JSON(deps.Poller.Snapshot())
	}
}

// RefreshAllHandler runs a full cycle.
func RefreshAllHandler(deps *Dependencies) fiber.Handler {
	return refreshHandler(deps, "all", func(ctx context.Context, _ *fiber.Ctx) error {
		return deps.Poller.Refresh(ctx)
	})
}

// RefreshAccountHandler refetches account data only.
func RefreshAccountHandler(deps *Dependencies) fiber.Handler {
	return refreshHandler(deps, "account", func(ctx context.Context, _ *fiber.Ctx) error {
		return deps.Poller.RefreshAccount(ctx)
	})
}

// RefreshHistoryHandler refetches one usage-history period.
func RefreshHistoryHandler(deps *Dependencies) fiber.Handler {
	return refreshHandler(deps, "history", func(ctx context.Context, c *fiber.Ctx) error {
		return deps.Poller.RefreshUseHistory(ctx, c.Params("period"))
	})
}

// RefreshFavoriteHandler refetches one favorite station's counts.
func RefreshFavoriteHandler(deps *Dependencies) fiber.Handler {
	return refreshHandler(deps, "favorite", func(ctx context.Context, c *fiber.Ctx) error {
		return deps.Poller.RefreshFavoriteStation(ctx, c.Params("id"))
	})
}

// RefreshStationHandler refetches one monitored station.
func RefreshStationHandler(deps *Dependencies) fiber.Handler {
	return refreshHandler(deps, "station", func(ctx context.Context, c *fiber.Ctx) error {
		return deps.Poller.RefreshStation(ctx, c.Params("id"))
	})
}

// RefreshStationsHandler refetches all monitored stations and nearby.
func RefreshStationsHandler(deps *Dependencies) fiber.Handler {
	return refreshHandler(deps, "stations", func(ctx context.Context, _ *fiber.Ctx) error {
		return deps.Poller.RefreshAllStations(ctx)
	})
}
