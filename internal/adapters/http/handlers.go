package http

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/seoulbike/internal/core/domain"
	"github.com/samirrijal/seoulbike/internal/core/projection"
)

// SnapshotHandler returns the full latest snapshot.
func SnapshotHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		snap, err := deps.snapshot(c.UserContext())
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(snap)
	}
}

// ListStationsHandler returns the monitored stations with their resolution
// outcome.
func ListStationsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		snap, err := deps.snapshot(c.UserContext())
		if err != nil {
			return errFromDomain(c, err)
		}
		stations := snap.Stations
		if stations == nil {
			stations = []domain.Station{}
		}
		return c.JSON(fiber.Map{
			"stations":         stations,
			"resolutions":      snap.Resolutions,
			"total_rows":       snap.TotalRows,
			"nonzero_stations": snap.NonzeroStations,
			"updated_at":       snap.UpdatedAt,
		})
	}
}

// GetStationHandler returns one monitored station.
func GetStationHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := strings.TrimSpace(c.Params("id"))
		if id == "" {
			return errBadRequest(c, "station id is required")
		}
		snap, err := deps.snapshot(c.UserContext())
		if err != nil {
			return errFromDomain(c, err)
		}
		st, ok := snap.Station(id)
		if !ok {
			return errNotFound(c, "station not monitored")
		}
		return c.JSON(st)
	}
}

// StationSamplesHandler returns archived counts of one station, newest first.
func StationSamplesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Samples == nil {
			return errUnavailable(c, "station archive not available")
		}
		id := strings.TrimSpace(c.Params("id"))
		limit := c.QueryInt("limit", 100)
		if limit <= 0 || limit > 1000 {
			limit = 100
		}
		samples, err := deps.Samples.History(c.UserContext(), id, limit)
		if err != nil {
			return errInternal(c, err.Error())
		}
		if samples == nil {
			samples = []domain.StationSample{}
		}
		return c.JSON(samples)
	}
}

// FavoritesHandler returns the member's favorite stations.
func FavoritesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		snap, err := deps.snapshot(c.UserContext())
		if err != nil {
			return errFromDomain(c, err)
		}
		if snap.Mode != (domain.CookieSessionMode{}).Name() {
			return errFromDomain(c, domain.ErrUnsupported)
		}
		favorites := snap.Favorites
		if favorites == nil {
			favorites = []domain.Favorite{}
		}
		return c.JSON(favorites)
	}
}

// NearbyHandler returns the ranked nearby stations.
func NearbyHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		snap, err := deps.snapshot(c.UserContext())
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(snap.Nearby)
	}
}

// HistoryHandler returns one usage-history period.
func HistoryHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		period := c.Params("period")
		if !validPeriod(period) {
			return errFromDomain(c, domain.ErrUnknownPeriod)
		}
		snap, err := deps.snapshot(c.UserContext())
		if err != nil {
			return errFromDomain(c, err)
		}
		p, ok := snap.Periods[period]
		if !ok {
			return errNotFound(c, "period not fetched yet")
		}
		return c.JSON(p)
	}
}

// AccountHandler returns ticket, account and rent state.
func AccountHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		snap, err := deps.snapshot(c.UserContext())
		if err != nil {
			return errFromDomain(c, err)
		}
		if snap.Mode != (domain.CookieSessionMode{}).Name() {
			return errFromDomain(c, domain.ErrUnsupported)
		}
		return c.JSON(fiber.Map{
			"account":          snap.Account,
			"renting":          snap.RentStatus.Renting(),
			"rent_status":      snap.RentStatus,
			"user_status":      snap.UserStatus,
			"reconsent_status": snap.ReconsentStatus,
		})
	}
}

// EntitiesHandler returns the projected home-automation entities, optionally
// filtered by scope.
func EntitiesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		snap, err := deps.snapshot(c.UserContext())
		if err != nil {
			return errFromDomain(c, err)
		}
		entities := projection.Build(snap)
		if scope := c.Query("scope"); scope != "" {
			filtered := entities[:0:0]
			for _, e := range entities {
				if string(e.Scope) == scope {
					filtered = append(filtered, e)
				}
			}
			entities = filtered
		}
		return c.JSON(entities)
	}
}

// ListTripsHandler pages through archived trips, newest first.
func ListTripsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Trips == nil {
			return errUnavailable(c, "trip archive not available")
		}
		filter := domain.TripFilter{
			Bike:   c.Query("bike"),
			Period: c.Query("period"),
			Offset: c.QueryInt("offset", 0),
			Limit:  c.QueryInt("limit", 20),
		}
		if filter.Period != "" && !validPeriod(filter.Period) {
			return errFromDomain(c, domain.ErrUnknownPeriod)
		}
		if since := c.Query("since"); since != "" {
			t, err := time.Parse(time.RFC3339, since)
			if err != nil {
				return errBadRequest(c, "since must be an RFC 3339 timestamp")
			}
			filter.Since = &t
		}
		if filter.Offset < 0 {
			filter.Offset = 0
		}
		if filter.Limit <= 0 || filter.Limit > 100 {
			filter.Limit = 20
		}

		trips, total, err := deps.Trips.List(c.UserContext(), filter)
		if err != nil {
			return errInternal(c, err.Error())
		}
		if trips == nil {
			trips = []domain.TripRecord{}
		}

		pg := Pagination{Offset: filter.Offset, Limit: filter.Limit, Total: total}
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: trips, Pagination: pg})
	}
}

// GetTripHandler returns one archived trip by key.
func GetTripHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Trips == nil {
			return errUnavailable(c, "trip archive not available")
		}
		trip, err := deps.Trips.Get(c.UserContext(), c.Params("key"))
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(trip)
	}
}

func validPeriod(p string) bool {
	return p == domain.PeriodHistory || p == domain.PeriodWeek || p == domain.PeriodMonth
}
