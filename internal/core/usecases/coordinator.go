package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/samirrijal/seoulbike/internal/core/domain"
	"github.com/samirrijal/seoulbike/internal/core/ports"
	"github.com/samirrijal/seoulbike/internal/pkg/metrics"
)

var tracer = otel.Tracer("usecases/coordinator")

// Deps wires the coordinator to its collaborators. Site is required in
// cookie mode and Source in API-key mode; the rest are optional.
type Deps struct {
	Site      ports.SiteClient
	Source    ports.StationSource
	Cookies   ports.CookieStore
	Location  ports.LocationSource
	Listeners []ports.SnapshotListener
	Logger    *slog.Logger
}

// Options configures polling behaviour.
type Options struct {
	Auth            domain.AuthMode
	StationInputs   []string
	Nearby          NearbyOptions
	HistoryPeriods  []string
	HistoryInterval time.Duration
	AccountInterval time.Duration
	CountPolicy     domain.CountPolicy
	Location        *time.Location
	Now             func() time.Time
}

// reconcileState is what the coordinator remembers between cycles besides
// the published snapshot.
type reconcileState struct {
	base        *domain.Snapshot // last non-degraded snapshot; merge source
	favoriteIDs []string
	stationIDs  []string
	lastHistory time.Time
	lastAccount time.Time
	lastTrips   map[string]string // period -> trip key
}

// cycleResult is a finished cycle waiting to be committed.
type cycleResult struct {
	snap    *domain.Snapshot
	trips   []domain.TripRecord
	history bool
	account bool
}

// Coordinator owns the polling cycle and the published snapshot. Every
// mutating operation holds mu; Snapshot reads are lock-free.
type Coordinator struct {
	deps Deps
	opts Options
	log  *slog.Logger

	mu    sync.Mutex
	state reconcileState
	snap  atomic.Pointer[domain.Snapshot]
}

// NewCoordinator validates the wiring for the configured auth mode.
func NewCoordinator(deps Deps, opts Options) (*Coordinator, error) {
	switch opts.Auth.(type) {
	case domain.APIKeyMode:
		if deps.Source == nil {
			return nil, errors.New("api_key mode requires a station source")
		}
	case domain.CookieSessionMode:
		if deps.Site == nil {
			return nil, errors.New("cookie mode requires a site client")
		}
	default:
		return nil, fmt.Errorf("unsupported auth mode %T", opts.Auth)
	}
	if len(opts.HistoryPeriods) == 0 {
		opts.HistoryPeriods = []string{domain.PeriodHistory}
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Coordinator{
		deps:  deps,
		opts:  opts,
		log:   deps.Logger.With("component", "coordinator", "mode", opts.Auth.Name()),
		state: reconcileState{lastTrips: map[string]string{}},
	}, nil
}

// Init seeds the site client with the stored cookie, which wins over the
// configured one.
func (c *Coordinator) Init(ctx context.Context) {
	mode, ok := c.opts.Auth.(domain.CookieSessionMode)
	if !ok {
		return
	}
	cookie := mode.Cookie
	if c.deps.Cookies != nil {
		stored, err := c.deps.Cookies.Load(ctx)
		switch {
		case err != nil:
			c.log.Warn("failed to load stored cookie", "error", err)
		case stored != "":
			cookie = stored
			c.log.Info("using stored session cookie")
		}
	}
	c.deps.Site.SetCookie(cookie)
}

// Snapshot returns the last published snapshot, or nil before the first
// cycle.
func (c *Coordinator) Snapshot() *domain.Snapshot {
	return c.snap.Load()
}

// Mode returns the auth mode name.
func (c *Coordinator) Mode() string {
	return c.opts.Auth.Name()
}

// Run polls every interval until ctx is cancelled. The first cycle starts
// immediately.
func (c *Coordinator) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.poll(ctx)
		}
	}
}

func (c *Coordinator) poll(ctx context.Context) {
	if err := c.Refresh(ctx); err != nil && ctx.Err() == nil {
		c.log.Error("poll cycle failed", "error", err, "kind", domain.ErrorKind(err))
	}
}

// Refresh runs one full cycle. Session problems produce a degraded snapshot
// and no error; anything unexpected is returned as *domain.UpdateFailedError
// after publishing the previous data tagged with the error.
func (c *Coordinator) Refresh(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "coordinator:Refresh")
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshLocked(ctx)
}

func (c *Coordinator) refreshLocked(ctx context.Context) error {
	mode := c.Mode()
	start := time.Now()

	var res cycleResult
	var err error
	switch c.opts.Auth.(type) {
	case domain.APIKeyMode:
		res, err = c.cycleAPI(ctx)
	case domain.CookieSessionMode:
		res, err = c.cycleCookie(ctx)
	}
	elapsed := time.Since(start)
	metrics.PollDuration.WithLabelValues(mode).Observe(elapsed.Seconds())

	if err != nil {
		kind := domain.ErrorKind(err)
		metrics.PollErrors.WithLabelValues(mode, kind).Inc()
		span := trace.SpanFromContext(ctx)
		span.RecordError(err)
		span.SetStatus(codes.Error, kind)

		failed := c.clone(c.current())
		failed.ValidationStatus = domain.ValidationError
		failed.Error = err.Error()
		failed.UpdatedAt = c.now()
		failed.LastRequest = c.lastMeta()
		c.publish(ctx, failed, nil)
		return &domain.UpdateFailedError{Mode: mode, Err: err}
	}

	if res.snap.Degraded() {
		metrics.PollErrors.WithLabelValues(mode, string(res.snap.ValidationStatus)).Inc()
	}
	c.commit(ctx, res)
	c.log.Info("poll cycle done",
		"validation_status", res.snap.ValidationStatus,
		"favorites", len(res.snap.Favorites),
		"stations", len(res.snap.Stations),
		"nearby", len(res.snap.Nearby.Stations),
		"duration", elapsed,
	)
	return nil
}

// Dispatch runs the refresh an action asks for.
func (c *Coordinator) Dispatch(ctx context.Context, action domain.RefreshAction) error {
	switch action.Scope {
	case domain.RefreshAll:
		return c.Refresh(ctx)
	case domain.RefreshAccount:
		return c.RefreshAccount(ctx)
	case domain.RefreshHistory:
		period := action.Target
		if period == "" {
			period = domain.PeriodHistory
		}
		return c.RefreshUseHistory(ctx, period)
	case domain.RefreshFavorite:
		return c.RefreshFavoriteStation(ctx, action.Target)
	case domain.RefreshStation:
		return c.RefreshStation(ctx, action.Target)
	case domain.RefreshStations:
		return c.RefreshAllStations(ctx)
	}
	return fmt.Errorf("unknown refresh scope %q", action.Scope)
}

func (c *Coordinator) now() time.Time {
	return c.opts.Now().UTC()
}

func (c *Coordinator) lastMeta() domain.RequestMeta {
	if c.deps.Site != nil {
		return c.deps.Site.LastMeta()
	}
	if c.deps.Source != nil {
		return c.deps.Source.LastMeta()
	}
	return domain.RequestMeta{}
}

func (c *Coordinator) empty() *domain.Snapshot {
	return &domain.Snapshot{
		Mode:             c.Mode(),
		ValidationStatus: domain.ValidationUnknown,
		Periods:          map[string]domain.UsagePeriod{},
		Favorites:        []domain.Favorite{},
		Stations:         []domain.Station{},
		Nearby:           domain.Nearby{Stations: []domain.NearbyStation{}},
	}
}

// current is the published snapshot or an empty one.
func (c *Coordinator) current() *domain.Snapshot {
	if s := c.snap.Load(); s != nil {
		return s
	}
	return c.empty()
}

// base is the last good snapshot, the source for merges and fallbacks.
func (c *Coordinator) base() *domain.Snapshot {
	if c.state.base != nil {
		return c.state.base
	}
	return c.empty()
}

// clone copies a snapshot for modification. Slices are shared: published
// slices are never written to, only replaced.
func (c *Coordinator) clone(s *domain.Snapshot) *domain.Snapshot {
	out := *s
	out.Periods = make(map[string]domain.UsagePeriod, len(s.Periods))
	for k, v := range s.Periods {
		out.Periods[k] = v
	}
	return &out
}

func due(last time.Time, interval time.Duration, now time.Time) bool {
	return last.IsZero() || interval <= 0 || now.Sub(last) >= interval
}

func (c *Coordinator) center(ctx context.Context) domain.Center {
	if c.deps.Location == nil {
		return domain.Center{Status: domain.CenterNotConfigured}
	}
	center, err := c.deps.Location.Center(ctx)
	if err != nil {
		c.log.Warn("location lookup failed", "error", err)
	}
	return center
}

// commit records a finished cycle in the reconciliation state and publishes
// it.
func (c *Coordinator) commit(ctx context.Context, res cycleResult) {
	if !res.snap.Degraded() {
		c.state.base = res.snap
		if res.history {
			c.state.lastHistory = res.snap.UpdatedAt
		}
		if res.account {
			c.state.lastAccount = res.snap.UpdatedAt
		}
		for _, t := range res.trips {
			c.state.lastTrips[t.Period] = t.Key
		}
	}
	c.publish(ctx, res.snap, res.trips)
}

// publish stores the snapshot and notifies listeners. Set diffs are only
// computed for authenticated snapshots, so a session hiccup does not remove
// entities.
func (c *Coordinator) publish(ctx context.Context, snap *domain.Snapshot, trips []domain.TripRecord) {
	changes := domain.SetChanges{NewTrips: trips}
	if !snap.Degraded() {
		favIDs, stIDs := snap.FavoriteIDs(), snap.StationIDs()
		changes.FavoritesAdded, changes.FavoritesRemoved = domain.DiffIDs(c.state.favoriteIDs, favIDs)
		changes.StationsAdded, changes.StationsRemoved = domain.DiffIDs(c.state.stationIDs, stIDs)
		c.state.favoriteIDs, c.state.stationIDs = favIDs, stIDs
	}
	c.snap.Store(snap)

	metrics.SetValidationStatus(string(snap.ValidationStatus))
	metrics.NearbyBikes.WithLabelValues("total").Set(float64(snap.Nearby.TotalBikes))
	metrics.NearbyBikes.WithLabelValues("recommended").Set(float64(snap.Nearby.RecommendedBikes))

	for _, l := range c.deps.Listeners {
		if err := l.OnSnapshot(ctx, snap, changes); err != nil {
			c.log.Warn("snapshot listener failed", "listener", fmt.Sprintf("%T", l), "error", err)
		}
	}
}

// cycleAPI lists every station through the open-data API.
func (c *Coordinator) cycleAPI(ctx context.Context) (cycleResult, error) {
	rows, err := c.deps.Source.FetchAll(ctx)
	if err != nil {
		return cycleResult{}, err
	}
	base := c.base()
	all, nonzero := c.stationsFromStatuses(rows)
	stations, resolutions := c.resolveWithFallback(all, base.Stations)

	snap := c.empty()
	snap.ValidationStatus = domain.ValidationOK
	snap.UpdatedAt = c.now()
	snap.Stations = stations
	snap.Resolutions = resolutions
	snap.Nearby = ComputeNearby(c.center(ctx), all, c.opts.Nearby)
	snap.TotalRows = len(rows)
	snap.NonzeroStations = nonzero
	snap.LastRequest = c.deps.Source.LastMeta()
	return cycleResult{snap: snap}, nil
}

// resolveWithFallback resolves the configured inputs and keeps previously
// known stations for inputs that no longer resolve.
func (c *Coordinator) resolveWithFallback(all, prev []domain.Station) ([]domain.Station, []domain.StationResolution) {
	_, resolutions := ResolveStationInputs(c.opts.StationInputs, all)
	byID := make(map[string]domain.Station, len(all))
	for _, s := range all {
		byID[s.StationID] = s
	}
	stations := make([]domain.Station, 0, len(resolutions))
	seen := map[string]struct{}{}
	for _, res := range resolutions {
		s, ok := byID[res.StationID]
		if !ok {
			id, no := splitInput(res.Input)
			s, ok = FallbackStation(prev, id, no, res.Input)
		}
		if !ok {
			continue
		}
		if _, dup := seen[s.StationID]; dup {
			continue
		}
		seen[s.StationID] = struct{}{}
		stations = append(stations, s)
	}
	return stations, resolutions
}

func (c *Coordinator) stationsFromStatuses(items []domain.StationStatus) ([]domain.Station, int) {
	out := make([]domain.Station, 0, len(items))
	nonzero := 0
	for _, it := range items {
		s, ok := StationFromStatus(it, c.opts.CountPolicy, "", "", "")
		if !ok {
			continue
		}
		if s.BikesTotal > 0 {
			nonzero++
		}
		out = append(out, s)
	}
	return out, nonzero
}
