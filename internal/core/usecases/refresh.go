package usecases

import (
	"context"
	"fmt"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/samirrijal/seoulbike/internal/core/domain"
	"github.com/samirrijal/seoulbike/internal/core/extract"
)

func (c *Coordinator) cookieMode() bool {
	_, ok := c.opts.Auth.(domain.CookieSessionMode)
	return ok
}

// resumeSession runs a full cycle in place of a targeted refresh while the
// published snapshot reflects a lost session. handled reports whether the
// caller should stop.
func (c *Coordinator) resumeSession(ctx context.Context) (handled bool, err error) {
	if !c.cookieMode() || c.current().ValidationStatus != domain.ValidationLoginPage {
		return false, nil
	}
	if err := c.refreshLocked(ctx); err != nil {
		return true, err
	}
	if c.current().ValidationStatus == domain.ValidationLoginPage {
		return true, domain.ErrLoginPage
	}
	return true, nil
}

// keepFailure carries a failed cycle's status into a targeted refresh. Only a
// full cycle clears it.
func (c *Coordinator) keepFailure(snap *domain.Snapshot) {
	if cur := c.current(); cur.ValidationStatus == domain.ValidationError {
		snap.ValidationStatus = cur.ValidationStatus
		snap.Error = cur.Error
	}
}

func (c *Coordinator) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, "coordinator:"+name, trace.WithAttributes(attrs...))
}

// RefreshAccount refetches session, auxiliary probes and account dates.
func (c *Coordinator) RefreshAccount(ctx context.Context) error {
	if !c.cookieMode() {
		return domain.ErrUnsupported
	}
	ctx, span := c.startSpan(ctx, "RefreshAccount")
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	base := c.base()
	rent, state := c.ensureSession(ctx)
	if state == domain.SessionInvalid {
		c.publish(ctx, c.degraded(base, rent), nil)
		return domain.ErrLoginPage
	}

	snap := c.clone(base)
	snap.ValidationStatus = domain.ValidationOK
	snap.Error = ""
	snap.UpdatedAt = c.now()
	snap.RentStatus = rent
	snap.UserStatus = c.auxStatus(ctx, "user_status", c.deps.Site.FetchUserStatus)
	snap.ReconsentStatus = c.auxStatus(ctx, "reconsent_status", c.deps.Site.FetchReconsentStatus)
	snap.Account = c.fetchAccount(ctx, c.realtime(ctx), base.Account)
	snap.LastRequest = c.deps.Site.LastMeta()

	c.commit(ctx, cycleResult{snap: snap, account: true})
	return nil
}

// RefreshUseHistory refetches one history period.
func (c *Coordinator) RefreshUseHistory(ctx context.Context, period string) error {
	if !c.cookieMode() {
		return domain.ErrUnsupported
	}
	switch period {
	case domain.PeriodHistory, domain.PeriodWeek, domain.PeriodMonth:
	default:
		return fmt.Errorf("%w: %q", domain.ErrUnknownPeriod, period)
	}
	ctx, span := c.startSpan(ctx, "RefreshUseHistory", attribute.String("period", period))
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	base := c.base()
	page, err := c.deps.Site.FetchUseHistoryHTML(ctx, domain.PeriodHistory, "")
	if err != nil {
		return err
	}
	if period != domain.PeriodHistory {
		if page, err = c.deps.Site.FetchUseHistoryHTML(ctx, period, page); err != nil {
			return err
		}
	}
	if extract.LooksLikeLogin(page) {
		c.publish(ctx, c.degraded(base, base.RentStatus), nil)
		return domain.ErrLoginPage
	}

	now := c.now()
	snap := c.clone(base)
	snap.UpdatedAt = now
	p, trip := c.buildPeriod(ctx, period, page, base.Periods[period], now)
	snap.Periods[period] = p
	snap.LastRequest = c.deps.Site.LastMeta()
	c.keepFailure(snap)

	res := cycleResult{snap: snap}
	if trip != nil {
		res.trips = []domain.TripRecord{*trip}
	}
	c.commit(ctx, res)
	return nil
}

// RefreshFavoriteStation refetches the counts of one favorite station.
func (c *Coordinator) RefreshFavoriteStation(ctx context.Context, stationID string) error {
	if !c.cookieMode() {
		return domain.ErrUnsupported
	}
	ctx, span := c.startSpan(ctx, "RefreshFavoriteStation", attribute.String("station_id", stationID))
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	if handled, err := c.resumeSession(ctx); handled {
		return err
	}
	base := c.base()
	fav, ok := base.Favorite(stationID)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrStationNotFound, stationID)
	}

	c.deps.Site.InvalidateRealtime()
	st, ok := c.lookupCookie(ctx, fav.StationID, fav.StationNo)
	if !ok {
		c.log.Info("favorite station has no fresh status", "station_id", stationID)
		return nil
	}

	snap := c.clone(base)
	snap.UpdatedAt = c.now()
	snap.Favorites = slices.Clone(base.Favorites)
	for i := range snap.Favorites {
		if snap.Favorites[i].StationID == stationID {
			snap.Favorites[i] = c.applyStatus(fav, st)
		}
	}
	snap.LastRequest = c.deps.Site.LastMeta()
	c.keepFailure(snap)
	c.commit(ctx, cycleResult{snap: snap})
	return nil
}

// RefreshStation refetches one monitored station.
func (c *Coordinator) RefreshStation(ctx context.Context, stationID string) error {
	ctx, span := c.startSpan(ctx, "RefreshStation", attribute.String("station_id", stationID))
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	if handled, err := c.resumeSession(ctx); handled {
		return err
	}
	base := c.base()
	prev, ok := base.Station(stationID)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrStationNotFound, stationID)
	}

	var st domain.StationStatus
	if c.cookieMode() {
		c.deps.Site.InvalidateRealtime()
		st, ok = c.lookupCookie(ctx, prev.StationID, prev.StationNo)
	} else {
		rows, err := c.deps.Source.FetchAll(ctx)
		if err != nil {
			return err
		}
		st, ok = indexStatuses(rows).lookup(prev.StationID, "")
	}
	if !ok {
		c.log.Info("station has no fresh status", "station_id", stationID)
		return nil
	}
	s, ok := StationFromStatus(st, c.opts.CountPolicy, prev.StationID, prev.StationNo, prev.StationTitle)
	if !ok {
		return nil
	}
	if !s.Location.Valid() {
		s.Location = prev.Location
	}

	snap := c.clone(base)
	snap.UpdatedAt = c.now()
	snap.Stations = slices.Clone(base.Stations)
	for i := range snap.Stations {
		if snap.Stations[i].StationID == stationID {
			snap.Stations[i] = s
		}
	}
	snap.LastRequest = c.lastMeta()
	c.keepFailure(snap)
	c.commit(ctx, cycleResult{snap: snap})
	return nil
}

// RefreshAllStations refetches every monitored station and the nearby
// ranking.
func (c *Coordinator) RefreshAllStations(ctx context.Context) error {
	ctx, span := c.startSpan(ctx, "RefreshAllStations")
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.cookieMode() {
		return c.refreshLocked(ctx)
	}
	if handled, err := c.resumeSession(ctx); handled {
		return err
	}

	base := c.base()
	c.deps.Site.InvalidateRealtime()
	realtime := c.realtime(ctx)

	snap := c.clone(base)
	snap.UpdatedAt = c.now()
	snap.Stations = c.collectStations(ctx, indexStatuses(realtime), base.Stations)
	candidates, nonzero := c.stationsFromStatuses(realtime)
	if len(candidates) == 0 {
		candidates = snap.Stations
	}
	snap.Nearby = ComputeNearby(c.center(ctx), candidates, c.opts.Nearby)
	if len(realtime) > 0 {
		snap.TotalRows = len(realtime)
		snap.NonzeroStations = nonzero
	}
	snap.LastRequest = c.deps.Site.LastMeta()
	c.keepFailure(snap)
	c.commit(ctx, cycleResult{snap: snap})
	return nil
}

// lookupCookie finds one station in the bulk list, falling back to the
// per-station endpoint.
func (c *Coordinator) lookupCookie(ctx context.Context, id, no string) (domain.StationStatus, bool) {
	if st, ok := indexStatuses(c.realtime(ctx)).lookup(id, no); ok {
		return st, true
	}
	st, err := c.deps.Site.FetchStationStatus(ctx, id, no)
	if err != nil {
		c.log.Warn("station status fetch failed", "station_id", id, "error", err)
		return domain.StationStatus{}, false
	}
	return st, !st.Empty()
}
