package usecases

import (
	"context"
	"time"

	"github.com/samirrijal/seoulbike/internal/core/domain"
	"github.com/samirrijal/seoulbike/internal/core/extract"
	"github.com/samirrijal/seoulbike/internal/pkg/metrics"
)

// checkSession probes rent status. A failed probe is indeterminate, not
// invalid.
func (c *Coordinator) checkSession(ctx context.Context) domain.RentStatus {
	rent, err := c.deps.Site.FetchRentStatus(ctx)
	if err != nil {
		c.log.Warn("rent status probe failed", "error", err, "kind", domain.ErrorKind(err))
		return domain.RentStatus{Error: err.Error()}
	}
	return rent
}

// ensureSession re-logs in when the session is explicitly invalid and
// credentials are configured. The new cookie is persisted before the rent
// status is checked again.
func (c *Coordinator) ensureSession(ctx context.Context) (domain.RentStatus, domain.SessionState) {
	rent := c.checkSession(ctx)
	state := rent.LoginState()
	if state != domain.SessionInvalid {
		return rent, state
	}

	mode, _ := c.opts.Auth.(domain.CookieSessionMode)
	if !mode.HasCredentials() {
		c.log.Warn("session expired and no credentials configured")
		return rent, state
	}

	cookie, err := c.deps.Site.Login(ctx, mode.Username, mode.Password)
	if err != nil {
		metrics.Relogins.WithLabelValues("failure").Inc()
		c.log.Warn("re-login failed", "error", err, "kind", domain.ErrorKind(err))
		return rent, state
	}
	metrics.Relogins.WithLabelValues("success").Inc()
	c.log.Info("re-login succeeded")

	if c.deps.Cookies != nil {
		if err := c.deps.Cookies.Save(ctx, cookie); err != nil {
			c.log.Warn("failed to persist session cookie", "error", err)
		}
	}

	rent = c.checkSession(ctx)
	return rent, rent.LoginState()
}

// degraded is the snapshot published when the session is unusable: empty
// collections, the last known account state and a visible error.
func (c *Coordinator) degraded(base *domain.Snapshot, rent domain.RentStatus) *domain.Snapshot {
	snap := c.empty()
	snap.ValidationStatus = domain.ValidationLoginPage
	snap.Error = domain.ErrLoginPage.Error()
	snap.UpdatedAt = c.now()
	snap.Account = base.Account
	snap.RentStatus = rent
	snap.LastRequest = c.lastMeta()
	return snap
}

// cycleCookie is the scrape-mode state machine.
func (c *Coordinator) cycleCookie(ctx context.Context) (cycleResult, error) {
	now := c.now()
	base := c.base()

	rent, state := c.ensureSession(ctx)
	if state == domain.SessionInvalid {
		return cycleResult{snap: c.degraded(base, rent)}, nil
	}

	snap := c.clone(base)
	snap.Mode = c.Mode()
	snap.ValidationStatus = domain.ValidationOK
	snap.Error = ""
	snap.UpdatedAt = now
	snap.RentStatus = rent
	res := cycleResult{snap: snap}

	res.account = due(c.state.lastAccount, c.opts.AccountInterval, now)
	if res.account {
		snap.UserStatus = c.auxStatus(ctx, "user_status", c.deps.Site.FetchUserStatus)
		snap.ReconsentStatus = c.auxStatus(ctx, "reconsent_status", c.deps.Site.FetchReconsentStatus)
	}

	if due(c.state.lastHistory, c.opts.HistoryInterval, now) {
		periods, trips, loginPage, err := c.fetchHistory(ctx, base.Periods, now)
		if err != nil {
			return cycleResult{}, err
		}
		if loginPage {
			return cycleResult{snap: c.degraded(base, rent)}, nil
		}
		snap.Periods = periods
		res.trips = trips
		res.history = true
	}

	favPage, err := c.deps.Site.FetchFavoritesHTML(ctx)
	if err != nil {
		return cycleResult{}, err
	}
	favorites := base.Favorites
	if !extract.LooksLikeLogin(favPage) {
		favorites = extract.Favorites(favPage)
	} else {
		c.log.Warn("favorites page looks like a login page; keeping previous favorites")
	}

	var realtime []domain.StationStatus
	if len(c.opts.StationInputs) > 0 || len(favorites) > 0 || c.deps.Location != nil || res.account {
		realtime = c.realtime(ctx)
	}
	idx := indexStatuses(realtime)

	if res.account {
		snap.Account = c.fetchAccount(ctx, realtime, base.Account)
	} else if ve := c.realtimeVoucherEnd(realtime); ve != "" {
		snap.Account.VoucherEnd = ve
		snap.Account.TicketExpiry = ve
		snap.Account.Source = "realtime"
	}

	snap.Favorites = c.crossReference(favorites, idx)
	snap.Stations = c.collectStations(ctx, idx, base.Stations)

	candidates, nonzero := c.stationsFromStatuses(realtime)
	if len(candidates) == 0 {
		candidates = snap.Stations
	}
	snap.Nearby = ComputeNearby(c.center(ctx), candidates, c.opts.Nearby)
	snap.TotalRows = len(realtime)
	snap.NonzeroStations = nonzero
	snap.LastRequest = c.deps.Site.LastMeta()
	return res, nil
}

// auxStatus runs a best-effort probe; a failure becomes a placeholder.
func (c *Coordinator) auxStatus(ctx context.Context, name string, fetch func(context.Context) (map[string]any, error)) domain.AuxStatus {
	data, err := fetch(ctx)
	if err != nil {
		c.log.Warn("auxiliary fetch failed", "endpoint", name, "error", err)
		return domain.AuxStatus{Error: err.Error()}
	}
	return domain.AuxStatus{Data: data}
}

// realtime returns the bulk realtime list or nil.
func (c *Coordinator) realtime(ctx context.Context) []domain.StationStatus {
	items, err := c.deps.Site.FetchStationRealtimeAll(ctx)
	if err != nil {
		c.log.Warn("bulk realtime fetch failed", "error", err, "kind", domain.ErrorKind(err))
		return nil
	}
	return items
}

func (c *Coordinator) realtimeVoucherEnd(items []domain.StationStatus) string {
	for _, it := range items {
		if it.VoucherEnd == "" {
			continue
		}
		if v := extract.DateTimeValue(it.VoucherEnd, c.opts.Location); v != "" {
			return v
		}
	}
	return ""
}

// fetchAccount gathers account dates from the realtime list, the voucher
// endpoint and the left-nav page, first non-empty source first. Absent
// values keep what prev had.
func (c *Coordinator) fetchAccount(ctx context.Context, realtime []domain.StationStatus, prev domain.AccountState) domain.AccountState {
	acct := domain.AccountState{UpdatedAt: c.now()}
	if ve := c.realtimeVoucherEnd(realtime); ve != "" {
		acct.VoucherEnd = ve
		acct.Source = "realtime"
	}

	if acct.VoucherEnd == "" || prev.RegisteredAt == "" || prev.LastLoginAt == "" {
		info, err := c.deps.Site.FetchVoucherInfo(ctx)
		if err != nil {
			c.log.Warn("voucher info fetch failed", "error", err)
			acct.Error = err.Error()
		} else {
			if acct.VoucherEnd == "" && info.VoucherEnd != "" {
				acct.VoucherEnd = info.VoucherEnd
				acct.Source = "voucher_api"
			}
			acct.RegisteredAt = info.RegisteredAt
			acct.LastLoginAt = info.LastLoginAt
		}
	}

	acct.TicketExpiry = acct.VoucherEnd
	if acct.TicketExpiry == "" {
		page, err := c.deps.Site.FetchLeftPageHTML(ctx)
		switch {
		case err != nil:
			c.log.Warn("left page fetch failed", "error", err)
			if acct.Error == "" {
				acct.Error = err.Error()
			}
		case extract.LooksLikeLogin(page):
			c.log.Info("left page is a login form, ticket expiry skipped")
		default:
			if t, ok := extract.TicketExpiry(page, c.opts.Location); ok {
				acct.TicketExpiry = t.Format(time.RFC3339)
				acct.Source = "left_page"
			}
		}
	}
	return acct.Merge(prev)
}

// fetchHistory loads the base history page and every configured period.
// loginPage is true when every page looks like a login form.
func (c *Coordinator) fetchHistory(ctx context.Context, prev map[string]domain.UsagePeriod, now time.Time) (map[string]domain.UsagePeriod, []domain.TripRecord, bool, error) {
	basePage, err := c.deps.Site.FetchUseHistoryHTML(ctx, domain.PeriodHistory, "")
	if err != nil {
		return nil, nil, false, err
	}
	pages := make(map[string]string, len(c.opts.HistoryPeriods))
	allLogin := extract.LooksLikeLogin(basePage)
	for _, period := range c.opts.HistoryPeriods {
		page := basePage
		if period != domain.PeriodHistory {
			page, err = c.deps.Site.FetchUseHistoryHTML(ctx, period, basePage)
			if err != nil {
				return nil, nil, false, err
			}
			allLogin = allLogin && extract.LooksLikeLogin(page)
		}
		pages[period] = page
	}
	if allLogin {
		return nil, nil, true, nil
	}

	periods := make(map[string]domain.UsagePeriod, len(prev)+len(pages))
	for k, v := range prev {
		periods[k] = v
	}
	var trips []domain.TripRecord
	seen := map[string]struct{}{}
	for _, period := range c.opts.HistoryPeriods {
		p, trip := c.buildPeriod(ctx, period, pages[period], prev[period], now)
		periods[period] = p
		if trip == nil {
			continue
		}
		if _, dup := seen[trip.Key]; dup {
			continue
		}
		seen[trip.Key] = struct{}{}
		trips = append(trips, *trip)
	}
	return periods, trips, false, nil
}

// buildPeriod parses one period page, merges it with the previous state and
// resolves the move route of the latest trip. trip is non-nil when the page
// showed a trip not seen before.
func (c *Coordinator) buildPeriod(ctx context.Context, period, page string, prev domain.UsagePeriod, now time.Time) (domain.UsagePeriod, *domain.TripRecord) {
	parsed := extract.UseHistory(period, page, now)
	out := MergeLatestHistory(parsed, prev)
	if out.PeriodStart == "" || out.PeriodEnd == "" {
		start, end := DefaultPeriodRange(period, now.In(c.opts.Location))
		if out.PeriodStart == "" {
			out.PeriodStart = start
		}
		if out.PeriodEnd == "" {
			out.PeriodEnd = end
		}
	}

	if out.Last != nil && out.Last.HistoryID != "" && out.MoveRoute == nil {
		route := &domain.MoveRoute{HistoryID: out.Last.HistoryID}
		payload, err := c.deps.Site.FetchMoveRoute(ctx, out.Last.HistoryID)
		if err != nil {
			c.log.Warn("move route fetch failed", "history_id", out.Last.HistoryID, "error", err)
			route.Error = err.Error()
		} else {
			route.Payload = payload
		}
		out.MoveRoute = route
	}

	if len(parsed.History) == 0 {
		return out, nil
	}
	latest := parsed.History[0]
	key := latest.Key()
	if key == "" || c.state.lastTrips[period] == key {
		return out, nil
	}
	trip := domain.NewTripRecord(period, latest, now)
	return out, &trip
}

// applyStatus overwrites a favorite's counts with a realtime record.
func (c *Coordinator) applyStatus(f domain.Favorite, st domain.StationStatus) domain.Favorite {
	s, ok := StationFromStatus(st, c.opts.CountPolicy, f.StationID, f.StationNo, f.StationName)
	if !ok {
		return f
	}
	general, sprout, repair, total := s.BikesGeneral, s.BikesSprout, s.BikesRepair, s.BikesTotal
	f.Normal, f.Sprout, f.Repair, f.Total = &general, &sprout, &repair, &total
	if f.StationNo == "" {
		f.StationNo = s.StationNo
	}
	if s.Location.Valid() {
		loc := s.Location
		f.Location = &loc
	}
	return f
}

// crossReference refines favorite counts with the bulk realtime list,
// matched by id then by number.
func (c *Coordinator) crossReference(favs []domain.Favorite, idx realtimeIndex) []domain.Favorite {
	out := make([]domain.Favorite, len(favs))
	for i, f := range favs {
		if st, ok := idx.lookup(f.StationID, f.StationNo); ok {
			f = c.applyStatus(f, st)
		}
		out[i] = f
	}
	return out
}

// collectStations builds the monitored stations: bulk list, then a
// per-station fetch, then the previous record. If nothing resolves the
// previous list is kept whole.
func (c *Coordinator) collectStations(ctx context.Context, idx realtimeIndex, prev []domain.Station) []domain.Station {
	stations := make([]domain.Station, 0, len(c.opts.StationInputs))
	seen := map[string]struct{}{}
	for _, in := range c.opts.StationInputs {
		id, no := splitInput(in)
		st, ok := idx.lookup(id, no)
		if !ok && (id != "" || no != "") {
			fetched, err := c.deps.Site.FetchStationStatus(ctx, id, no)
			if err != nil {
				c.log.Debug("station status fetch failed", "input", in, "error", err)
			} else if !fetched.Empty() {
				st, ok = fetched, true
			}
		}

		var s domain.Station
		if ok {
			s, ok = StationFromStatus(st, c.opts.CountPolicy, id, no, "")
		}
		if !ok {
			s, ok = FallbackStation(prev, id, no, in)
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
	if len(stations) == 0 && len(prev) > 0 {
		return prev
	}
	return stations
}
