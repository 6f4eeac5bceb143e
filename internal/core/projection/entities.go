// Package projection maps a coordinator snapshot onto home-automation
// entities. It only reads the snapshot.
package projection

import (
	"strconv"
	"strings"
	"time"

	"github.com/samirrijal/seoulbike/internal/core/domain"
	"github.com/samirrijal/seoulbike/internal/pkg/geospatial"
)

const (
	prefix = "seoulbike"

	unitBikes  = "bikes"
	unitMeters = "m"

	deviceAccount    = prefix + "_account"
	deviceController = prefix + "_controller"
	deviceNearby     = prefix + "_nearby"
)

// kcal box labels as they appear on the history page, with the suffix and
// unit of the numeric sensor built from each.
var kcalFields = []struct {
	label, suffix, unit string
}{
	{"이용시간", "duration", ""},
	{"거리", "distance", "km"},
	{"칼로리", "calories", "kcal"},
	{"탄소절감효과", "carbon_saved", "kg"},
}

var periodSlugs = map[string]string{
	domain.PeriodHistory: "history",
	domain.PeriodWeek:    "week",
	domain.PeriodMonth:   "month",
}

// Slug turns an upstream id into an entity id fragment: "ST-1234" -> "st_1234".
func Slug(id string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(id)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return strings.Trim(b.String(), "_")
}

func favoritePrefix(stationID string) string { return prefix + "_fav_" + Slug(stationID) }
func stationPrefix(stationID string) string  { return prefix + "_station_" + Slug(stationID) }

// EntityIDsForFavorite lists every entity id created for one favorite.
func EntityIDsForFavorite(stationID string) []string {
	p := favoritePrefix(stationID)
	return []string{p + "_general", p + "_sprout", p + "_total", p + "_station_id", p + "_refresh"}
}

// EntityIDsForStation lists every entity id created for one monitored
// station.
func EntityIDsForStation(stationID string) []string {
	p := stationPrefix(stationID)
	return []string{
		p + "_bikes_total", p + "_bikes_general", p + "_bikes_sprout", p + "_bikes_repair",
		p + "_station_id", p + "_distance", p + "_refresh",
	}
}

// RemovedIDs lists the entity ids to remove for a set change.
func RemovedIDs(changes domain.SetChanges) []string {
	var ids []string
	for _, id := range changes.FavoritesRemoved {
		ids = append(ids, EntityIDsForFavorite(id)...)
	}
	for _, id := range changes.StationsRemoved {
		ids = append(ids, EntityIDsForStation(id)...)
	}
	return ids
}

// ActionForButton finds the refresh action declared by a button entity.
func ActionForButton(entities []domain.Entity, id string) (domain.RefreshAction, bool) {
	for _, e := range entities {
		if e.ID == id && e.Kind == domain.KindButton && e.Action != nil {
			return *e.Action, true
		}
	}
	return domain.RefreshAction{}, false
}

type builder struct {
	snap      *domain.Snapshot
	available bool
	out       []domain.Entity
}

func (b *builder) add(e domain.Entity) {
	if !e.Diagnostic {
		e.Available = b.available
	} else {
		e.Available = true
	}
	b.out = append(b.out, e)
}

// Build projects every entity for the snapshot, in a stable order.
func Build(snap *domain.Snapshot) []domain.Entity {
	if snap == nil {
		return nil
	}
	b := &builder{snap: snap, available: snap.ValidationStatus != domain.ValidationError}
	b.controller()
	b.diagnostics()
	if snap.Mode == (domain.CookieSessionMode{}).Name() {
		b.account()
		for _, period := range sortedPeriods(snap.Periods) {
			b.period(period, snap.Periods[period])
		}
		seen := make(map[string]struct{}, len(snap.Favorites))
		for _, f := range snap.Favorites {
			// one entity group per station, first listing wins
			if _, dup := seen[f.StationID]; dup {
				continue
			}
			seen[f.StationID] = struct{}{}
			b.favorite(f)
		}
	}
	for _, s := range snap.Stations {
		b.station(s)
	}
	b.nearby()
	return b.out
}

func sortedPeriods(periods map[string]domain.UsagePeriod) []string {
	var out []string
	for _, k := range []string{domain.PeriodHistory, domain.PeriodWeek, domain.PeriodMonth} {
		if _, ok := periods[k]; ok {
			out = append(out, k)
		}
	}
	return out
}

func button(id, name, device, deviceName string, scope domain.EntityScope, action domain.RefreshAction) domain.Entity {
	return domain.Entity{
		ID:         id,
		Kind:       domain.KindButton,
		Scope:      scope,
		Name:       name,
		Device:     device,
		DeviceName: deviceName,
		Icon:       "mdi:refresh",
		Action:     &action,
	}
}

func (b *builder) controller() {
	b.add(button(prefix+"_refresh_all", "Refresh now", deviceController, "Seoul Bike",
		domain.ScopeController, domain.RefreshAction{Scope: domain.RefreshAll}))
	b.add(button(prefix+"_refresh_stations", "Refresh stations", deviceController, "Seoul Bike",
		domain.ScopeController, domain.RefreshAction{Scope: domain.RefreshStations}))
}

func (b *builder) diagnostics() {
	s := b.snap
	diag := func(id, name, state string, attrs map[string]any) domain.Entity {
		return domain.Entity{
			ID:         prefix + "_" + id,
			Kind:       domain.KindSensor,
			Scope:      domain.ScopeController,
			Name:       name,
			Device:     deviceController,
			DeviceName: "Seoul Bike",
			State:      state,
			Attributes: attrs,
			Diagnostic: true,
		}
	}

	status := ""
	if s.LastRequest.Status > 0 {
		status = strconv.Itoa(s.LastRequest.Status)
	}
	b.add(diag("validation_status", "Validation status", string(s.ValidationStatus), map[string]any{"mode": s.Mode}))
	b.add(diag("last_http_status", "Last HTTP status", status, map[string]any{
		"method": s.LastRequest.Method,
		"url":    s.LastRequest.URL,
	}))
	b.add(diag("last_error", "Last error", firstNonEmpty(s.Error, s.LastRequest.Error), nil))

	updated := diag("last_update", "Last update", "", nil)
	if !s.UpdatedAt.IsZero() {
		updated.State = s.UpdatedAt.UTC().Format(time.RFC3339)
	}
	updated.DeviceClass = "timestamp"
	b.add(updated)

	if s.Mode == (domain.APIKeyMode{}).Name() {
		b.add(diag("api_diagnostic", "API data", strconv.Itoa(s.TotalRows), map[string]any{
			"total_rows":       s.TotalRows,
			"nonzero_stations": s.NonzeroStations,
			"resolutions":      s.Resolutions,
		}))
	}
}

func (b *builder) account() {
	s := b.snap
	ts := func(id, name, value string, diagnostic bool) domain.Entity {
		return domain.Entity{
			ID:          prefix + "_" + id,
			Kind:        domain.KindSensor,
			Scope:       domain.ScopeAccount,
			Name:        name,
			Device:      deviceAccount,
			DeviceName:  "Seoul Bike account",
			State:       value,
			DeviceClass: "timestamp",
			Diagnostic:  diagnostic,
		}
	}
	expiry := ts("ticket_expiry", "Ticket expiry", s.Account.TicketExpiry, false)
	expiry.Attributes = map[string]any{"source": s.Account.Source, "voucher_end": s.Account.VoucherEnd}
	b.add(expiry)
	b.add(ts("registered_at", "Registered", s.Account.RegisteredAt, true))
	b.add(ts("last_login", "Last login", s.Account.LastLoginAt, true))

	renting := "off"
	if s.RentStatus.Renting() {
		renting = "on"
	}
	b.add(domain.Entity{
		ID:         prefix + "_renting",
		Kind:       domain.KindBinarySensor,
		Scope:      domain.ScopeAccount,
		Name:       "Renting",
		Device:     deviceAccount,
		DeviceName: "Seoul Bike account",
		State:      renting,
		Icon:       "mdi:bicycle",
		Attributes: map[string]any{"rent_bike_no": s.RentStatus.RentBikeNo, "login_state": s.RentStatus.LoginState().String()},
	})
	b.add(button(prefix+"_refresh_account", "Refresh account", deviceAccount, "Seoul Bike account",
		domain.ScopeAccount, domain.RefreshAction{Scope: domain.RefreshAccount}))
}

func (b *builder) period(key string, p domain.UsagePeriod) {
	slug := periodSlugs[key]
	device := prefix + "_history_" + slug
	deviceName := "Seoul Bike history (" + key + ")"
	sensor := func(id, name, state string) domain.Entity {
		return domain.Entity{
			ID:         device + "_" + id,
			Kind:       domain.KindSensor,
			Scope:      domain.ScopeAccount,
			Name:       name,
			Device:     device,
			DeviceName: deviceName,
			State:      state,
		}
	}

	var last domain.HistoryEntry
	if p.Last != nil {
		last = *p.Last
	}
	b.add(sensor("last_bike", "Last bike", last.Bike))
	b.add(sensor("last_rent_station", "Last rent station", last.RentStation))
	b.add(sensor("last_rent_datetime", "Last rent time", last.RentDatetime))
	b.add(sensor("last_return_station", "Last return station", last.ReturnStation))
	b.add(sensor("last_return_datetime", "Last return time", last.ReturnDatetime))

	rng := sensor("period_range", "Period", "")
	if p.PeriodStart != "" || p.PeriodEnd != "" {
		rng.State = p.PeriodStart + " ~ " + p.PeriodEnd
	}
	rng.Attributes = map[string]any{"period_start": p.PeriodStart, "period_end": p.PeriodEnd}
	if p.MoveRoute != nil {
		rng.Attributes["move_route"] = p.MoveRoute
	}
	b.add(rng)

	kcal := normalizeKcal(p.Kcal)
	for _, f := range kcalFields {
		e := sensor("kcal_"+f.suffix, f.label, kcal[f.label])
		if f.unit != "" {
			if v, ok := leadingNumber(e.State); ok {
				e.State = v
			} else {
				e.State = ""
			}
			e.Unit = f.unit
			e.StateClass = "measurement"
		}
		b.add(e)
	}
}

// normalizeKcal indexes labels with and without spaces.
func normalizeKcal(raw map[string]string) map[string]string {
	out := make(map[string]string, len(raw)*2)
	for k, v := range raw {
		out[k] = v
		out[strings.ReplaceAll(k, " ", "")] = v
	}
	return out
}

func leadingNumber(s string) (string, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	end := 0
	for end < len(s) && (s[end] >= '0' && s[end] <= '9' || s[end] == '.') {
		end++
	}
	if end == 0 {
		return "", false
	}
	if _, err := strconv.ParseFloat(s[:end], 64); err != nil {
		return "", false
	}
	return s[:end], true
}

func (b *builder) favorite(f domain.Favorite) {
	p := favoritePrefix(f.StationID)
	deviceName := "Favorite " + firstNonEmpty(f.StationName, f.StationID)
	count := func(suffix, name string, v *int) domain.Entity {
		e := domain.Entity{
			ID:         p + "_" + suffix,
			Kind:       domain.KindSensor,
			Scope:      domain.ScopeFavorite,
			Name:       name,
			Device:     p,
			DeviceName: deviceName,
			Unit:       unitBikes,
			StateClass: "measurement",
			Icon:       "mdi:bicycle",
		}
		if v != nil {
			e.State = strconv.Itoa(*v)
		}
		return e
	}
	total := f.Total
	if total == nil && (f.Normal != nil || f.Sprout != nil) {
		n := derefInt(f.Normal) + derefInt(f.Sprout)
		total = &n
	}
	b.add(count("general", "Bikes (general)", f.Normal))
	b.add(count("sprout", "Bikes (sprout)", f.Sprout))
	b.add(count("total", "Bikes", total))

	attrs := map[string]any{"station_name": f.StationName, "station_no": f.StationNo}
	if f.Location != nil {
		attrs["latitude"], attrs["longitude"] = f.Location.Lat, f.Location.Lon
	}
	b.add(domain.Entity{
		ID:         p + "_station_id",
		Kind:       domain.KindSensor,
		Scope:      domain.ScopeFavorite,
		Name:       "Station ID",
		Device:     p,
		DeviceName: deviceName,
		State:      f.StationID,
		Attributes: attrs,
		Diagnostic: true,
	})
	b.add(button(p+"_refresh", "Refresh station", p, deviceName, domain.ScopeFavorite,
		domain.RefreshAction{Scope: domain.RefreshFavorite, Target: f.StationID}))
}

func (b *builder) station(s domain.Station) {
	p := stationPrefix(s.StationID)
	deviceName := s.DisplayName()
	count := func(suffix, name string, v int) domain.Entity {
		return domain.Entity{
			ID:         p + "_" + suffix,
			Kind:       domain.KindSensor,
			Scope:      domain.ScopeStation,
			Name:       name,
			Device:     p,
			DeviceName: deviceName,
			State:      strconv.Itoa(v),
			Unit:       unitBikes,
			StateClass: "measurement",
			Icon:       "mdi:bicycle",
		}
	}
	b.add(count("bikes_total", "Bikes", s.BikesTotal))
	b.add(count("bikes_general", "Bikes (general)", s.BikesGeneral))
	b.add(count("bikes_sprout", "Bikes (sprout)", s.BikesSprout))
	b.add(count("bikes_repair", "Needs repair", s.BikesRepair))

	attrs := map[string]any{"station_no": s.StationNo, "station_title": s.StationTitle}
	if s.Location.Valid() {
		attrs["latitude"], attrs["longitude"] = s.Location.Lat, s.Location.Lon
	}
	b.add(domain.Entity{
		ID:         p + "_station_id",
		Kind:       domain.KindSensor,
		Scope:      domain.ScopeStation,
		Name:       "Station ID",
		Device:     p,
		DeviceName: deviceName,
		State:      s.StationID,
		Attributes: attrs,
		Diagnostic: true,
	})

	dist := domain.Entity{
		ID:          p + "_distance",
		Kind:        domain.KindSensor,
		Scope:       domain.ScopeStation,
		Name:        "Distance to center",
		Device:      p,
		DeviceName:  deviceName,
		Unit:        unitMeters,
		DeviceClass: "distance",
		StateClass:  "measurement",
	}
	if center := b.snap.Nearby.Center.Point; center.Valid() && s.Location.Valid() {
		dist.State = strconv.FormatFloat(distance(center, s.Location), 'f', 1, 64)
	}
	b.add(dist)

	b.add(button(p+"_refresh", "Refresh station", p, deviceName, domain.ScopeStation,
		domain.RefreshAction{Scope: domain.RefreshStation, Target: s.StationID}))
}

func (b *builder) nearby() {
	n := b.snap.Nearby
	attrs := map[string]any{
		"center_status": n.Center.Status,
		"center_source": n.Center.Source,
		"radius_m":      n.Radius,
		"min_bikes":     n.MinBikes,
		"max_results":   n.MaxResults,
	}
	if n.Center.Point.Valid() {
		attrs["latitude"], attrs["longitude"] = n.Center.Point.Lat, n.Center.Point.Lon
	}
	sensor := func(id, name string, v int) domain.Entity {
		return domain.Entity{
			ID:         prefix + "_nearby_" + id,
			Kind:       domain.KindSensor,
			Scope:      domain.ScopeNearby,
			Name:       name,
			Device:     deviceNearby,
			DeviceName: "Seoul Bike nearby",
			State:      strconv.Itoa(v),
			Unit:       unitBikes,
			StateClass: "measurement",
			Icon:       "mdi:map-marker-radius",
			Attributes: attrs,
		}
	}
	b.add(sensor("total_bikes", "Nearby bikes", n.TotalBikes))
	b.add(sensor("recommended_bikes", "Recommended bikes", n.RecommendedBikes))

	list := sensor("stations", "Nearby stations", len(n.Stations))
	list.Unit = ""
	list.Attributes = map[string]any{"stations": n.Stations, "center_status": n.Center.Status}
	b.add(list)
}

func distance(a, b domain.GeoPoint) float64 {
	return geospatial.Haversine(a.Lat, a.Lon, b.Lat, b.Lon)
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
