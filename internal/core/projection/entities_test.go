package projection_test

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/samirrijal/seoulbike/internal/core/domain"
	"github.com/samirrijal/seoulbike/internal/core/projection"
)

func ip(n int) *int { return &n }

func cookieSnapshot() *domain.Snapshot {
	last := domain.HistoryEntry{Bike: "SPB-1", RentStation: "102. 망원역", HistoryID: "777"}
	return &domain.Snapshot{
		Mode:             "cookie",
		ValidationStatus: domain.ValidationOK,
		UpdatedAt:        time.Date(2025, 3, 8, 12, 0, 0, 0, time.UTC),
		Account:          domain.AccountState{TicketExpiry: "2025-12-31T14:59:00Z", Source: "voucher_api"},
		RentStatus:       domain.RentStatus{RentYn: "Y", Raw: map[string]any{}},
		Periods: map[string]domain.UsagePeriod{
			"history": {
				Key:         "history",
				PeriodStart: "2025-03-01",
				PeriodEnd:   "2025-03-08",
				Kcal:        map[string]string{"거리": "3.25 km", "칼로리": "120.5kcal", "이용 시간": "35분"},
				History:     []domain.HistoryEntry{last},
				Last:        &last,
			},
		},
		Favorites: []domain.Favorite{{StationID: "ST-102", StationName: "102. 망원역", Normal: ip(4), Sprout: ip(1)}},
		Stations: []domain.Station{{
			StationID:    "ST-105",
			StationNo:    "105",
			StationTitle: "합정역",
			Location:     domain.GeoPoint{Lat: 37.5700, Lon: 126.9790},
			BikesTotal:   3,
			BikesGeneral: 3,
		}},
		Nearby: domain.Nearby{
			Center:           domain.Center{Point: domain.GeoPoint{Lat: 37.5663, Lon: 126.9779}, Status: domain.CenterOK},
			TotalBikes:       12,
			RecommendedBikes: 9,
		},
		LastRequest: domain.RequestMeta{Method: "GET", URL: "https://www.bikeseoul.com/x", Status: 200},
	}
}

func byID(entities []domain.Entity) map[string]domain.Entity {
	out := make(map[string]domain.Entity, len(entities))
	for _, e := range entities {
		out[e.ID] = e
	}
	return out
}

func TestSlug(t *testing.T) {
	for in, want := range map[string]string{"ST-1234": "st_1234", " st-9 ": "st_9", "A.B": "a_b"} {
		if got := projection.Slug(in); got != want {
			t.Errorf("Slug(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBuild_CookieSnapshot(t *testing.T) {
	entities := projection.Build(cookieSnapshot())
	ids := byID(entities)
	if len(ids) != len(entities) {
		t.Fatalf("entity ids are not unique: %d entities, %d ids", len(entities), len(ids))
	}

	checks := map[string]string{
		"seoulbike_fav_st_102_general":            "4",
		"seoulbike_fav_st_102_total":              "5",
		"seoulbike_station_st_105_bikes_total":    "3",
		"seoulbike_renting":                       "on",
		"seoulbike_ticket_expiry":                 "2025-12-31T14:59:00Z",
		"seoulbike_history_history_last_bike":     "SPB-1",
		"seoulbike_history_history_kcal_distance": "3.25",
		"seoulbike_history_history_kcal_calories": "120.5",
		"seoulbike_history_history_kcal_duration": "35분",
		"seoulbike_history_history_period_range":  "2025-03-01 ~ 2025-03-08",
		"seoulbike_nearby_total_bikes":            "12",
		"seoulbike_nearby_recommended_bikes":      "9",
		"seoulbike_last_http_status":              "200",
		"seoulbike_validation_status":             "ok",
		"seoulbike_last_update":                   "2025-03-08T12:00:00Z",
	}
	for id, want := range checks {
		e, ok := ids[id]
		if !ok {
			t.Errorf("missing entity %s", id)
			continue
		}
		if e.State != want {
			t.Errorf("%s: state %q, want %q", id, e.State, want)
		}
		if !e.Available {
			t.Errorf("%s: expected available", id)
		}
	}

	if d := ids["seoulbike_station_st_105_distance"]; d.State == "" || d.Unit != "m" {
		t.Errorf("expected distance sensor in meters, got %+v", d)
	}
	if _, ok := ids["seoulbike_api_diagnostic"]; ok {
		t.Error("api diagnostic must only exist in api_key mode")
	}
}

func TestBuild_RemovalIDsMatchProjection(t *testing.T) {
	ids := byID(projection.Build(cookieSnapshot()))
	for _, id := range projection.EntityIDsForFavorite("ST-102") {
		if _, ok := ids[id]; !ok {
			t.Errorf("favorite removal id %s is not projected", id)
		}
	}
	for _, id := range projection.EntityIDsForStation("ST-105") {
		if _, ok := ids[id]; !ok {
			t.Errorf("station removal id %s is not projected", id)
		}
	}

	got := projection.RemovedIDs(domain.SetChanges{FavoritesRemoved: []string{"ST-1"}})
	if diff := cmp.Diff(projection.EntityIDsForFavorite("ST-1"), got); diff != "" {
		t.Errorf("RemovedIDs mismatch (-want +got):\n%s", diff)
	}
}

func TestBuild_DuplicateFavoriteStation(t *testing.T) {
	snap := cookieSnapshot()
	snap.Favorites = append(snap.Favorites, domain.Favorite{StationID: "ST-102", StationName: "102. 망원역 2번출구", Normal: ip(9)})
	entities := projection.Build(snap)
	ids := byID(entities)
	if len(ids) != len(entities) {
		t.Fatalf("entity ids are not unique: %d entities, %d ids", len(entities), len(ids))
	}
	if got := ids["seoulbike_fav_st_102_general"].State; got != "4" {
		t.Errorf("expected first listing to win, got %q", got)
	}
}

func TestBuild_APIModeHasNoAccountEntities(t *testing.T) {
	snap := cookieSnapshot()
	snap.Mode = "api_key"
	snap.TotalRows = 3000
	ids := byID(projection.Build(snap))

	if _, ok := ids["seoulbike_renting"]; ok {
		t.Error("renting sensor must not exist in api_key mode")
	}
	if _, ok := ids["seoulbike_fav_st_102_general"]; ok {
		t.Error("favorites must not be projected in api_key mode")
	}
	if e := ids["seoulbike_api_diagnostic"]; e.State != "3000" {
		t.Errorf("expected api diagnostic 3000, got %q", e.State)
	}
}

func TestBuild_ErrorSnapshotKeepsDiagnosticsAvailable(t *testing.T) {
	snap := cookieSnapshot()
	snap.ValidationStatus = domain.ValidationError
	snap.Error = "http_error_502"
	ids := byID(projection.Build(snap))

	if e := ids["seoulbike_last_error"]; !e.Available || e.State != "http_error_502" {
		t.Errorf("expected available last_error, got %+v", e)
	}
	if ids["seoulbike_nearby_total_bikes"].Available {
		t.Error("data sensors must be unavailable on a failed update")
	}
}

func TestActionForButton(t *testing.T) {
	entities := projection.Build(cookieSnapshot())
	tests := []struct {
		id   string
		want domain.RefreshAction
	}{
		{"seoulbike_refresh_all", domain.RefreshAction{Scope: domain.RefreshAll}},
		{"seoulbike_refresh_account", domain.RefreshAction{Scope: domain.RefreshAccount}},
		{"seoulbike_refresh_stations", domain.RefreshAction{Scope: domain.RefreshStations}},
		{"seoulbike_fav_st_102_refresh", domain.RefreshAction{Scope: domain.RefreshFavorite, Target: "ST-102"}},
		{"seoulbike_station_st_105_refresh", domain.RefreshAction{Scope: domain.RefreshStation, Target: "ST-105"}},
	}
	for _, tt := range tests {
		got, ok := projection.ActionForButton(entities, tt.id)
		if !ok {
			t.Errorf("%s: no action", tt.id)
			continue
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("%s mismatch (-want +got):\n%s", tt.id, diff)
		}
	}
	if _, ok := projection.ActionForButton(entities, "seoulbike_renting"); ok {
		t.Error("sensors carry no action")
	}
}
