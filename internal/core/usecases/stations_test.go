package usecases_test

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/samirrijal/seoulbike/internal/core/domain"
	"github.com/samirrijal/seoulbike/internal/core/usecases"
)

func TestParseStationList(t *testing.T) {
	got := usecases.ParseStationList(" ST-1, 102\nST-1,\r\n 303 ,,")
	want := []string{"ST-1", "102", "303"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseStationList mismatch (-want +got):\n%s", diff)
	}
	if got := usecases.ParseStationList(""); len(got) != 0 {
		t.Errorf("expected empty list, got %v", got)
	}
}

func TestStationFromStatus_Totals(t *testing.T) {
	tests := []struct {
		name   string
		in     domain.StationStatus
		policy domain.CountPolicy
		total  int
		gen    int
	}{
		{"derived total", domain.StationStatus{StationID: "ST-1", General: ip(4), Sprout: ip(2)}, domain.CountPolicy{}, 6, 4},
		{"reported total wins", domain.StationStatus{StationID: "ST-1", Total: ip(10), General: ip(4), Sprout: ip(2)}, domain.CountPolicy{}, 10, 4},
		{"general from total", domain.StationStatus{StationID: "ST-1", Total: ip(5), Sprout: ip(2)}, domain.CountPolicy{}, 5, 3},
		{"qr folded", domain.StationStatus{StationID: "ST-1", General: ip(4), QR: ip(3)}, domain.CountPolicy{FoldQR: true}, 7, 7},
		{"electric kept out", domain.StationStatus{StationID: "ST-1", General: ip(4), Electric: ip(3)}, domain.DefaultCountPolicy(), 4, 4},
		{"electric folded", domain.StationStatus{StationID: "ST-1", General: ip(4), Electric: ip(3)}, domain.CountPolicy{FoldElectric: true}, 7, 7},
		{"negative clamped", domain.StationStatus{StationID: "ST-1", General: ip(-3), Sprout: ip(-1)}, domain.CountPolicy{}, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, ok := usecases.StationFromStatus(tt.in, tt.policy, "", "", "")
			if !ok {
				t.Fatal("expected station")
			}
			if s.BikesTotal != tt.total || s.BikesGeneral != tt.gen {
				t.Errorf("expected total=%d general=%d, got %d/%d", tt.total, tt.gen, s.BikesTotal, s.BikesGeneral)
			}
			if s.BikesTotal < 0 {
				t.Error("total must never be negative")
			}
			if tt.in.Total == nil && s.BikesTotal != s.BikesGeneral+s.BikesSprout {
				t.Errorf("derived total %d != general+sprout %d", s.BikesTotal, s.BikesGeneral+s.BikesSprout)
			}
		})
	}
}

func TestStationFromStatus_Identity(t *testing.T) {
	s, ok := usecases.StationFromStatus(domain.StationStatus{StationName: "102. 망원역"}, domain.CountPolicy{}, "ST-102", "", "")
	if !ok {
		t.Fatal("expected fallback id to be used")
	}
	want := domain.Station{StationID: "ST-102", StationNo: "102", StationTitle: "망원역"}
	if diff := cmp.Diff(want, s); diff != "" {
		t.Errorf("station mismatch (-want +got):\n%s", diff)
	}
	if _, ok := usecases.StationFromStatus(domain.StationStatus{}, domain.CountPolicy{}, "", "", ""); ok {
		t.Error("expected no station without any id")
	}
}

func TestFallbackStation(t *testing.T) {
	prev := []domain.Station{
		{StationID: "ST-1", StationNo: "101"},
		{StationID: "ST-2", StationNo: "202"},
	}
	if s, ok := usecases.FallbackStation(prev, "ST-2", "", ""); !ok || s.StationID != "ST-2" {
		t.Errorf("by id: got %+v", s)
	}
	if s, ok := usecases.FallbackStation(prev, "", "101", ""); !ok || s.StationID != "ST-1" {
		t.Errorf("by number: got %+v", s)
	}
	if s, ok := usecases.FallbackStation(prev, "", "", "202"); !ok || s.StationID != "ST-2" {
		t.Errorf("by raw token: got %+v", s)
	}
	if _, ok := usecases.FallbackStation(prev, "ST-9", "909", "x"); ok {
		t.Error("expected miss")
	}
}

func TestComputeNearby_Ranking(t *testing.T) {
	center := domain.Center{Point: domain.GeoPoint{Lat: 37.5, Lon: 127.0}, Status: domain.CenterOK}
	// one degree of latitude is about 111.2 km
	north := func(m float64) domain.GeoPoint { return domain.GeoPoint{Lat: 37.5 + m/111195, Lon: 127.0} }
	stations := []domain.Station{
		{StationID: "A", BikesTotal: 5, Location: north(100)},
		{StationID: "B", BikesTotal: 5, Location: north(50)},
		{StationID: "C", BikesTotal: 8, Location: north(200)},
		{StationID: "far", BikesTotal: 50, Location: north(5000)},
		{StationID: "unknown", BikesTotal: 50},
	}

	got := usecases.ComputeNearby(center, stations, usecases.NearbyOptions{Radius: 500})
	var order []string
	for _, s := range got.Stations {
		order = append(order, s.StationID)
	}
	if diff := cmp.Diff([]string{"C", "B", "A"}, order); diff != "" {
		t.Errorf("ranking mismatch (-want +got):\n%s", diff)
	}
	if got.TotalBikes != 18 || got.RecommendedBikes != 18 {
		t.Errorf("expected totals 18/18, got %d/%d", got.TotalBikes, got.RecommendedBikes)
	}

	got = usecases.ComputeNearby(center, stations, usecases.NearbyOptions{Radius: 500, MaxResults: 1, MinBikes: 6})
	if len(got.Stations) != 1 || got.Stations[0].StationID != "C" {
		t.Errorf("unexpected truncated result: %+v", got.Stations)
	}
	if got.TotalBikes != 8 || got.RecommendedBikes != 8 {
		t.Errorf("expected totals 8/8, got %d/%d", got.TotalBikes, got.RecommendedBikes)
	}
}

func TestComputeNearby_TieBreakUsesExactDistance(t *testing.T) {
	center := domain.Center{Point: domain.GeoPoint{Lat: 37.5, Lon: 127.0}, Status: domain.CenterOK}
	north := func(m float64) domain.GeoPoint { return domain.GeoPoint{Lat: 37.5 + m/111195, Lon: 127.0} }
	// both round to the same 0.1 m
	stations := []domain.Station{
		{StationID: "farther", BikesTotal: 4, Location: north(100.04)},
		{StationID: "nearer", BikesTotal: 4, Location: north(100.01)},
	}

	got := usecases.ComputeNearby(center, stations, usecases.NearbyOptions{Radius: 500})
	if len(got.Stations) != 2 {
		t.Fatalf("expected 2 stations, got %d", len(got.Stations))
	}
	if got.Stations[0].StationID != "nearer" {
		t.Errorf("expected nearer first, got %s", got.Stations[0].StationID)
	}
	if got.Stations[0].DistanceM != got.Stations[1].DistanceM {
		t.Errorf("expected equal rounded distances, got %v / %v", got.Stations[0].DistanceM, got.Stations[1].DistanceM)
	}
}

func TestComputeNearby_InvalidCenter(t *testing.T) {
	got := usecases.ComputeNearby(domain.Center{Status: domain.CenterNotConfigured}, []domain.Station{{StationID: "A", BikesTotal: 1}}, usecases.NearbyOptions{})
	if len(got.Stations) != 0 || got.Radius != usecases.DefaultRadiusM {
		t.Errorf("unexpected result: %+v", got)
	}
}

func TestMergeLatestHistory_NoRegression(t *testing.T) {
	last := domain.HistoryEntry{Bike: "SPB-1", HistoryID: "77"}
	prev := domain.UsagePeriod{
		Key:         "history",
		PeriodStart: "2025-03-01",
		PeriodEnd:   "2025-03-08",
		Kcal:        map[string]string{"운동량": "50 kcal"},
		History:     []domain.HistoryEntry{last},
		Last:        &last,
		MoveRoute:   &domain.MoveRoute{HistoryID: "77"},
	}
	cur := domain.UsagePeriod{Key: "history", History: []domain.HistoryEntry{}}

	got := usecases.MergeLatestHistory(cur, prev)
	if diff := cmp.Diff(prev.History, got.History); diff != "" {
		t.Errorf("history regressed (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(prev.Kcal, got.Kcal); diff != "" {
		t.Errorf("kcal regressed (-want +got):\n%s", diff)
	}
	if got.Last == nil || *got.Last != last {
		t.Errorf("expected last carried forward, got %+v", got.Last)
	}
	if got.PeriodStart != prev.PeriodStart || got.PeriodEnd != prev.PeriodEnd {
		t.Errorf("period bounds regressed: %s..%s", got.PeriodStart, got.PeriodEnd)
	}
	if got.MoveRoute == nil {
		t.Error("expected move route carried for the same trip")
	}

	prev.MoveRoute.Error = "http_error_500"
	if got := usecases.MergeLatestHistory(cur, prev); got.MoveRoute != nil {
		t.Error("failed move route must be refetched, not carried")
	}
}

func TestMergeLatestHistory_KeepsOnlyLatest(t *testing.T) {
	cur := domain.UsagePeriod{History: []domain.HistoryEntry{{Bike: "new"}, {Bike: "old"}}}
	got := usecases.MergeLatestHistory(cur, domain.UsagePeriod{})
	if len(got.History) != 1 || got.Last.Bike != "new" {
		t.Errorf("expected only the newest trip, got %+v", got.History)
	}
}

func TestDefaultPeriodRange(t *testing.T) {
	today := time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)
	if s, e := usecases.DefaultPeriodRange(domain.PeriodWeek, today); s != "2025-03-24" || e != "2025-03-31" {
		t.Errorf("week: got %s..%s", s, e)
	}
	if s, _ := usecases.DefaultPeriodRange(domain.PeriodMonth, today); s != "2025-02-28" {
		t.Errorf("month: expected clamped 2025-02-28, got %s", s)
	}
}
