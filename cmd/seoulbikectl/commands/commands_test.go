package commands

import (
	"bytes"
	"strings"
	"testing"

	"github.com/samirrijal/seoulbike/internal/core/domain"
	"github.com/samirrijal/seoulbike/internal/core/usecases"
)

func TestNormalizeCookieCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetIn(strings.NewReader("Cookie: JSESSIONID=abc; SCOUTER=x1\n"))
	rootCmd.SetArgs([]string{"normalize-cookie"})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != "JSESSIONID=abc; SCOUTER=x1" {
		t.Errorf("unexpected cookie %q", got)
	}
}

func TestNormalizeCookieCommand_Empty(t *testing.T) {
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"normalize-cookie", `""`})
	if err := rootCmd.Execute(); err == nil {
		t.Error("expected an error for an empty cookie")
	}
}

func TestFilterStations(t *testing.T) {
	items := []domain.StationStatus{
		{StationID: "ST-1", StationNo: "102"},
		{StationID: "ST-2", StationNo: "105"},
		{StationID: "ST-3"},
	}
	got := filterStations(items, []string{"st-1", " 105 "})
	if len(got) != 2 || got[0].StationID != "ST-1" || got[1].StationID != "ST-2" {
		t.Errorf("unexpected filter result: %+v", got)
	}
	if len(filterStations(items, nil)) != 3 {
		t.Error("no filter keeps everything")
	}
}

func TestNearbyFrom(t *testing.T) {
	n := func(v int) *int { return &v }
	items := []domain.StationStatus{
		{StationID: "ST-1", StationName: "101. 가", Lat: 37.5665, Lon: 126.9780, General: n(2), Total: n(2)},
		{StationID: "ST-2", StationName: "102. 나", Lat: 37.5670, Lon: 126.9785, General: n(5), Total: n(5)},
		{StationID: "ST-3", StationName: "103. 다", Lat: 37.6500, Lon: 127.1000, General: n(9), Total: n(9)},
	}
	got := nearbyFrom(items, domain.GeoPoint{Lat: 37.5665, Lon: 126.9780}, domain.CountPolicy{FoldQR: true},
		usecases.NearbyOptions{Radius: 500, MinBikes: 1})

	if len(got.Stations) != 2 {
		t.Fatalf("expected 2 stations in range, got %+v", got.Stations)
	}
	if got.Stations[0].StationID != "ST-2" || got.TotalBikes != 7 {
		t.Errorf("unexpected ranking: %+v", got)
	}
}
