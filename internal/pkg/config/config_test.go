package config

import (
	"strings"
	"testing"
	"time"

	"github.com/samirrijal/seoulbike/internal/core/domain"
)

func TestLoad_DefaultsAndEnv(t *testing.T) {
	t.Setenv("SEOULBIKE_BIKE_COOKIE", "JSESSIONID=abc")
	t.Setenv("SEOULBIKE_BIKE_STATION_IDS", "ST-1, 102 ,")
	t.Setenv("SEOULBIKE_NEARBY_RADIUS", "750")

	cfg, err := Load("seoulbike-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bike.Poll() != time.Minute || cfg.Bike.History() != 5*time.Minute || cfg.Bike.Account() != 30*time.Minute {
		t.Errorf("unexpected cadences: %v %v %v", cfg.Bike.Poll(), cfg.Bike.History(), cfg.Bike.Account())
	}
	if got := cfg.Bike.StationIDs; len(got) != 2 || got[0] != "ST-1" || got[1] != "102" {
		t.Errorf("unexpected station ids: %q", got)
	}
	if cfg.Nearby.Radius != 750 {
		t.Errorf("expected radius override, got %d", cfg.Nearby.Radius)
	}
	if p := cfg.Bike.CountPolicy(); !p.FoldQR || p.FoldElectric {
		t.Errorf("unexpected count policy: %+v", p)
	}
	mode, ok := cfg.Bike.AuthMode().(domain.CookieSessionMode)
	if !ok || mode.Cookie != "JSESSIONID=abc" {
		t.Errorf("unexpected auth mode: %#v", cfg.Bike.AuthMode())
	}
	if cfg.Telemetry.ServiceName != "seoulbike-test" {
		t.Errorf("expected service name default, got %q", cfg.Telemetry.ServiceName)
	}
}

func TestLoad_APIKeyModeRequiresKey(t *testing.T) {
	t.Setenv("SEOULBIKE_BIKE_MODE", "api_key")

	_, err := Load("seoulbike-test")
	if err == nil || !strings.Contains(err.Error(), "bike.api_key") {
		t.Fatalf("expected api key error, got %v", err)
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := &Config{
		Bike: BikeConfig{Mode: "scrape", PageSize: 5000, HistoryPeriods: []string{"2w"}},
		Nearby: NearbyConfig{
			HomeLat: 91,
			HomeLon: 10,
		},
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{
		"server.port",
		"bike.mode",
		"bike.poll_interval",
		`unknown period "2w"`,
		"bike.page_size",
		"nearby.radius",
		"out of range",
		"nats.url",
		"valkey.addr",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %v", want, err)
		}
	}
}

func TestBikeConfig_Location(t *testing.T) {
	if loc := (BikeConfig{Timezone: "Nowhere/Else"}).Location(); loc.String() != "KST" {
		t.Errorf("expected KST fallback, got %s", loc)
	}
}
