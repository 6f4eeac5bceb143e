package postgres

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/samirrijal/seoulbike/internal/core/domain"
)

func TestBuildListQuery_NoFilter(t *testing.T) {
	sql, args, err := buildListQuery(domain.TripFilter{Limit: 20})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(sql, "WHERE") {
		t.Errorf("expected no WHERE clause, got %s", sql)
	}
	if !strings.Contains(sql, "ORDER BY seen_at DESC, trip_key LIMIT 20") {
		t.Errorf("unexpected ordering/limit: %s", sql)
	}
	if len(args) != 0 {
		t.Errorf("expected no args, got %v", args)
	}
}

func TestBuildListQuery_Filters(t *testing.T) {
	since := time.Date(2025, 3, 1, 9, 0, 0, 0, time.FixedZone("KST", 9*3600))
	sql, args, err := buildListQuery(domain.TripFilter{
		Bike:   "SPB-1",
		Period: domain.PeriodWeek,
		Since:  &since,
		Limit:  10,
		Offset: 30,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, frag := range []string{"bike = $1", "period = $2", "seen_at >= $3", "LIMIT 10", "OFFSET 30"} {
		if !strings.Contains(sql, frag) {
			t.Errorf("expected %q in %s", frag, sql)
		}
	}
	want := []any{"SPB-1", domain.PeriodWeek, since.UTC()}
	if diff := cmp.Diff(want, args); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildCountQuery(t *testing.T) {
	sql, args, err := buildCountQuery(domain.TripFilter{Period: domain.PeriodHistory, Limit: 5, Offset: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sql != "SELECT COUNT(*) FROM trips WHERE period = $1" {
		t.Errorf("unexpected count query: %s", sql)
	}
	if len(args) != 1 || args[0] != domain.PeriodHistory {
		t.Errorf("unexpected args: %v", args)
	}
}
