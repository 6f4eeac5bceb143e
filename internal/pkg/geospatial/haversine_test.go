package geospatial_test

import (
	"math"
	"testing"

	"github.com/samirrijal/seoulbike/internal/pkg/geospatial"
)

func TestHaversine(t *testing.T) {
	// Seoul City Hall to Gwanghwamun, roughly 640 m.
	d := geospatial.Haversine(37.5663, 126.9779, 37.5720, 126.9769)
	if d < 600 || d > 700 {
		t.Errorf("unexpected distance %.1f", d)
	}
	if geospatial.Haversine(37.5, 127.0, 37.5, 127.0) != 0 {
		t.Error("distance to self must be zero")
	}
}

func TestBoundingBoxContainsRadius(t *testing.T) {
	lat, lon := 37.55, 126.99
	minLat, minLon, maxLat, maxLon := geospatial.BoundingBox(lat, lon, 500)
	north := geospatial.Haversine(lat, lon, maxLat, lon)
	east := geospatial.Haversine(lat, lon, lat, maxLon)
	if math.Abs(north-500) > 5 || math.Abs(east-500) > 5 {
		t.Errorf("box edges at %.1f / %.1f m", north, east)
	}
	if minLat >= lat || minLon >= lon {
		t.Error("box must extend below the center")
	}
}
