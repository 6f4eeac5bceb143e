package usecases

import (
	"context"

	"github.com/samirrijal/seoulbike/internal/core/domain"
)

// HomeLocation is the center source when no tracked location is configured.
type HomeLocation struct {
	Point domain.GeoPoint
}

func (h HomeLocation) Center(context.Context) (domain.Center, error) {
	return HomeCenter(h.Point), nil
}

// HomeCenter classifies the configured home coordinates.
func HomeCenter(p domain.GeoPoint) domain.Center {
	c := domain.Center{Point: p, Source: "home", Status: domain.CenterOK}
	switch {
	case p.Lat == 0 && p.Lon == 0:
		c.Status = domain.CenterNotConfigured
	case !p.Valid():
		c.Status = domain.CenterInvalidCoords
	}
	return c
}

// TrackedCenter classifies a tracked location report. Without a report the
// home point stays the center, tagged location_entity_not_found, so nearby
// still has coordinates to work with.
func TrackedCenter(source string, reported bool, lat, lon *float64, home domain.GeoPoint) domain.Center {
	if !reported {
		return domain.Center{Point: home, Source: "home", Status: domain.CenterEntityNotFound}
	}
	if lat == nil || lon == nil {
		return domain.Center{Source: source, Status: domain.CenterNoCoords}
	}
	p := domain.GeoPoint{Lat: *lat, Lon: *lon}
	if !p.Valid() {
		return domain.Center{Point: p, Source: source, Status: domain.CenterInvalidCoords}
	}
	return domain.Center{Point: p, Source: source, Status: domain.CenterOK}
}
