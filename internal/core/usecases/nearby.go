package usecases

import (
	"math"
	"sort"

	"github.com/samirrijal/seoulbike/internal/core/domain"
	"github.com/samirrijal/seoulbike/internal/pkg/geospatial"
)

// DefaultRadiusM is used when no positive radius is configured.
const DefaultRadiusM = 500

// NearbyOptions bounds the nearby search.
type NearbyOptions struct {
	Radius     int // meters
	MinBikes   int
	MaxResults int // 0 means unlimited
}

// ComputeNearby ranks stations around center by bike count, nearest first
// among equals. Stations with unknown coordinates are skipped.
func ComputeNearby(center domain.Center, stations []domain.Station, opts NearbyOptions) domain.Nearby {
	radius := opts.Radius
	if radius <= 0 {
		radius = DefaultRadiusM
	}
	minBikes := max(0, opts.MinBikes)
	out := domain.Nearby{
		Center:     center,
		Radius:     radius,
		MinBikes:   minBikes,
		MaxResults: max(0, opts.MaxResults),
		Stations:   []domain.NearbyStation{},
	}
	if !center.Point.Valid() {
		return out
	}

	type hit struct {
		st   domain.NearbyStation
		dist float64
	}
	var hits []hit
	c := center.Point
	minLat, minLon, maxLat, maxLon := geospatial.BoundingBox(c.Lat, c.Lon, float64(radius))
	for _, s := range stations {
		p := s.Location
		if !p.Valid() || s.BikesTotal < minBikes {
			continue
		}
		if p.Lat < minLat || p.Lat > maxLat || p.Lon < minLon || p.Lon > maxLon {
			continue
		}
		dist := geospatial.Haversine(c.Lat, c.Lon, p.Lat, p.Lon)
		if dist > float64(radius) {
			continue
		}
		out.TotalBikes += s.BikesTotal
		hits = append(hits, hit{
			st: domain.NearbyStation{
				StationID:   s.StationID,
				StationNo:   s.StationNo,
				StationName: s.DisplayName(),
				Bikes:       s.BikesTotal,
				DistanceM:   math.Round(dist*10) / 10,
			},
			dist: dist,
		})
	}

	// rank on the exact distance; DistanceM is rounded for output only
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.st.Bikes != b.st.Bikes {
			return a.st.Bikes > b.st.Bikes
		}
		return a.dist < b.dist
	})
	for _, h := range hits {
		out.Stations = append(out.Stations, h.st)
	}
	if out.MaxResults > 0 && len(out.Stations) > out.MaxResults {
		out.Stations = out.Stations[:out.MaxResults]
	}
	for _, s := range out.Stations {
		out.RecommendedBikes += s.Bikes
	}
	return out
}
