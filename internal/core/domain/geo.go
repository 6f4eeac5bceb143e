package domain

// GeoPoint represents a geographic coordinate (WGS 84).
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether the point is usable as a coordinate. The upstream
// service reports unknown positions as 0/0.
func (p GeoPoint) Valid() bool {
	if p.Lat == 0 || p.Lon == 0 {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// Center statuses.
const (
	CenterOK             = "ok"
	CenterNotConfigured  = "not_configured"
	CenterEntityNotFound = "location_entity_not_found"
	CenterNoCoords       = "location_no_coords"
	CenterInvalidCoords  = "location_invalid_coords"
)

// Center is the reference point for nearby-station ranking.
type Center struct {
	Point  GeoPoint `json:"point"`
	Source string   `json:"source"` // "home", "static" or the location topic/entity
	Status string   `json:"status"`
}

// OK reports whether the center carries usable coordinates.
func (c Center) OK() bool {
	return c.Status == CenterOK && c.Point.Valid()
}
