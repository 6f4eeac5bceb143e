package domain

import (
	"strings"
	"time"
)

// StationStatus is a raw realtime record as reported by either upstream,
// before the count policy is applied. Nil counts were absent upstream.
type StationStatus struct {
	StationID   string  `json:"station_id"`
	StationNo   string  `json:"station_no,omitempty"`
	StationName string  `json:"station_name,omitempty"`
	Lat         float64 `json:"lat,omitempty"`
	Lon         float64 `json:"lon,omitempty"`
	Total       *int    `json:"total,omitempty"`
	General     *int    `json:"general,omitempty"`
	Sprout      *int    `json:"sprout,omitempty"`
	Repair      *int    `json:"repair,omitempty"`
	QR          *int    `json:"qr,omitempty"`
	Electric    *int    `json:"electric,omitempty"`
	VoucherEnd  string  `json:"voucher_end,omitempty"`
}

// Empty reports whether the record carries nothing worth using.
func (s StationStatus) Empty() bool {
	return s.StationID == "" && s.StationNo == "" && s.StationName == "" &&
		s.Total == nil && s.General == nil && s.Sprout == nil
}

// CountPolicy decides which sub-counts fold into the general count.
type CountPolicy struct {
	FoldQR       bool
	FoldElectric bool
}

// DefaultCountPolicy folds QR bikes into general and keeps electric bikes out.
func DefaultCountPolicy() CountPolicy {
	return CountPolicy{FoldQR: true}
}

// Station is a normalized station with bike counts.
type Station struct {
	StationID    string   `json:"station_id"`
	StationNo    string   `json:"station_no,omitempty"`
	StationTitle string   `json:"station_title,omitempty"`
	Location     GeoPoint `json:"location"`
	BikesTotal   int      `json:"bikes_total"`
	BikesGeneral int      `json:"bikes_general"`
	BikesSprout  int      `json:"bikes_sprout"`
	BikesRepair  int      `json:"bikes_repair"`
}

// DisplayName renders "No. Title", falling back to whichever part exists.
func (s Station) DisplayName() string {
	switch {
	case s.StationNo != "" && s.StationTitle != "":
		if strings.HasPrefix(s.StationTitle, s.StationNo+".") {
			return s.StationTitle
		}
		return s.StationNo + ". " + s.StationTitle
	case s.StationTitle != "":
		return s.StationTitle
	case s.StationNo != "":
		return s.StationNo
	}
	return s.StationID
}

// Favorite is a station from the member's favorites page.
type Favorite struct {
	StationID   string    `json:"station_id"`
	StationName string    `json:"station_name"`
	StationNo   string    `json:"station_no,omitempty"`
	Normal      *int      `json:"bikes_general,omitempty"`
	Sprout      *int      `json:"bikes_sprout,omitempty"`
	Repair      *int      `json:"bikes_repair,omitempty"`
	Total       *int      `json:"bikes_total,omitempty"`
	Location    *GeoPoint `json:"location,omitempty"`
}

// StationResolution records how a configured station input was matched in
// API-key mode.
type StationResolution struct {
	Input      string   `json:"input"`
	StationID  string   `json:"station_id,omitempty"`
	Method     string   `json:"method,omitempty"` // "id" or "number"
	Reason     string   `json:"reason,omitempty"`
	Candidates []string `json:"candidates,omitempty"`
}

// Resolution failure reasons.
const (
	ResolveIDNotFound     = "station_id_not_found"
	ResolveNumberNotFound = "number_not_found"
	ResolveAmbiguous      = "ambiguous"
	ResolveInvalidFormat  = "invalid_format"
)

// NearbyStation is one ranked entry of a nearby result.
type NearbyStation struct {
	StationID   string  `json:"station_id"`
	StationNo   string  `json:"station_no,omitempty"`
	StationName string  `json:"station_name"`
	Bikes       int     `json:"bikes"`
	DistanceM   float64 `json:"distance_m"`
}

// Nearby is the ranked list of stations around the center.
type Nearby struct {
	Center           Center          `json:"center"`
	Radius           int             `json:"radius_m"`
	MinBikes         int             `json:"min_bikes"`
	MaxResults       int             `json:"max_results"`
	Stations         []NearbyStation `json:"stations"`
	TotalBikes       int             `json:"total_bikes"`
	RecommendedBikes int             `json:"recommended_bikes"`
}

// StationSample is one archived observation of a station's counts.
type StationSample struct {
	StationID    string    `json:"station_id"`
	StationNo    string    `json:"station_no,omitempty"`
	Source       string    `json:"source"` // "station" or "favorite"
	BikesTotal   int       `json:"bikes_total"`
	BikesGeneral int       `json:"bikes_general"`
	BikesSprout  int       `json:"bikes_sprout"`
	BikesRepair  int       `json:"bikes_repair"`
	SampledAt    time.Time `json:"sampled_at"`
}
