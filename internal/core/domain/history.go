package domain

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"time"
)

// Usage-history period keys.
const (
	PeriodHistory = "history"
	PeriodWeek    = "1w"
	PeriodMonth   = "1m"
)

// HistoryEntry is one row of the member's rental history.
type HistoryEntry struct {
	Bike           string   `json:"bike"`
	RentDatetime   string   `json:"rent_datetime"`
	RentStation    string   `json:"rent_station"`
	ReturnDatetime string   `json:"return_datetime"`
	ReturnStation  string   `json:"return_station"`
	HistoryID      string   `json:"history_id,omitempty"`
	DistanceKM     *float64 `json:"distance_km,omitempty"`
}

// IsZero reports whether every field is empty.
func (h HistoryEntry) IsZero() bool {
	return h.Bike == "" && h.RentDatetime == "" && h.RentStation == "" &&
		h.ReturnDatetime == "" && h.ReturnStation == "" && h.HistoryID == ""
}

// Key identifies the trip. The upstream history id wins; otherwise a hash of
// the visible columns.
func (h HistoryEntry) Key() string {
	if h.HistoryID != "" {
		return h.HistoryID
	}
	if h.IsZero() {
		return ""
	}
	sum := sha1.Sum([]byte(strings.Join([]string{
		h.Bike, h.RentDatetime, h.RentStation, h.ReturnDatetime, h.ReturnStation,
	}, "|")))
	return hex.EncodeToString(sum[:8])
}

// MoveRoute is the geo path of a trip as returned upstream.
type MoveRoute struct {
	HistoryID string         `json:"history_id"`
	Payload   map[string]any `json:"payload,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// UsagePeriod is the parsed state of one history period.
type UsagePeriod struct {
	Key         string            `json:"key"`
	PeriodStart string            `json:"period_start,omitempty"`
	PeriodEnd   string            `json:"period_end,omitempty"`
	Kcal        map[string]string `json:"kcal,omitempty"`
	History     []HistoryEntry    `json:"history"`
	Last        *HistoryEntry     `json:"last,omitempty"`
	MoveRoute   *MoveRoute        `json:"move_route,omitempty"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// TripRecord is an archived trip.
type TripRecord struct {
	Key            string    `json:"key"`
	Period         string    `json:"period"`
	HistoryID      string    `json:"history_id,omitempty"`
	Bike           string    `json:"bike"`
	RentDatetime   string    `json:"rent_datetime"`
	RentStation    string    `json:"rent_station"`
	ReturnDatetime string    `json:"return_datetime"`
	ReturnStation  string    `json:"return_station"`
	DistanceKM     *float64  `json:"distance_km,omitempty"`
	SeenAt         time.Time `json:"seen_at"`
}

// NewTripRecord builds an archive record from a history entry.
func NewTripRecord(period string, h HistoryEntry, seenAt time.Time) TripRecord {
	return TripRecord{
		Key:            h.Key(),
		Period:         period,
		HistoryID:      h.HistoryID,
		Bike:           h.Bike,
		RentDatetime:   h.RentDatetime,
		RentStation:    h.RentStation,
		ReturnDatetime: h.ReturnDatetime,
		ReturnStation:  h.ReturnStation,
		DistanceKM:     h.DistanceKM,
		SeenAt:         seenAt.UTC(),
	}
}

// TripFilter narrows archive listings.
type TripFilter struct {
	Bike   string
	Period string
	Since  *time.Time
	Limit  int
	Offset int
}
