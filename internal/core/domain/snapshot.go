package domain

import "time"

// ValidationStatus summarizes whether the last cycle saw authenticated data.
type ValidationStatus string

const (
	ValidationUnknown   ValidationStatus = "unknown"
	ValidationOK        ValidationStatus = "ok"
	ValidationLoginPage ValidationStatus = "login_page"
	ValidationError     ValidationStatus = "error"
)

// RequestMeta describes the most recent upstream request.
type RequestMeta struct {
	Method string    `json:"method,omitempty"`
	URL    string    `json:"url,omitempty"`
	Status int       `json:"status,omitempty"`
	Error  string    `json:"error,omitempty"`
	At     time.Time `json:"at,omitempty"`
}

// Snapshot is the normalized state produced by one refresh cycle. A published
// snapshot is never mutated; refreshes build a new one.
type Snapshot struct {
	Mode             string                 `json:"mode"`
	ValidationStatus ValidationStatus       `json:"validation_status"`
	Error            string                 `json:"error,omitempty"`
	UpdatedAt        time.Time              `json:"updated_at"`
	Periods          map[string]UsagePeriod `json:"periods,omitempty"`
	Account          AccountState           `json:"account"`
	RentStatus       RentStatus             `json:"rent_status"`
	UserStatus       AuxStatus              `json:"user_status"`
	ReconsentStatus  AuxStatus              `json:"reconsent_status"`
	Favorites        []Favorite             `json:"favorites"`
	Stations         []Station              `json:"stations"`
	Resolutions      []StationResolution    `json:"resolutions,omitempty"`
	Nearby           Nearby                 `json:"nearby"`
	TotalRows        int                    `json:"total_rows,omitempty"`
	NonzeroStations  int                    `json:"nonzero_stations,omitempty"`
	LastRequest      RequestMeta            `json:"last_request"`
}

// Degraded reports whether the snapshot carries no authenticated data.
func (s *Snapshot) Degraded() bool {
	return s.ValidationStatus != ValidationOK
}

// Station looks up a monitored station by id.
func (s *Snapshot) Station(id string) (Station, bool) {
	for _, st := range s.Stations {
		if st.StationID == id {
			return st, true
		}
	}
	return Station{}, false
}

// Favorite looks up a favorite station by id.
func (s *Snapshot) Favorite(id string) (Favorite, bool) {
	for _, f := range s.Favorites {
		if f.StationID == id {
			return f, true
		}
	}
	return Favorite{}, false
}

// FavoriteIDs returns favorite station ids in page order, deduplicated.
func (s *Snapshot) FavoriteIDs() []string {
	return uniqueIDs(len(s.Favorites), func(i int) string { return s.Favorites[i].StationID })
}

// StationIDs returns monitored station ids in configured order.
func (s *Snapshot) StationIDs() []string {
	return uniqueIDs(len(s.Stations), func(i int) string { return s.Stations[i].StationID })
}

func uniqueIDs(n int, at func(int) string) []string {
	ids := make([]string, 0, n)
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		id := at(i)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// SetChanges describes how the dynamic entity sets moved between two
// consecutive snapshots.
type SetChanges struct {
	FavoritesAdded   []string     `json:"favorites_added,omitempty"`
	FavoritesRemoved []string     `json:"favorites_removed,omitempty"`
	StationsAdded    []string     `json:"stations_added,omitempty"`
	StationsRemoved  []string     `json:"stations_removed,omitempty"`
	NewTrips         []TripRecord `json:"new_trips,omitempty"`
}

// Empty reports whether nothing changed.
func (c SetChanges) Empty() bool {
	return len(c.FavoritesAdded) == 0 && len(c.FavoritesRemoved) == 0 &&
		len(c.StationsAdded) == 0 && len(c.StationsRemoved) == 0 && len(c.NewTrips) == 0
}

// DiffIDs returns ids present only in cur (in cur order) and ids present
// only in prev (in prev order).
func DiffIDs(prev, cur []string) (added, removed []string) {
	inPrev := make(map[string]struct{}, len(prev))
	for _, id := range prev {
		inPrev[id] = struct{}{}
	}
	inCur := make(map[string]struct{}, len(cur))
	for _, id := range cur {
		inCur[id] = struct{}{}
		if _, ok := inPrev[id]; !ok {
			added = append(added, id)
		}
	}
	for _, id := range prev {
		if _, ok := inCur[id]; !ok {
			removed = append(removed, id)
		}
	}
	return added, removed
}
