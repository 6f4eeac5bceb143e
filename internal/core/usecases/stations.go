package usecases

import (
	"regexp"
	"strings"

	"github.com/samirrijal/seoulbike/internal/core/domain"
	"github.com/samirrijal/seoulbike/internal/core/extract"
)

var (
	stationIDRe = regexp.MustCompile(`^ST-\d+$`)
	digitsOnly  = regexp.MustCompile(`^\d+$`)
)

// ParseStationList splits a comma or newline separated list of station
// inputs, trimming blanks and dropping duplicates while keeping order.
func ParseStationList(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == '\n' || r == '\r'
	})
	out := make([]string, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

// splitInput reads a configured station token as an id ("ST-123") or a
// number label ("123").
func splitInput(raw string) (id, no string) {
	raw = strings.TrimSpace(raw)
	if up := strings.ToUpper(raw); strings.HasPrefix(up, "ST-") {
		id = up
	}
	if digitsOnly.MatchString(raw) {
		no = raw
	}
	return id, no
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

// StationFromStatus normalizes a realtime record. Fallback values fill the
// identity when the record omits it; ok is false when no id can be found.
func StationFromStatus(st domain.StationStatus, policy domain.CountPolicy, fallbackID, fallbackNo, fallbackName string) (domain.Station, bool) {
	id := strings.TrimSpace(firstNonEmpty(st.StationID, fallbackID, fallbackNo))
	if id == "" {
		return domain.Station{}, false
	}
	rawName := strings.TrimSpace(firstNonEmpty(st.StationName, fallbackName))
	no := strings.TrimSpace(firstNonEmpty(st.StationNo, fallbackNo))
	title := rawName
	if rawName != "" {
		if n, t := extract.SplitStationName(rawName); n != "" {
			if no == "" {
				no = n
			}
			title = t
		}
	}
	if title == "" {
		title = firstNonEmpty(rawName, id)
	}

	sprout := max(0, intOr(st.Sprout, 0))
	general := 0
	if st.General != nil {
		general = *st.General
		if policy.FoldQR {
			general += intOr(st.QR, 0)
		}
		if policy.FoldElectric {
			general += intOr(st.Electric, 0)
		}
	} else {
		general = intOr(st.Total, 0) - sprout
	}
	general = max(0, general)

	total := intOr(st.Total, 0)
	if total <= 0 {
		total = general + sprout
	}

	return domain.Station{
		StationID:    id,
		StationNo:    no,
		StationTitle: title,
		Location:     domain.GeoPoint{Lat: st.Lat, Lon: st.Lon},
		BikesTotal:   max(0, total),
		BikesGeneral: general,
		BikesSprout:  sprout,
		BikesRepair:  max(0, intOr(st.Repair, 0)),
	}, true
}

// FallbackStation finds a previously known station for a configured input:
// by id, then by number, then by the raw token against either.
func FallbackStation(prev []domain.Station, id, no, raw string) (domain.Station, bool) {
	if id != "" {
		for _, s := range prev {
			if s.StationID == id {
				return s, true
			}
		}
	}
	if no != "" {
		for _, s := range prev {
			if s.StationNo == no {
				return s, true
			}
		}
	}
	if raw != "" {
		for _, s := range prev {
			if s.StationID == raw || s.StationNo == raw {
				return s, true
			}
		}
	}
	return domain.Station{}, false
}

// realtimeIndex looks realtime records up by id and by number label.
type realtimeIndex struct {
	byID map[string]domain.StationStatus
	byNo map[string]domain.StationStatus
}

func indexStatuses(items []domain.StationStatus) realtimeIndex {
	idx := realtimeIndex{
		byID: make(map[string]domain.StationStatus, len(items)),
		byNo: make(map[string]domain.StationStatus, len(items)),
	}
	for _, it := range items {
		if id := strings.ToUpper(strings.TrimSpace(it.StationID)); id != "" {
			idx.byID[id] = it
		}
		no := strings.TrimSpace(it.StationNo)
		if no == "" {
			no, _ = extract.SplitStationName(it.StationName)
		}
		if no != "" {
			idx.byNo[no] = it
		}
	}
	return idx
}

func (idx realtimeIndex) lookup(id, no string) (domain.StationStatus, bool) {
	if id != "" {
		if st, ok := idx.byID[strings.ToUpper(id)]; ok {
			return st, true
		}
	}
	if no != "" {
		if st, ok := idx.byNo[no]; ok {
			return st, true
		}
	}
	return domain.StationStatus{}, false
}

// ResolveStationInputs matches configured inputs against the full station
// list. Ids must exist; numbers must match exactly one station label.
func ResolveStationInputs(inputs []string, all []domain.Station) ([]domain.Station, []domain.StationResolution) {
	byID := make(map[string]domain.Station, len(all))
	byNo := make(map[string][]domain.Station)
	for _, s := range all {
		byID[s.StationID] = s
		if s.StationNo != "" {
			byNo[s.StationNo] = append(byNo[s.StationNo], s)
		}
	}

	var resolved []domain.Station
	resolutions := make([]domain.StationResolution, 0, len(inputs))
	seen := map[string]struct{}{}
	add := func(s domain.Station) {
		if _, ok := seen[s.StationID]; ok {
			return
		}
		seen[s.StationID] = struct{}{}
		resolved = append(resolved, s)
	}

	for _, in := range inputs {
		token := strings.TrimSpace(in)
		res := domain.StationResolution{Input: token}
		switch up := strings.ToUpper(token); {
		case stationIDRe.MatchString(up):
			if s, ok := byID[up]; ok {
				res.StationID, res.Method = s.StationID, "id"
				add(s)
			} else {
				res.Reason = domain.ResolveIDNotFound
			}
		case digitsOnly.MatchString(token):
			switch matches := byNo[token]; len(matches) {
			case 0:
				res.Reason = domain.ResolveNumberNotFound
			case 1:
				res.StationID, res.Method = matches[0].StationID, "number"
				add(matches[0])
			default:
				res.Reason = domain.ResolveAmbiguous
				for _, m := range matches {
					res.Candidates = append(res.Candidates, m.StationID)
				}
			}
		default:
			res.Reason = domain.ResolveInvalidFormat
		}
		resolutions = append(resolutions, res)
	}
	return resolved, resolutions
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
