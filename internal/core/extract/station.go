package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/samirrijal/seoulbike/internal/core/domain"
)

var (
	stationNoRe = regexp.MustCompile(`^\s*(\d+)\s*(?:[.)\-．]|번|\s)`)
	h2Re        = regexp.MustCompile(`(?is)<h2[^>]*>(.*?)</h2>`)
	pCountRe    = regexp.MustCompile(`(?i)<p>\s*(\d+)\s*/\s*(\d+)\s*</p>`)

	stationHTMLKeys = []string{
		"stationId",
		"stationNo",
		"stationName",
		"stationLatitude",
		"stationLongitude",
		"parkingBikeTotCnt",
		"parkingBikeTotCntGeneral",
		"parkingBikeTotCntTeen",
		"parkingBikeTotCntRepair",
	}
	stationHTMLPatterns = compileKeyPatterns(stationHTMLKeys)
)

func compileKeyPatterns(keys []string) map[string][]*regexp.Regexp {
	out := make(map[string][]*regexp.Regexp, len(keys))
	for _, k := range keys {
		q := regexp.QuoteMeta(k)
		out[k] = []*regexp.Regexp{
			regexp.MustCompile(`(?i)` + q + `\s*[:=]\s*['"]?([^'"\s,;)<>]+)`),
			regexp.MustCompile(`(?i)['"]` + q + `['"]\s*:\s*['"]([^'"]+)`),
			regexp.MustCompile(`(?i)['"]` + q + `['"]\s*:\s*(\d+)`),
		}
	}
	return out
}

// SplitStationName separates a leading station number ("102. Name",
// "102) Name", "102번 Name") from the title.
func SplitStationName(raw string) (no, title string) {
	raw = strings.TrimSpace(raw)
	m := stationNoRe.FindStringSubmatchIndex(raw)
	if m == nil {
		return "", raw
	}
	no = raw[m[2]:m[3]]
	title = strings.Trim(raw[m[1]:], " .-")
	return no, title
}

// StationStatusHTML scrapes a realtime-status page that did not answer with
// JSON. Inline script assignments are read first; the station id, name and
// "N / M" counts have markup fallbacks.
func StationStatusHTML(page string) domain.StationStatus {
	if page == "" {
		return domain.StationStatus{}
	}
	values := map[string]string{}
	for _, k := range stationHTMLKeys {
		for _, re := range stationHTMLPatterns[k] {
			if m := re.FindStringSubmatch(page); m != nil {
				values[k] = m[1]
				break
			}
		}
	}
	if _, ok := values["stationId"]; !ok {
		if m := stationIDRe.FindString(page); m != "" {
			values["stationId"] = strings.ToUpper(m)
		}
	}
	if _, ok := values["stationName"]; !ok {
		if m := h2Re.FindStringSubmatch(page); m != nil {
			values["stationName"] = StripTags(m[1])
		}
	}
	_, hasGeneral := values["parkingBikeTotCntGeneral"]
	_, hasTeen := values["parkingBikeTotCntTeen"]
	if !hasGeneral || !hasTeen {
		if m := pCountRe.FindStringSubmatch(page); m != nil {
			if !hasGeneral {
				values["parkingBikeTotCntGeneral"] = m[1]
			}
			if !hasTeen {
				values["parkingBikeTotCntTeen"] = m[2]
			}
		}
	}

	st := domain.StationStatus{
		StationID:   strings.TrimSpace(values["stationId"]),
		StationNo:   strings.TrimSpace(values["stationNo"]),
		StationName: strings.TrimSpace(values["stationName"]),
		General:     intPtr(values, "parkingBikeTotCntGeneral"),
		Sprout:      intPtr(values, "parkingBikeTotCntTeen"),
		Repair:      intPtr(values, "parkingBikeTotCntRepair"),
		Total:       intPtr(values, "parkingBikeTotCnt"),
	}
	st.Lat, _ = ParseFloat(values["stationLatitude"])
	st.Lon, _ = ParseFloat(values["stationLongitude"])
	return st
}

func intPtr(values map[string]string, key string) *int {
	v, ok := values[key]
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return nil
	}
	return &n
}
