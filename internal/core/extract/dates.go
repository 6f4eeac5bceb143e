package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	expiryDateTimeRe = regexp.MustCompile(`(20\d{2})[-./](\d{1,2})[-./](\d{1,2})\s+(\d{1,2}):(\d{2})`)
	expiryDateRe     = regexp.MustCompile(`(20\d{2})[-./](\d{1,2})[-./](\d{1,2})`)
	dateTimeValueRe  = regexp.MustCompile(`(20\d{2})-(\d{1,2})-(\d{1,2})(?:[ T]+(\d{1,2}):(\d{2})(?::(\d{2}))?)?`)
	epochMillisRe    = regexp.MustCompile(`^\d{12,13}$`)
)

// TicketExpiry finds the first date (with optional HH:MM) on the left-nav
// page, reads it in loc and returns it in UTC.
func TicketExpiry(page string, loc *time.Location) (time.Time, bool) {
	if page == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	if m := expiryDateTimeRe.FindStringSubmatch(page); m != nil {
		n := atois(m[1:])
		t := time.Date(n[0], time.Month(n[1]), n[2], n[3], n[4], 0, 0, loc)
		return t.UTC(), true
	}
	if m := expiryDateRe.FindStringSubmatch(page); m != nil {
		n := atois(m[1:])
		return time.Date(n[0], time.Month(n[1]), n[2], 0, 0, 0, 0, loc).UTC(), true
	}
	return time.Time{}, false
}

// DateTimeValue normalizes an upstream date or datetime value ("2025/01/02",
// "2025.01.02 10:11:12", epoch millis) into RFC 3339 UTC. Unparseable input
// yields "".
func DateTimeValue(raw string, loc *time.Location) string {
	raw = strings.TrimSpace(raw)
	switch strings.ToLower(raw) {
	case "", "null", "none", "undefined":
		return ""
	}
	if loc == nil {
		loc = time.Local
	}
	if epochMillisRe.MatchString(raw) {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return ""
		}
		return time.UnixMilli(ms).UTC().Format(time.RFC3339)
	}
	norm := strings.NewReplacer("/", "-", ".", "-").Replace(raw)
	m := dateTimeValueRe.FindStringSubmatch(norm)
	if m == nil {
		return ""
	}
	n := atois(m[1:])
	t := time.Date(n[0], time.Month(n[1]), n[2], n[3], n[4], n[5], 0, loc)
	if t.Month() != time.Month(n[1]) {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func atois(parts []string) []int {
	out := make([]int, 6)
	for i, p := range parts {
		if i >= len(out) {
			break
		}
		out[i], _ = strconv.Atoi(p)
	}
	return out
}
