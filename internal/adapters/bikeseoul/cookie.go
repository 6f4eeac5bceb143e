package bikeseoul

import (
	"net/http"
	"strings"
)

// NormalizeCookie cleans a user-pasted cookie: surrounding quotes and
// whitespace go, a multi-line paste is reduced to its Cookie header line,
// whitespace collapses and any "Cookie " / "Cookie:" prefix is dropped.
// The result is a fixed point, so normalizing twice changes nothing.
func NormalizeCookie(raw string) string {
	v := raw
	for {
		next := normalizeOnce(v)
		if next == v {
			return next
		}
		v = next
	}
}

func normalizeOnce(raw string) string {
	v := strings.Trim(strings.TrimSpace(raw), `"'`)
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if strings.ContainsAny(v, "\r\n") {
		var parts []string
		for _, line := range strings.Split(strings.ReplaceAll(v, "\r", "\n"), "\n") {
			if line = strings.TrimSpace(line); line != "" {
				parts = append(parts, line)
			}
		}
		v = pickCookieLine(parts)
	}
	v = strings.Join(strings.Fields(v), " ")
	for {
		lower := strings.ToLower(v)
		switch {
		case strings.HasPrefix(lower, "cookie:"):
			v = strings.TrimSpace(v[len("cookie:"):])
		case strings.HasPrefix(lower, "cookie "):
			v = strings.TrimSpace(v[len("cookie "):])
		default:
			return strings.Trim(v, `"'`)
		}
	}
}

func pickCookieLine(lines []string) string {
	for _, l := range lines {
		if strings.HasPrefix(strings.ToLower(l), "cookie:") {
			return l
		}
	}
	for _, l := range lines {
		if strings.HasPrefix(strings.ToLower(l), "cookie ") {
			return l
		}
	}
	return strings.Join(lines, " ")
}

// parseCookiePairs splits a "Name=Value; ..." header into cookies. Pairs
// without a name are skipped.
func parseCookiePairs(header string) []*http.Cookie {
	var out []*http.Cookie
	for _, part := range strings.Split(header, ";") {
		part = strings.TrimSpace(part)
		name, value, ok := strings.Cut(part, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" || strings.ContainsAny(name, " \t,") {
			continue
		}
		out = append(out, &http.Cookie{Name: name, Value: strings.TrimSpace(value), Path: "/"})
	}
	return out
}

func serializeCookies(cookies []*http.Cookie) string {
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}
