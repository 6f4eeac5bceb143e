package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/samirrijal/seoulbike/internal/core/domain"
)

var (
	dateRe           = regexp.MustCompile(`(20\d{2})[./-](\d{1,2})[./-](\d{1,2})`)
	useHistoryBoxRe  = regexp.MustCompile(`(?i)(payment_box|paymentBox|kcal_box|kcalBox)`)
	useHistoryPageRe = regexp.MustCompile(`(?i)(getMemberUseHistory|searchStartDate|searchEndDate)`)
)

// KcalBox pairs labels and values inside the calorie widget. A label is an
// icon's alt text or a text node; the next text node is its value. A new
// paragraph drops a label that never got a value.
func KcalBox(page string) map[string]string {
	out := map[string]string{}
	if page == "" {
		return out
	}
	doc := parse(page)
	doc.Find(`[class*="kcal_box"], [class*="kcalBox"]`).Each(func(_ int, box *goquery.Selection) {
		var scan kcalScan
		scan.out = out
		for _, n := range box.Nodes {
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				scan.walk(c)
			}
		}
	})
	return out
}

type kcalScan struct {
	key    string
	hasKey bool
	out    map[string]string
}

func (k *kcalScan) token(t string) {
	t = CollapseSpace(strings.ReplaceAll(t, "\u00a0", " "))
	if t == "" {
		return
	}
	if !k.hasKey {
		k.key, k.hasKey = t, true
		return
	}
	k.out[k.key] = t
	k.hasKey = false
}

func (k *kcalScan) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		k.token(n.Data)
		return
	case html.ElementNode:
		switch n.DataAtom {
		case atom.P:
			k.hasKey = false
		case atom.Img:
			for _, a := range n.Attr {
				if a.Key == "alt" {
					k.token(a.Val)
				}
			}
			return
		case atom.Script, atom.Style:
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		k.walk(c)
	}
}

// PaymentHistory reads the rental table. The payment container is preferred,
// the whole document is the fallback, and the first table yielding a row wins.
func PaymentHistory(page string) []domain.HistoryEntry {
	if page == "" {
		return nil
	}
	doc := parse(page)
	scope := doc.Find("div.payment_box, div.paymentBox").First()
	tables := scope.Find("table")
	if scope.Length() == 0 || tables.Length() == 0 {
		tables = doc.Find("table")
	}
	var out []domain.HistoryEntry
	tables.EachWithBreak(func(_ int, table *goquery.Selection) bool {
		out = historyRows(table)
		return len(out) == 0
	})
	return out
}

func historyRows(table *goquery.Selection) []domain.HistoryEntry {
	var out []domain.HistoryEntry
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		tds := tr.ChildrenFiltered("td")
		if tds.Length() < 5 {
			return
		}
		cells := make([]string, tds.Length())
		empty := true
		tds.Each(func(i int, td *goquery.Selection) {
			cells[i] = selectionText(td)
			if cells[i] != "" {
				empty = false
			}
		})
		if empty {
			return
		}
		entry := domain.HistoryEntry{
			Bike:           cells[0],
			RentDatetime:   cells[1],
			RentStation:    cells[2],
			ReturnDatetime: cells[3],
			ReturnStation:  cells[4],
		}
		if len(cells) > 5 {
			entry.HistoryID = cells[5]
		}
		if len(cells) > 6 {
			if km, ok := ParseFloat(cells[6]); ok {
				entry.DistanceKM = &km
			}
		}
		out = append(out, entry)
	})
	return out
}

// PeriodRange finds the search window, preferring named start/end inputs and
// falling back to the first two dates in the document.
func PeriodRange(page string) (start, end string) {
	if page == "" {
		return "", ""
	}
	parse(page).Find("input[name]").Each(func(_ int, in *goquery.Selection) {
		name := strings.ToLower(in.AttrOr("name", ""))
		m := dateRe.FindStringSubmatch(in.AttrOr("value", ""))
		if m == nil {
			return
		}
		if start == "" && (strings.Contains(name, "start") || strings.Contains(name, "from")) {
			start = normalizeDate(m)
		}
		if end == "" && (strings.Contains(name, "end") || strings.Contains(name, "to")) {
			end = normalizeDate(m)
		}
	})
	if start == "" || end == "" {
		if dates := dateRe.FindAllStringSubmatch(page, 2); len(dates) == 2 {
			if start == "" {
				start = normalizeDate(dates[0])
			}
			if end == "" {
				end = normalizeDate(dates[1])
			}
		}
	}
	return start, end
}

func normalizeDate(m []string) string {
	y, _ := strconv.Atoi(m[1])
	mo, _ := strconv.Atoi(m[2])
	d, _ := strconv.Atoi(m[3])
	return fmt.Sprintf("%04d-%02d-%02d", y, mo, d)
}

// LooksLikeUseHistory reports whether a page is the usage-history view.
func LooksLikeUseHistory(page string) bool {
	if page == "" {
		return false
	}
	return useHistoryBoxRe.MatchString(page) || useHistoryPageRe.MatchString(page)
}

// UseHistory parses one usage-history page.
func UseHistory(key, page string, now time.Time) domain.UsagePeriod {
	history := PaymentHistory(page)
	start, end := PeriodRange(page)
	p := domain.UsagePeriod{
		Key:         key,
		PeriodStart: start,
		PeriodEnd:   end,
		Kcal:        KcalBox(page),
		History:     history,
		UpdatedAt:   now,
	}
	if len(history) > 0 {
		last := history[0]
		p.Last = &last
	}
	return p
}
