package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/samirrijal/seoulbike/internal/core/domain"
)

var (
	stationIDRe   = regexp.MustCompile(`(?i)ST-\d+`)
	moveRentalRe  = regexp.MustCompile(`moveRentalStation\(\s*'([^']+)'\s*,\s*'([^']+)'\s*\)`)
	countPairRe   = regexp.MustCompile(`(\d+)\s*/\s*(\d+)`)
	favoriteNoRe  = regexp.MustCompile(`^\s*(\d+)\.`)
	dataMarkerRe  = regexp.MustCompile(`(?i)(kcal_box|payment_box|moveRentalStation\(\s*'ST-[^']+'\s*,\s*'[^']+'\s*\))`)
	logoutRe      = regexp.MustCompile(`(?i)logout`)
	loginFormRe   = regexp.MustCompile(`(?i)<form[^>]+action=["'][^"']*(j_spring_security_check|login)[^"']*["']`)
	passwordRe    = regexp.MustCompile(`(?i)<input[^>]+type=["']password["']`)
	securityCheck = "j_spring_security_check"
)

// Favorites reads the favorite-station list. Each <li> yields at most one
// station; entries are unique by (id, name) in page order.
func Favorites(page string) []domain.Favorite {
	if page == "" {
		return nil
	}
	var out []domain.Favorite
	seen := map[[2]string]struct{}{}
	parse(page).Find("li").Each(func(_ int, li *goquery.Selection) {
		id, name := favoriteAnchor(li)
		if id == "" || name == "" {
			for _, src := range rawSources(li) {
				m := moveRentalRe.FindStringSubmatch(src)
				if m == nil {
					continue
				}
				if id == "" {
					id = strings.ToUpper(strings.TrimSpace(m[1]))
				}
				if name == "" {
					name = StripTags(m[2])
				}
				break
			}
		}
		if id == "" || name == "" {
			return
		}
		key := [2]string{id, name}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}

		fav := domain.Favorite{StationID: id, StationName: name}
		if m := favoriteNoRe.FindStringSubmatch(name); m != nil {
			fav.StationNo = m[1]
		}
		if normal, sprout, ok := favoriteCounts(li); ok {
			fav.Normal, fav.Sprout = &normal, &sprout
		}
		out = append(out, fav)
	})
	return out
}

func favoriteAnchor(li *goquery.Selection) (id, name string) {
	a := li.Find("div.place a[href]").First()
	if a.Length() == 0 {
		a = li.Find("a.place[href]").First()
	}
	if a.Length() == 0 {
		li.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if stationIDRe.MatchString(s.AttrOr("href", "")) {
				a = s
				return false
			}
			return true
		})
	}
	if a.Length() == 0 {
		return "", ""
	}
	if m := stationIDRe.FindString(a.AttrOr("href", "")); m != "" {
		id = strings.ToUpper(m)
	}
	return id, CollapseSpace(selectionText(a))
}

// rawSources collects the attribute values and script bodies where the
// legacy moveRentalStation('ID','NAME') call can appear.
func rawSources(sel *goquery.Selection) []string {
	var out []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			for _, a := range n.Attr {
				if a.Key == "onclick" || a.Key == "href" {
					out = append(out, a.Val)
				}
			}
			if n.DataAtom == atom.Script {
				for c := n.FirstChild; c != nil; c = c.NextSibling {
					if c.Type == html.TextNode {
						out = append(out, c.Data)
					}
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return out
}

func favoriteCounts(li *goquery.Selection) (normal, sprout int, ok bool) {
	li.Find(".bike p, .bike").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		m := countPairRe.FindStringSubmatch(selectionText(s))
		if m == nil {
			return true
		}
		normal, _ = strconv.Atoi(m[1])
		sprout, _ = strconv.Atoi(m[2])
		ok = true
		return false
	})
	return normal, sprout, ok
}

// LooksLikeLogin classifies a page as the login form. Authenticated-content
// and logout markers always win over login-form fragments; an empty page
// counts as a login page.
func LooksLikeLogin(page string) bool {
	if page == "" {
		return true
	}
	if dataMarkerRe.MatchString(page) || logoutRe.MatchString(page) {
		return false
	}
	if !passwordRe.MatchString(page) {
		return false
	}
	return strings.Contains(strings.ToLower(page), securityCheck) || loginFormRe.MatchString(page)
}
