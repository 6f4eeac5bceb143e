package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	defaultLoginAction   = "/j_spring_security_check"
	defaultHistoryAction = "/app/mybike/getMemberUseHistory.do"
)

var (
	onclickHrefRe   = regexp.MustCompile(`(?:location\.href|window\.location|location)\s*=\s*['"]([^'"]+)['"]`)
	onclickPathRe   = regexp.MustCompile(`(?i)(/app/mybike/getMemberUseHistory\.do[^'"]*)`)
	historyActionRe = regexp.MustCompile(`(?i)/app/mybike/getMemberUseHistory[^"'\s<>]*`)
	quotedWeekRe    = regexp.MustCompile(`['"]w['"]`)
	quotedMonthRe   = regexp.MustCompile(`['"]m['"]`)
	digitsRe        = regexp.MustCompile(`\d+`)
)

// Form is a parsed HTML form with its input defaults in document order.
type Form struct {
	Action string
	Method string
	Names  []string
	Values map[string]string
}

// Set assigns a field, keeping document order for existing names.
func (f *Form) Set(name, value string) {
	if f.Values == nil {
		f.Values = map[string]string{}
	}
	if _, ok := f.Values[name]; !ok {
		f.Names = append(f.Names, name)
	}
	f.Values[name] = value
}

func readForm(form *goquery.Selection, inputs *goquery.Selection) Form {
	f := Form{
		Action: strings.TrimSpace(form.AttrOr("action", "")),
		Method: strings.ToLower(strings.TrimSpace(form.AttrOr("method", "post"))),
	}
	if f.Method == "" {
		f.Method = "post"
	}
	inputs.Each(func(_ int, in *goquery.Selection) {
		name := strings.TrimSpace(in.AttrOr("name", ""))
		if name == "" {
			return
		}
		f.Set(name, in.AttrOr("value", ""))
	})
	return f
}

// LoginForm is the login form with the detected credential field names.
type LoginForm struct {
	Form
	UserField string
	PassField string
}

// ExtractLoginForm locates the login form: the first whose action mentions
// the security check or "login", else the first form with an action, else
// the default action.
func ExtractLoginForm(page string) LoginForm {
	doc := parse(page)
	var chosen *goquery.Selection
	var firstWithAction *goquery.Selection
	doc.Find("form").EachWithBreak(func(_ int, form *goquery.Selection) bool {
		action := strings.ToLower(form.AttrOr("action", ""))
		if action == "" {
			return true
		}
		if firstWithAction == nil {
			firstWithAction = form
		}
		if strings.Contains(action, securityCheck) || strings.Contains(action, "login") {
			chosen = form
			return false
		}
		return true
	})
	if chosen == nil {
		chosen = firstWithAction
	}

	var lf LoginForm
	if chosen != nil {
		lf.Form = readForm(chosen, chosen.Find("input"))
	} else {
		lf.Form = readForm(doc.Find("form").First(), doc.Find("input"))
		lf.Action = ""
	}
	if lf.Action == "" {
		lf.Action = defaultLoginAction
	}

	scope := doc.Selection
	if chosen != nil {
		scope = chosen
	}
	scope.Find("input[name]").Each(func(_ int, in *goquery.Selection) {
		name := in.AttrOr("name", "")
		typ := strings.ToLower(in.AttrOr("type", "text"))
		lname := strings.ToLower(name)
		switch {
		case typ == "password" && lf.PassField == "":
			lf.PassField = name
		case (typ == "text" || typ == "email") && lf.UserField == "" &&
			(strings.Contains(lname, "user") || strings.Contains(lname, "id") || strings.Contains(lname, "login")):
			lf.UserField = name
		}
	})
	if lf.UserField == "" {
		lf.UserField = "j_username"
	}
	if lf.PassField == "" {
		lf.PassField = "j_password"
	}
	return lf
}

// SearchForm returns the usage-history search form (id=searchFrm, else the
// first form).
func SearchForm(page string) (Form, bool) {
	if page == "" {
		return Form{}, false
	}
	doc := parse(page)
	form := doc.Find("form#searchFrm").First()
	if form.Length() == 0 {
		form = doc.Find("form").First()
	}
	if form.Length() == 0 {
		return Form{}, false
	}
	f := readForm(form, form.Find("input"))
	if f.Action == "" {
		f.Action = defaultHistoryAction
	}
	return f, true
}

// PeriodButton returns the attributes of the element with the given id.
func PeriodButton(page, id string) map[string]string {
	attrs := map[string]string{}
	if page == "" {
		return attrs
	}
	sel := parse(page).Find("#" + id).First()
	for _, n := range sel.Nodes {
		for _, a := range n.Attr {
			attrs[strings.ToLower(a.Key)] = a.Val
		}
	}
	return attrs
}

// PeriodHref resolves the link behind a period button from its href-like
// attributes or its onclick navigation.
func PeriodHref(page, id string) string {
	attrs := PeriodButton(page, id)
	for _, k := range []string{"href", "data-href", "data-url"} {
		href := strings.TrimSpace(attrs[k])
		if href != "" && href != "#" && !strings.HasPrefix(strings.ToLower(href), "javascript") {
			return href
		}
	}
	onclick := attrs["onclick"]
	if onclick == "" {
		return ""
	}
	if m := onclickHrefRe.FindStringSubmatch(onclick); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := onclickPathRe.FindStringSubmatch(onclick); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// DaysFromOnclick guesses the window length a period button asks for.
func DaysFromOnclick(onclick string) int {
	if onclick == "" {
		return 0
	}
	lower := strings.ToLower(onclick)
	switch {
	case strings.Contains(lower, "week") || strings.Contains(lower, "1w"):
		return 7
	case strings.Contains(lower, "onem") || strings.Contains(lower, "month") || strings.Contains(lower, "1m"):
		return 30
	case quotedWeekRe.MatchString(lower):
		return 7
	case quotedMonthRe.MatchString(lower):
		return 30
	}
	if m := digitsRe.FindString(onclick); m != "" {
		n, _ := strconv.Atoi(m)
		return n
	}
	return 0
}

// ApplyPeriod rewrites the form's date and day fields for a window of days
// ending today.
func ApplyPeriod(f Form, days int, today time.Time) Form {
	start := today.AddDate(0, 0, -days).Format("2006-01-02")
	end := today.Format("2006-01-02")

	out := Form{Action: f.Action, Method: f.Method}
	var dateLike []string
	for _, name := range f.Names {
		value := f.Values[name]
		lname := strings.ToLower(name)
		switch {
		case strings.Contains(lname, "start") || strings.Contains(lname, "from") || strings.Contains(lname, "sdate"):
			value = start
		case strings.Contains(lname, "end") || strings.Contains(lname, "to") || strings.Contains(lname, "edate"):
			value = end
		case strings.Contains(lname, "day") || strings.Contains(lname, "period") || strings.Contains(lname, "term"):
			value = strconv.Itoa(days)
		case dateRe.MatchString(value):
			// unnamed date fields are read as start, end in document order
			dateLike = append(dateLike, name)
		}
		out.Set(name, value)
	}
	if len(dateLike) >= 1 {
		out.Set(dateLike[0], start)
	}
	if len(dateLike) >= 2 {
		out.Set(dateLike[1], end)
	}
	return out
}

// HistoryActionURLs lists distinct usage-history URLs referenced by a page.
func HistoryActionURLs(page string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, u := range historyActionRe.FindAllString(page, -1) {
		u = strings.TrimSpace(u)
		if _, ok := seen[u]; ok || u == "" {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
