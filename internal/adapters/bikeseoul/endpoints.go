package bikeseoul

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/samirrijal/seoulbike/internal/core/domain"
	"github.com/samirrijal/seoulbike/internal/core/extract"
)

const (
	PathLogin              = "/login.do"
	PathRentStatus         = "/app/rentCheck/isChkRentStatus.do"
	PathRentStatusLegacy   = "/app/rent/isChkRentStatus.do"
	PathUserStatus         = "/app/rent/chkUserSataus.do"
	PathReconsent          = "/checkReconsentAjax.do"
	PathUseHistory         = "/app/mybike/getMemberUseHistory.do"
	PathMoveRoute          = "/app/mybike/getHistoryMoveRoute.do"
	PathVoucherInfo        = "/app/mybike/coupon/validChkVoucherAjax.do"
	PathVoucherPage        = "/app/mybike/coupon/validChkVoucher.do"
	PathLeftPage           = "/myLeftPage.do"
	PathFavorites          = "/app/mybike/favoriteStation.do"
	PathStationRealtime    = "/app/station/moveStationRealtimeStatus.do"
	PathStationRealtimeAll = "/app/station/getStationRealtimeStatus.do"

	realtimeAllKey = "ALL"
)

// Login signs in with username and password and returns the session cookie
// collected in the jar. Any previous cookie is dropped first.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	ctx, span := tracer.Start(ctx, "client:Login")
	defer span.End()

	if err := c.resetJar(); err != nil {
		return "", err
	}
	c.mu.Lock()
	c.cookie, c.raw = "", false
	c.mu.Unlock()

	page, err := c.getText(ctx, PathLogin, nil, PathLogin)
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch login page")
		return "", err
	}
	form := extract.ExtractLoginForm(page)
	values := url.Values{}
	for _, name := range form.Names {
		values.Set(name, form.Values[name])
	}
	values.Set(form.UserField, username)
	values.Set(form.PassField, password)

	if _, err := c.postText(ctx, form.Action, values, PathLogin); err != nil {
		span.SetStatus(codes.Error, "failed to post credentials")
		return "", err
	}

	status, err := c.FetchRentStatus(ctx)
	if err != nil || !strings.EqualFold(status.LoginYn, "Y") {
		span.SetStatus(codes.Error, domain.ErrLoginFailed.Error())
		if err != nil {
			return "", fmt.Errorf("%w: %v", domain.ErrLoginFailed, err)
		}
		return "", domain.ErrLoginFailed
	}

	cookie := c.JarCookie()
	if cookie == "" {
		span.SetStatus(codes.Error, domain.ErrCookieNotFound.Error())
		return "", domain.ErrCookieNotFound
	}
	c.SetCookie(cookie)
	return cookie, nil
}

// FetchRentStatus probes the session. The current path is tried before the
// legacy one.
func (c *Client) FetchRentStatus(ctx context.Context) (domain.RentStatus, error) {
	obj, err := c.firstObject(ctx, []call{
		{method: http.MethodGet, target: PathRentStatus, referer: PathRentStatus},
		{method: http.MethodGet, target: PathRentStatusLegacy, referer: PathRentStatusLegacy},
	})
	if err != nil {
		return domain.RentStatus{}, err
	}
	return parseRentStatus(obj), nil
}

func (c *Client) FetchUserStatus(ctx context.Context) (map[string]any, error) {
	return c.getJSON(ctx, PathUserStatus, nil, PathUserStatus)
}

func (c *Client) FetchReconsentStatus(ctx context.Context) (map[string]any, error) {
	return c.getJSON(ctx, PathReconsent, nil, "/")
}

// FetchMoveRoute returns the geo path of one trip. An empty id yields an
// empty payload without a request.
func (c *Client) FetchMoveRoute(ctx context.Context, historyID string) (map[string]any, error) {
	if strings.TrimSpace(historyID) == "" {
		return map[string]any{}, nil
	}
	return c.postJSON(ctx, PathMoveRoute, url.Values{"rentHistSeq": {historyID}}, PathUseHistory)
}

// FetchVoucherInfo reads ticket expiry, registration and last-login dates.
func (c *Client) FetchVoucherInfo(ctx context.Context) (domain.AccountState, error) {
	obj, err := c.postJSON(ctx, PathVoucherInfo, nil, PathVoucherPage)
	if err != nil {
		return domain.AccountState{}, err
	}
	return parseVoucherInfo(obj, c.loc, c.now()), nil
}

func (c *Client) FetchLeftPageHTML(ctx context.Context) (string, error) {
	return c.getText(ctx, PathLeftPage, nil, PathLeftPage)
}

func (c *Client) FetchFavoritesHTML(ctx context.Context) (string, error) {
	return c.getText(ctx, PathFavorites, nil, PathFavorites)
}

// FetchUseHistoryHTML returns the usage-history page for a period: "" or
// "history" is the default view, "1w" and "1m" follow the period buttons or
// resubmit the search form. baseHTML avoids refetching the default view.
func (c *Client) FetchUseHistoryHTML(ctx context.Context, period, baseHTML string) (string, error) {
	page := baseHTML
	if page == "" {
		var err error
		page, err = c.getText(ctx, PathUseHistory, nil, PathUseHistory)
		if err != nil {
			return "", err
		}
	}
	var button string
	switch period {
	case "", domain.PeriodHistory:
		return page, nil
	case domain.PeriodWeek:
		button = "weekBtn"
	case domain.PeriodMonth:
		button = "oneMBtn"
	default:
		return "", fmt.Errorf("%w: %q", domain.ErrUnknownPeriod, period)
	}

	if href := extract.PeriodHref(page, button); href != "" {
		out, err := c.getText(ctx, href, nil, PathUseHistory)
		if err == nil && extract.LooksLikeUseHistory(out) {
			return out, nil
		}
		return c.getText(ctx, PathUseHistory, nil, PathUseHistory)
	}

	days := extract.DaysFromOnclick(firstNonEmpty(extract.PeriodButton(page, button), "onclick", "href"))
	if days == 0 {
		days = 7
		if period == domain.PeriodMonth {
			days = 30
		}
	}
	form, ok := extract.SearchForm(page)
	if !ok {
		return page, nil
	}
	form = extract.ApplyPeriod(form, days, c.now().In(c.loc))
	values := url.Values{}
	for _, name := range form.Names {
		values.Set(name, form.Values[name])
	}

	out, err := c.submit(ctx, form.Method, form.Action, values)
	if err != nil {
		slog.DebugContext(ctx, "use history form submit failed", "period", period, "error", err)
		return page, nil
	}
	if extract.LooksLikeUseHistory(out) {
		return out, nil
	}
	for _, alt := range extract.HistoryActionURLs(page) {
		if alt == form.Action {
			continue
		}
		out, err := c.postText(ctx, alt, values, PathUseHistory)
		if err != nil {
			out, err = c.getText(ctx, alt, values, PathUseHistory)
		}
		if err == nil && extract.LooksLikeUseHistory(out) {
			return out, nil
		}
	}
	out, err = c.getText(ctx, PathUseHistory, nil, PathUseHistory)
	if err != nil {
		return page, nil
	}
	return out, nil
}

func (c *Client) submit(ctx context.Context, method, action string, values url.Values) (string, error) {
	if method == "get" {
		return c.getText(ctx, action, values, PathUseHistory)
	}
	return c.postText(ctx, action, values, PathUseHistory)
}

func firstNonEmpty(attrs map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(attrs[k]); v != "" {
			return v
		}
	}
	return ""
}

// FetchStationRealtimeAll returns every station's realtime status. Results
// are memoized for the configured TTL.
func (c *Client) FetchStationRealtimeAll(ctx context.Context) ([]domain.StationStatus, error) {
	if c.realtime != nil {
		if items, ok := c.realtime.Get(realtimeAllKey); ok {
			return items, nil
		}
	}
	obj, err := c.postJSON(ctx, PathStationRealtimeAll, url.Values{"stationGrpSeq": {"ALL"}}, PathFavorites)
	if err != nil {
		return nil, err
	}
	items := realtimeItems(obj)
	if c.realtime != nil && len(items) > 0 {
		c.realtime.Add(realtimeAllKey, items)
	}
	return items, nil
}

// InvalidateRealtime drops the memoized bulk realtime list.
func (c *Client) InvalidateRealtime() {
	if c.realtime != nil {
		c.realtime.Purge()
	}
}

// FetchStationStatus looks one station up. JSON is tried first; the HTML
// view of the same endpoint is the fallback, trying id, number, both and
// neither as parameters.
func (c *Client) FetchStationStatus(ctx context.Context, stationID, stationNo string) (domain.StationStatus, error) {
	ctx, span := tracer.Start(ctx, "client:FetchStationStatus")
	defer span.End()
	span.SetAttributes(attribute.String("station.id", stationID), attribute.String("station.no", stationNo))

	params := url.Values{}
	if stationID != "" {
		params.Set("stationId", stationID)
	}
	if stationNo != "" {
		params.Set("stationNo", stationNo)
	}
	var fromJSON domain.StationStatus
	if obj, err := c.getJSON(ctx, PathStationRealtime, params, PathFavorites); err == nil {
		fromJSON = extract.StationRecord(obj)
		if inner, ok := obj["stationInfo"].(map[string]any); ok && fromJSON.Empty() {
			fromJSON = extract.StationRecord(inner)
		}
		if !fromJSON.Empty() {
			return fromJSON, nil
		}
	} else if ctx.Err() != nil {
		return domain.StationStatus{}, err
	}

	page, err := c.fetchStationRealtimeHTML(ctx, stationID, stationNo)
	if err != nil {
		span.SetStatus(codes.Error, "station realtime page unavailable")
		return fromJSON, err
	}
	if parsed := extract.StationStatusHTML(page); !parsed.Empty() {
		return parsed, nil
	}
	return fromJSON, nil
}

func (c *Client) fetchStationRealtimeHTML(ctx context.Context, stationID, stationNo string) (string, error) {
	var tries []url.Values
	if stationID != "" {
		tries = append(tries, url.Values{"stationId": {stationID}})
	}
	if stationNo != "" {
		tries = append(tries, url.Values{"stationNo": {stationNo}})
	}
	if stationID != "" && stationNo != "" {
		tries = append(tries, url.Values{"stationId": {stationID}, "stationNo": {stationNo}})
	}
	tries = append(tries, nil)

	var lastErr error
	for _, q := range tries {
		page, err := c.getText(ctx, PathStationRealtime, q, PathFavorites)
		if err == nil {
			return page, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		lastErr = err
	}
	return "", lastErr
}
