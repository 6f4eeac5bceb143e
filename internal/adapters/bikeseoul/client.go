// Package bikeseoul is the scrape-mode client for the member website. It
// carries the session cookie, follows the site's endpoint variants and
// records diagnostics for every request.
package bikeseoul

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel"
	"golang.org/x/net/publicsuffix"

	"github.com/samirrijal/seoulbike/internal/core/domain"
	"github.com/samirrijal/seoulbike/internal/pkg/metrics"
)

var tracer = otel.Tracer("adapters/bikeseoul")

const (
	DefaultBaseURL = "https://www.bikeseoul.com"

	UserAgent = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 " +
		"(KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"

	acceptHTML     = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	acceptJSON     = "application/json, text/plain, */*"
	acceptLanguage = "ko-KR,ko;q=0.9,en-US;q=0.7,en;q=0.6"
)

// Options configures a Client.
type Options struct {
	BaseURL     string
	Cookie      string
	Timeout     time.Duration
	RealtimeTTL time.Duration // bulk realtime memo; 0 disables
	Location    *time.Location
	Now         func() time.Time
}

// Client talks to the member website. It is safe for concurrent use, though
// the coordinator serializes refreshes anyway.
type Client struct {
	base     *url.URL
	http     *resty.Client
	loc      *time.Location
	now      func() time.Time
	realtime *expirable.LRU[string, []domain.StationStatus]

	mu     sync.Mutex
	jar    *cookiejar.Jar
	cookie string
	raw    bool // cookie could not be split into pairs; send it verbatim
	meta   domain.RequestMeta
}

// New builds a client for opts.BaseURL (the public site by default).
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	c := &Client{base: base, loc: opts.Location, now: opts.Now}
	c.http = resty.New().
		SetBaseURL(base.String()).
		SetTimeout(opts.Timeout).
		SetHeader("User-Agent", UserAgent).
		SetHeader("Accept-Language", acceptLanguage).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(10), resty.DomainCheckRedirectPolicy(base.Hostname()))
	c.http.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		metrics.ObserveUpstream(res.Request.Method, res.StatusCode())
		return nil
	})
	c.http.OnError(func(req *resty.Request, err error) {
		metrics.ObserveUpstream(req.Method, 0)
	})
	if err := c.resetJar(); err != nil {
		return nil, err
	}
	if opts.RealtimeTTL > 0 {
		c.realtime = expirable.NewLRU[string, []domain.StationStatus](4, nil, opts.RealtimeTTL)
	}
	c.SetCookie(opts.Cookie)
	return c, nil
}

func (c *Client) resetJar() error {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return fmt.Errorf("cookie jar: %w", err)
	}
	c.mu.Lock()
	c.jar = jar
	c.mu.Unlock()
	c.http.SetCookieJar(jar)
	return nil
}

// SetCookie replaces the session cookie. The value is normalized first.
func (c *Client) SetCookie(raw string) {
	cookie := NormalizeCookie(raw)
	pairs := parseCookiePairs(cookie)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cookie = cookie
	c.raw = cookie != "" && len(pairs) == 0
	if len(pairs) > 0 {
		c.jar.SetCookies(c.base, pairs)
	}
	if c.realtime != nil {
		c.realtime.Purge()
	}
}

// Cookie returns the normalized cookie last set.
func (c *Client) Cookie() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cookie
}

// JarCookie serializes what the cookie jar currently holds for the site.
func (c *Client) JarCookie() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return serializeCookies(c.jar.Cookies(c.base))
}

// LastMeta returns diagnostics of the most recent request.
func (c *Client) LastMeta() domain.RequestMeta {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.meta
}

func (c *Client) record(method, u string, status int, errKind string) {
	c.mu.Lock()
	c.meta = domain.RequestMeta{Method: method, URL: u, Status: status, Error: errKind, At: c.now().UTC()}
	c.mu.Unlock()
}

func (c *Client) markError(errKind string) {
	c.mu.Lock()
	c.meta.Error = errKind
	c.mu.Unlock()
}

// resolve turns a site path, relative href or absolute URL into an
// absolute URL on the site.
func (c *Client) resolve(target string) string {
	target = strings.TrimSpace(target)
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return target
	}
	if !strings.HasPrefix(target, "/") {
		target = "/" + strings.TrimLeft(target, "./")
	}
	ref, err := url.Parse(target)
	if err != nil {
		return c.base.String() + target
	}
	return c.base.ResolveReference(ref).String()
}

type call struct {
	method  string
	target  string
	query   url.Values
	form    url.Values
	referer string
	json    bool
}

func (c *Client) do(ctx context.Context, cl call) (*resty.Response, error) {
	target := c.resolve(cl.target)
	attempted := target
	if len(cl.query) > 0 {
		attempted += "?" + cl.query.Encode()
	}

	req := c.http.R().SetContext(ctx)
	if cl.json {
		req.SetHeader("Accept", acceptJSON).SetHeader("X-Requested-With", "XMLHttpRequest")
	} else {
		req.SetHeader("Accept", acceptHTML)
	}
	if cl.referer != "" {
		req.SetHeader("Referer", c.resolve(cl.referer))
	}
	c.mu.Lock()
	if c.raw {
		req.SetHeader("Cookie", c.cookie)
	}
	c.mu.Unlock()
	if len(cl.query) > 0 {
		req.SetQueryParamsFromValues(cl.query)
	}
	if cl.method == http.MethodPost && len(cl.form) > 0 {
		req.SetFormDataFromValues(cl.form)
	}

	res, err := req.Execute(cl.method, target)
	if err != nil {
		terr := &domain.TransportError{URL: attempted, Err: err}
		c.record(cl.method, attempted, 0, domain.ErrorKind(terr))
		return nil, terr
	}
	final := attempted
	if raw := res.RawResponse; raw != nil && raw.Request != nil && raw.Request.URL != nil {
		final = raw.Request.URL.String()
	}
	if res.StatusCode() >= http.StatusBadRequest {
		herr := &domain.HTTPError{Status: res.StatusCode(), URL: final}
		c.record(cl.method, final, res.StatusCode(), herr.Error())
		return res, herr
	}
	c.record(cl.method, final, res.StatusCode(), "")
	return res, nil
}

func (c *Client) text(ctx context.Context, cl call) (string, error) {
	res, err := c.do(ctx, cl)
	if err != nil {
		return "", err
	}
	return res.String(), nil
}

// object requests JSON and insists on an object-shaped body, whatever the
// status code said.
func (c *Client) object(ctx context.Context, cl call) (map[string]any, error) {
	cl.json = true
	res, err := c.do(ctx, cl)
	if err != nil {
		return nil, err
	}
	var obj map[string]any
	if err := json.Unmarshal(res.Body(), &obj); err != nil || obj == nil {
		c.markError(domain.ErrNonJSONResponse.Error())
		return nil, fmt.Errorf("%s %s: %w", cl.method, cl.target, domain.ErrNonJSONResponse)
	}
	return obj, nil
}

func (c *Client) getText(ctx context.Context, target string, query url.Values, referer string) (string, error) {
	return c.text(ctx, call{method: http.MethodGet, target: target, query: query, referer: referer})
}

func (c *Client) postText(ctx context.Context, target string, form url.Values, referer string) (string, error) {
	return c.text(ctx, call{method: http.MethodPost, target: target, form: form, referer: referer})
}

func (c *Client) getJSON(ctx context.Context, target string, query url.Values, referer string) (map[string]any, error) {
	return c.object(ctx, call{method: http.MethodGet, target: target, query: query, referer: referer})
}

func (c *Client) postJSON(ctx context.Context, target string, form url.Values, referer string) (map[string]any, error) {
	return c.object(ctx, call{method: http.MethodPost, target: target, form: form, referer: referer})
}

// firstObject tries each variant in order and returns the first success.
// The last error is returned when every variant fails.
func (c *Client) firstObject(ctx context.Context, variants []call) (map[string]any, error) {
	var lastErr error
	for _, v := range variants {
		obj, err := c.object(ctx, v)
		if err == nil {
			return obj, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = domain.ErrNonJSONResponse
	}
	return nil, lastErr
}
