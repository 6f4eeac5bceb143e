// Package openapi pages through the public open-data bike list with an API
// key.
package openapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/samirrijal/seoulbike/internal/core/domain"
	"github.com/samirrijal/seoulbike/internal/core/extract"
	"github.com/samirrijal/seoulbike/internal/pkg/metrics"
)

var tracer = otel.Tracer("adapters/openapi")

const (
	DefaultHost = "http://openapi.seoul.go.kr:8088"
	resource    = "bikeList"
	resultOK    = "INFO-000"

	MaxPageSize = 1000
)

// Options configures a Client. Zero values fall back to the defaults used by
// the public API.
type Options struct {
	Host     string
	Key      string
	Timeout  time.Duration
	PageSize int
	MaxPages int
	Retries  int
	// RetryInterval is the first backoff delay between attempts of one page.
	RetryInterval time.Duration
	Now           func() time.Time
}

// PageMeta describes one fetched page.
type PageMeta struct {
	URL           string `json:"url"`
	Start         int    `json:"start"`
	End           int    `json:"end"`
	HTTPStatus    int    `json:"http_status"`
	ResultCode    string `json:"result_code"`
	ResultMessage string `json:"result_message"`
	RowCount      int    `json:"row_count"`
	ListTotal     int    `json:"list_total_count"`
}

// Client fetches station rows page by page.
type Client struct {
	http *resty.Client
	opts Options

	mu    sync.Mutex
	meta  domain.RequestMeta
	pages []PageMeta
}

// New builds a client for the given key.
func New(opts Options) *Client {
	if opts.Host == "" {
		opts.Host = DefaultHost
	}
	opts.Host = strings.TrimRight(opts.Host, "/")
	if opts.Timeout <= 0 {
		opts.Timeout = 25 * time.Second
	}
	if opts.PageSize <= 0 || opts.PageSize > MaxPageSize {
		opts.PageSize = MaxPageSize
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 10
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 800 * time.Millisecond
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	c := &Client{opts: opts}
	c.http = resty.New().
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/json")
	c.http.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		metrics.ObserveUpstream(res.Request.Method, res.StatusCode())
		return nil
	})
	c.http.OnError(func(req *resty.Request, _ error) {
		metrics.ObserveUpstream(req.Method, 0)
	})
	return c
}

func (c *Client) pageURL(start, end int) string {
	return fmt.Sprintf("%s/%s/json/%s/%d/%d/", c.opts.Host, c.opts.Key, resource, start, end)
}

// LastMeta returns diagnostics of the most recent page request.
func (c *Client) LastMeta() domain.RequestMeta {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.meta
}

// Pages returns the metadata of every page read by the last FetchAll.
func (c *Client) Pages() []PageMeta {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]PageMeta(nil), c.pages...)
}

func (c *Client) record(u string, status int, err error) {
	c.mu.Lock()
	c.meta = domain.RequestMeta{
		Method: http.MethodGet,
		URL:    u,
		Status: status,
		Error:  domain.ErrorKind(err),
		At:     c.opts.Now().UTC(),
	}
	c.mu.Unlock()
}

type result struct {
	Code    string `json:"CODE"`
	Message string `json:"MESSAGE"`
}

// envelope is the page body. A rejected key is reported with a top-level
// RESULT and no rentBikeStatus.
type envelope struct {
	RentBikeStatus *struct {
		ListTotalCount any              `json:"list_total_count"`
		Result         result           `json:"RESULT"`
		Row            []map[string]any `json:"row"`
	} `json:"rentBikeStatus"`
	Result *result `json:"RESULT"`
}

// FetchPage reads rows start..end (1-based, inclusive).
func (c *Client) FetchPage(ctx context.Context, start, end int) ([]domain.StationStatus, PageMeta, error) {
	u := c.pageURL(start, end)
	meta := PageMeta{URL: u, Start: start, End: end}

	res, err := c.http.R().SetContext(ctx).Get(u)
	if err != nil {
		terr := &domain.TransportError{URL: u, Err: err}
		c.record(u, 0, terr)
		return nil, meta, terr
	}
	meta.HTTPStatus = res.StatusCode()
	if res.StatusCode() >= http.StatusBadRequest {
		herr := &domain.HTTPError{Status: res.StatusCode(), URL: u}
		c.record(u, res.StatusCode(), herr)
		return nil, meta, herr
	}

	var env envelope
	if err := json.Unmarshal(res.Body(), &env); err == nil && env.RentBikeStatus == nil && env.Result != nil {
		meta.ResultCode = strings.TrimSpace(env.Result.Code)
		meta.ResultMessage = strings.TrimSpace(env.Result.Message)
		aerr := classifyResult(meta.ResultCode, meta.ResultMessage)
		c.record(u, res.StatusCode(), aerr)
		return nil, meta, aerr
	}
	if env.RentBikeStatus == nil {
		perr := fmt.Errorf("page %d-%d: %w", start, end, domain.ErrNonJSONResponse)
		c.record(u, res.StatusCode(), perr)
		return nil, meta, perr
	}
	root := env.RentBikeStatus
	meta.ResultCode = strings.TrimSpace(root.Result.Code)
	meta.ResultMessage = strings.TrimSpace(root.Result.Message)
	meta.RowCount = len(root.Row)
	if n := extract.JSONInt(root.ListTotalCount); n != nil {
		meta.ListTotal = *n
	}

	if meta.ResultCode != resultOK {
		aerr := classifyResult(meta.ResultCode, meta.ResultMessage)
		c.record(u, res.StatusCode(), aerr)
		return nil, meta, aerr
	}
	c.record(u, res.StatusCode(), nil)

	rows := make([]domain.StationStatus, 0, len(root.Row))
	for _, r := range root.Row {
		rows = append(rows, extract.StationRecord(r))
	}
	return rows, meta, nil
}

// classifyResult turns a non-success result into an APIError. The API has
// no reliable code for a rejected key, so the message decides.
func classifyResult(code, msg string) *domain.APIError {
	auth := strings.Contains(msg, "인증") || strings.Contains(strings.ToUpper(msg), "KEY")
	if msg == "" {
		if auth {
			msg = "invalid_api_key"
		} else {
			msg = "api_error:" + code
		}
	}
	return &domain.APIError{Code: code, Message: msg, Auth: auth}
}

// ValidateKey reads a single row to check the key.
func (c *Client) ValidateKey(ctx context.Context) error {
	_, _, err := c.FetchPage(ctx, 1, 1)
	return err
}

func (c *Client) fetchPageWithRetry(ctx context.Context, start, end int) ([]domain.StationStatus, PageMeta, error) {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     c.opts.RetryInterval,
		RandomizationFactor: 0.2,
		Multiplier:          2,
		MaxInterval:         10 * time.Second,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()

	var meta PageMeta
	op := func() ([]domain.StationStatus, error) {
		rows, m, err := c.FetchPage(ctx, start, end)
		meta = m
		var apiErr *domain.APIError
		if errors.As(err, &apiErr) && apiErr.Auth {
			return nil, backoff.Permanent(err)
		}
		return rows, err
	}
	rows, err := backoff.RetryNotifyWithData(op,
		backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.opts.Retries)), ctx),
		func(err error, d time.Duration) {
			slog.WarnContext(ctx, "open-data page failed, retrying", "start", start, "end", end, "in", d, "error", err)
		})
	return rows, meta, err
}

// FetchAll pages until a page returns fewer rows than the page size. The
// reported list_total_count is ignored. A failed page aborts the whole fetch.
func (c *Client) FetchAll(ctx context.Context) ([]domain.StationStatus, error) {
	ctx, span := tracer.Start(ctx, "client:FetchAll")
	defer span.End()

	var all []domain.StationStatus
	var pages []PageMeta
	start := 1
	for i := 0; i < c.opts.MaxPages; i++ {
		end := start + c.opts.PageSize - 1
		rows, meta, err := c.fetchPageWithRetry(ctx, start, end)
		if err != nil {
			span.SetStatus(codes.Error, domain.ErrorKind(err))
			var apiErr *domain.APIError
			if errors.As(err, &apiErr) && apiErr.Auth {
				return nil, err
			}
			return nil, fmt.Errorf("paging failed at %d-%d: %w", start, end, err)
		}
		all = append(all, rows...)
		pages = append(pages, meta)
		if len(rows) < c.opts.PageSize {
			break
		}
		start += c.opts.PageSize
	}
	span.SetAttributes(attribute.Int("rows", len(all)), attribute.Int("pages", len(pages)))

	c.mu.Lock()
	c.pages = pages
	c.mu.Unlock()
	return all, nil
}
