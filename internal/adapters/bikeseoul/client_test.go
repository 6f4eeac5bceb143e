package bikeseoul_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/samirrijal/seoulbike/internal/adapters/bikeseoul"
	"github.com/samirrijal/seoulbike/internal/core/domain"
)

func newClient(t *testing.T, srv *httptest.Server, cookie string) *bikeseoul.Client {
	t.Helper()
	c, err := bikeseoul.New(bikeseoul.Options{
		BaseURL:     srv.URL,
		Cookie:      cookie,
		Timeout:     2 * time.Second,
		RealtimeTTL: time.Minute,
		Location:    time.UTC,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestNormalizeCookie(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "JSESSIONID=abc; SCOUTER=x1", "JSESSIONID=abc; SCOUTER=x1"},
		{"quoted", `  "JSESSIONID=abc"  `, "JSESSIONID=abc"},
		{"colon prefix", "Cookie: JSESSIONID=abc", "JSESSIONID=abc"},
		{"space prefix", "cookie JSESSIONID=abc", "JSESSIONID=abc"},
		{"multi-line paste", "GET / HTTP/1.1\r\nHost: www.bikeseoul.com\r\nCookie: JSESSIONID=abc; a=b\r\nAccept: */*", "JSESSIONID=abc; a=b"},
		{"quoted prefix", `"Cookie: 'JSESSIONID=abc'"`, "JSESSIONID=abc"},
		{"empty", "  ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := bikeseoul.NormalizeCookie(tt.in)
			if got != tt.want {
				t.Errorf("NormalizeCookie(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if again := bikeseoul.NormalizeCookie(got); again != got {
				t.Errorf("not idempotent: %q -> %q", got, again)
			}
		})
	}
}

func TestFetchRentStatus_FallsBackToLegacyPath(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(bikeseoul.PathRentStatus, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusInternalServerError)
	})
	mux.HandleFunc(bikeseoul.PathRentStatusLegacy, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Referer"); !strings.HasSuffix(got, bikeseoul.PathRentStatusLegacy) {
			t.Errorf("referer = %q", got)
		}
		fmt.Fprint(w, `{"loginYn":"Y","memberYn":"Y","rentYn":"N"}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	status, err := newClient(t, srv, "JSESSIONID=abc").FetchRentStatus(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.LoginState() != domain.SessionValid {
		t.Errorf("expected valid session, got %s", status.LoginState())
	}
	if status.Renting() {
		t.Error("expected not renting")
	}
}

func TestFetchRentStatus_AllVariantsFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	c := newClient(t, srv, "")
	_, err := c.FetchRentStatus(context.Background())
	var herr *domain.HTTPError
	if !errors.As(err, &herr) || herr.Status != http.StatusForbidden {
		t.Fatalf("expected http_error_403, got %v", err)
	}
	meta := c.LastMeta()
	if meta.Status != http.StatusForbidden || meta.Error != "http_error_403" {
		t.Errorf("unexpected meta: %+v", meta)
	}
	if !strings.Contains(meta.URL, bikeseoul.PathRentStatusLegacy) {
		t.Errorf("meta should point at the last variant, got %q", meta.URL)
	}
}

func TestGetJSON_NonJSONResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body>error</body></html>")
	}))
	defer srv.Close()

	c := newClient(t, srv, "")
	_, err := c.FetchUserStatus(context.Background())
	if !errors.Is(err, domain.ErrNonJSONResponse) {
		t.Fatalf("expected non_json_response, got %v", err)
	}
	if meta := c.LastMeta(); meta.Status != http.StatusOK || meta.Error != "non_json_response" {
		t.Errorf("unexpected meta: %+v", meta)
	}
}

func TestLastMeta_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	c := newClient(t, srv, "")
	srv.Close()

	_, err := c.FetchFavoritesHTML(context.Background())
	if domain.ErrorKind(err) != "transport_error" {
		t.Fatalf("expected transport_error, got %v (%s)", err, domain.ErrorKind(err))
	}
	meta := c.LastMeta()
	if meta.Status != 0 || !strings.Contains(meta.URL, bikeseoul.PathFavorites) || meta.Error != "transport_error" {
		t.Errorf("unexpected meta: %+v", meta)
	}
}

func TestSetCookie_SendsNormalizedPairs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie("JSESSIONID")
		if err != nil || c.Value != "abc" {
			http.Error(w, "no session", http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	c := newClient(t, srv, "Cookie: JSESSIONID=abc; other=1")
	if _, err := c.FetchLeftPageHTML(context.Background()); err != nil {
		t.Fatalf("cookie not sent: %v", err)
	}
	if c.Cookie() != "JSESSIONID=abc; other=1" {
		t.Errorf("unexpected cookie %q", c.Cookie())
	}
}

const loginPage = `<html><body>
<form name="loginForm" action="/j_spring_security_check" method="post">
  <input type="hidden" name="_csrf" value="tok-1">
  <input type="text" name="j_username" value="">
  <input type="password" name="j_password" value="">
</form></body></html>`

func loginServer(t *testing.T, loginYn string) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc(bikeseoul.PathLogin, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, loginPage)
	})
	mux.HandleFunc("/j_spring_security_check", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if r.PostForm.Get("_csrf") != "tok-1" || r.PostForm.Get("j_username") != "rider" || r.PostForm.Get("j_password") != "secret" {
			t.Errorf("unexpected form: %v", r.PostForm)
		}
		http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: "fresh", Path: "/"})
		http.Redirect(w, r, "/main.do", http.StatusFound)
	})
	mux.HandleFunc("/main.do", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>main</html>")
	})
	mux.HandleFunc(bikeseoul.PathRentStatus, func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("JSESSIONID"); err != nil || c.Value != "fresh" {
			fmt.Fprint(w, `{"loginYn":"N"}`)
			return
		}
		fmt.Fprintf(w, `{"loginYn":%q}`, loginYn)
	})
	return httptest.NewServer(mux)
}

func TestLogin(t *testing.T) {
	srv := loginServer(t, "Y")
	defer srv.Close()

	c := newClient(t, srv, "JSESSIONID=stale")
	cookie, err := c.Login(context.Background(), "rider", "secret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if cookie != "JSESSIONID=fresh" {
		t.Errorf("expected fresh cookie, got %q", cookie)
	}
	if c.Cookie() != cookie {
		t.Errorf("client cookie not updated: %q", c.Cookie())
	}
}

func TestLogin_Rejected(t *testing.T) {
	srv := loginServer(t, "N")
	defer srv.Close()

	_, err := newClient(t, srv, "").Login(context.Background(), "rider", "secret")
	if !errors.Is(err, domain.ErrLoginFailed) {
		t.Fatalf("expected login_failed, got %v", err)
	}
}

func TestFetchStationStatus_FallsBackToHTML(t *testing.T) {
	var queries []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries = append(queries, r.URL.RawQuery)
		if r.URL.Query().Get("stationId") != "" && r.URL.Query().Get("stationNo") == "" {
			fmt.Fprint(w, `<script>var stationId = 'ST-777';</script><h2>777. 서울숲</h2><div class="bike"><p>4 / 2</p></div>`)
			return
		}
		http.Error(w, "bad params", http.StatusBadRequest)
	}))
	defer srv.Close()

	st, err := newClient(t, srv, "").FetchStationStatus(context.Background(), "ST-777", "777")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.StationID != "ST-777" || st.General == nil || *st.General != 4 || *st.Sprout != 2 {
		t.Errorf("unexpected status: %+v", st)
	}
	if len(queries) != 2 {
		t.Errorf("expected JSON attempt plus one HTML attempt, got %v", queries)
	}
}

func TestFetchStationRealtimeAll_Memoized(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if err := r.ParseForm(); err != nil || r.PostForm.Get("stationGrpSeq") != "ALL" {
			t.Errorf("unexpected form: %v", r.PostForm)
		}
		fmt.Fprint(w, `{"realtimeList":[
			{"stationId":"st-1","stationName":"102. 망원역","parkingBikeTotCnt":"5","parkingBikeTotCntGeneral":"4","parkingBikeTotCntTeen":"1"},
			{"stationId":"ST-2","stationName":"105. 합정역","parkingBikeTotCnt":0,"voucherEndDttm":"2025-12-31 23:59"}
		]}`)
	}))
	defer srv.Close()

	c := newClient(t, srv, "")
	for i := 0; i < 2; i++ {
		items, err := c.FetchStationRealtimeAll(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(items) != 2 || items[0].StationID != "ST-1" || *items[0].General != 4 {
			t.Fatalf("unexpected items: %+v", items)
		}
		if items[1].VoucherEnd == "" {
			t.Error("expected voucher end on second record")
		}
	}
	if hits.Load() != 1 {
		t.Errorf("expected one upstream call, got %d", hits.Load())
	}
	c.InvalidateRealtime()
	if _, err := c.FetchStationRealtimeAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if hits.Load() != 2 {
		t.Errorf("expected refetch after invalidation, got %d", hits.Load())
	}
}

func TestFetchUseHistoryHTML_FollowsPeriodHref(t *testing.T) {
	base := `<html><a id="weekBtn" href="/app/mybike/getMemberUseHistory.do?searchType=w">1주</a>
<div class="payment_box"><table></table></div></html>`
	mux := http.NewServeMux()
	mux.HandleFunc(bikeseoul.PathUseHistory, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("searchType") == "w" {
			fmt.Fprint(w, `<div class="payment_box"><table><tr><td>SPB-1</td><td>a</td><td>b</td><td>c</td><td>d</td></tr></table></div>`)
			return
		}
		fmt.Fprint(w, base)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newClient(t, srv, "")
	page, err := c.FetchUseHistoryHTML(context.Background(), domain.PeriodWeek, base)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(page, "SPB-1") {
		t.Errorf("expected weekly page, got %q", page)
	}

	if _, err := c.FetchUseHistoryHTML(context.Background(), "2y", base); !errors.Is(err, domain.ErrUnknownPeriod) {
		t.Errorf("expected unknown period error, got %v", err)
	}
}
