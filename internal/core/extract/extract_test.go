package extract_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/samirrijal/seoulbike/internal/core/extract"
)

const historyPage = `<html><body>
<form id="searchFrm" action="/app/mybike/getMemberUseHistory.do" method="post">
  <input type="hidden" name="searchStartDate" value="2025.03.01">
  <input type="hidden" name="searchEndDate" value="2025.03.08">
</form>
<div class="kcal_box">
  <p><img src="i1.png" alt="운동량"> <span>120.5 kcal</span></p>
  <p>탄소절감효과 <span>1.2 kg</span></p>
  <p>dangling</p>
</div>
<div class="payment_box">
  <table>
    <tr><th>자전거</th><th>대여</th></tr>
    <tr><td>SPB-1234</td><td>2025-03-08<br>10:11</td><td>102. 망원역</td><td>2025-03-08 10:40</td><td>105. 합정역</td><td>998877</td><td>3.25 km</td></tr>
    <tr><td>SPB-5678</td><td>2025-03-07 09:00</td><td>105. 합정역</td><td>2025-03-07 09:20</td><td>102. 망원역</td></tr>
    <tr><td></td><td></td><td></td><td></td><td></td></tr>
  </table>
</div>
</body></html>`

func TestStripTags(t *testing.T) {
	require.Equal(t, "a\nb & c", extract.StripTags("<b>a</b><br/>b &amp;&nbsp;c"))
	require.Equal(t, "", extract.StripTags("   "))
}

func TestKcalBox(t *testing.T) {
	got := extract.KcalBox(historyPage)
	require.Equal(t, map[string]string{
		"운동량":    "120.5 kcal",
		"탄소절감효과": "1.2 kg",
	}, got)
	require.Empty(t, extract.KcalBox("<div>nothing</div>"))
}

func TestPaymentHistory(t *testing.T) {
	rows := extract.PaymentHistory(historyPage)
	require.Len(t, rows, 2)
	require.Equal(t, "SPB-1234", rows[0].Bike)
	require.Equal(t, "2025-03-08\n10:11", rows[0].RentDatetime)
	require.Equal(t, "105. 합정역", rows[0].ReturnStation)
	require.Equal(t, "998877", rows[0].HistoryID)
	require.NotNil(t, rows[0].DistanceKM)
	require.InDelta(t, 3.25, *rows[0].DistanceKM, 1e-9)
	require.Empty(t, rows[1].HistoryID)
	require.Nil(t, rows[1].DistanceKM)
}

func TestPaymentHistory_FallsBackToDocument(t *testing.T) {
	page := `<table><tr><td>a</td><td>b</td></tr></table>
<table><tr><td>B1</td><td>t1</td><td>s1</td><td>t2</td><td>s2</td></tr></table>`
	rows := extract.PaymentHistory(page)
	require.Len(t, rows, 1)
	require.Equal(t, "B1", rows[0].Bike)
	require.Nil(t, extract.PaymentHistory(""))
}

func TestPeriodRange(t *testing.T) {
	start, end := extract.PeriodRange(historyPage)
	require.Equal(t, "2025-03-01", start)
	require.Equal(t, "2025-03-08", end)

	start, end = extract.PeriodRange("<p>2024/1/5 ~ 2024/2/5</p>")
	require.Equal(t, "2024-01-05", start)
	require.Equal(t, "2024-02-05", end)
}

func TestUseHistory(t *testing.T) {
	now := time.Date(2025, 3, 8, 12, 0, 0, 0, time.UTC)
	p := extract.UseHistory("1w", historyPage, now)
	require.Equal(t, "1w", p.Key)
	require.NotNil(t, p.Last)
	require.Equal(t, "SPB-1234", p.Last.Bike)
	require.Len(t, p.History, 2)
	require.True(t, extract.LooksLikeUseHistory(historyPage))
	require.False(t, extract.LooksLikeUseHistory("<html>hello</html>"))
}

func TestFavorites(t *testing.T) {
	page := `<ul>
<li>
  <div class="place"><a href="/app/station/moveStationRealtimeStatus.do?stationId=st-102">102. 망원역 1번출구</a></div>
  <div class="bike">일반 / 새싹<p>12 / 3</p></div>
</li>
<li><a href="#" onclick="moveRentalStation('ST-105','105. 합정역')">합정</a></li>
<li><a href="#" onclick="moveRentalStation('ST-105','105. 합정역')">합정</a></li>
<li><span>no station here</span></li>
</ul>`
	favs := extract.Favorites(page)
	require.Len(t, favs, 2)

	require.Equal(t, "ST-102", favs[0].StationID)
	require.Equal(t, "102. 망원역 1번출구", favs[0].StationName)
	require.Equal(t, "102", favs[0].StationNo)
	require.NotNil(t, favs[0].Normal)
	require.Equal(t, 12, *favs[0].Normal)
	require.Equal(t, 3, *favs[0].Sprout)

	require.Equal(t, "ST-105", favs[1].StationID)
	require.Equal(t, "105. 합정역", favs[1].StationName)
	require.Nil(t, favs[1].Normal)
}

func TestFavorites_RequiresName(t *testing.T) {
	page := `<ul>
<li><a href="#" onclick="moveRentalStation('ST-7','')">?</a></li>
<li><a href="#" onclick="moveRentalStation('ST-8','8. 시청')">시청</a></li>
</ul>`
	favs := extract.Favorites(page)
	require.Len(t, favs, 1)
	require.Equal(t, "ST-8", favs[0].StationID)
}

func TestLooksLikeLogin(t *testing.T) {
	login := `<form action="/j_spring_security_check" method="post">
<input type="text" name="j_username"><input type="password" name="j_password"></form>`
	require.True(t, extract.LooksLikeLogin(login))
	require.False(t, extract.LooksLikeLogin(login+`<a onclick="moveRentalStation('ST-1','1. A')">x</a>`))
	require.False(t, extract.LooksLikeLogin(login+`<a href="/logout.do">로그아웃</a>`))
	require.False(t, extract.LooksLikeLogin(`<form action="/search"><input type="text" name="q"></form>`))
	require.True(t, extract.LooksLikeLogin(""))
}

func TestExtractLoginForm(t *testing.T) {
	page := `<form action="/search"><input name="q"></form>
<form action="j_spring_security_check" method="post">
  <input type="hidden" name="_csrf" value="tok">
  <input type="text" name="loginId">
  <input type="password" name="pw">
</form>`
	lf := extract.ExtractLoginForm(page)
	require.Equal(t, "j_spring_security_check", lf.Action)
	require.Equal(t, "loginId", lf.UserField)
	require.Equal(t, "pw", lf.PassField)
	require.Equal(t, "tok", lf.Values["_csrf"])

	empty := extract.ExtractLoginForm("<p>maintenance</p>")
	require.Equal(t, "/j_spring_security_check", empty.Action)
	require.Equal(t, "j_username", empty.UserField)
	require.Equal(t, "j_password", empty.PassField)
}

func TestPeriodHrefAndDays(t *testing.T) {
	page := `<a id="weekBtn" href="javascript:void(0)" onclick="location.href='/app/mybike/getMemberUseHistory.do?searchType=w'">1주</a>
<a id="oneMBtn" href="#" onclick="fnSearch('oneM')">1개월</a>`
	require.Equal(t, "/app/mybike/getMemberUseHistory.do?searchType=w", extract.PeriodHref(page, "weekBtn"))
	require.Equal(t, "", extract.PeriodHref(page, "oneMBtn"))
	require.Equal(t, 30, extract.DaysFromOnclick(extract.PeriodButton(page, "oneMBtn")["onclick"]))
	require.Equal(t, 7, extract.DaysFromOnclick("search('w')"))
	require.Equal(t, 14, extract.DaysFromOnclick("search(14)"))
	require.Equal(t, 0, extract.DaysFromOnclick(""))
}

func TestApplyPeriod(t *testing.T) {
	form, ok := extract.SearchForm(historyPage)
	require.True(t, ok)
	require.Equal(t, "post", form.Method)
	today := time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)
	out := extract.ApplyPeriod(form, 30, today)
	require.Equal(t, "2025-03-01", out.Values["searchStartDate"])
	require.Equal(t, "2025-03-31", out.Values["searchEndDate"])
	require.Equal(t, []string{"searchStartDate", "searchEndDate"}, out.Names)
}

func TestTicketExpiry(t *testing.T) {
	seoul := time.FixedZone("KST", 9*3600)
	got, ok := extract.TicketExpiry(`<li>이용권 만료 2025.04.01 18:30</li>`, seoul)
	require.True(t, ok)
	require.Equal(t, time.Date(2025, 4, 1, 9, 30, 0, 0, time.UTC), got)

	got, ok = extract.TicketExpiry(`<li>2025-04-01</li>`, seoul)
	require.True(t, ok)
	require.Equal(t, time.Date(2025, 3, 31, 15, 0, 0, 0, time.UTC), got)

	_, ok = extract.TicketExpiry(`<li>none</li>`, seoul)
	require.False(t, ok)
}

func TestDateTimeValue(t *testing.T) {
	seoul := time.FixedZone("KST", 9*3600)
	require.Equal(t, "2025-01-02T01:04:05Z", extract.DateTimeValue("2025/01/02 10:04:05", seoul))
	require.Equal(t, "2025-01-01T15:00:00Z", extract.DateTimeValue("2025.01.02", seoul))
	require.Equal(t, "", extract.DateTimeValue("null", seoul))
	require.Equal(t, "", extract.DateTimeValue("soon", seoul))
}

func TestStationStatusHTML(t *testing.T) {
	page := `<script>var stationId = 'ST-777'; var parkingBikeTotCntRepair = 1;</script>
<h2>777. 서울숲</h2><div class="bike"><p>4 / 2</p></div>`
	st := extract.StationStatusHTML(page)
	require.Equal(t, "ST-777", st.StationID)
	require.Equal(t, "777. 서울숲", st.StationName)
	require.Equal(t, 4, *st.General)
	require.Equal(t, 2, *st.Sprout)
	require.Equal(t, 1, *st.Repair)
	require.Nil(t, st.Total)
}

func TestSplitStationName(t *testing.T) {
	for _, tc := range []struct{ in, no, title string }{
		{"102. 망원역", "102", "망원역"},
		{"102) 망원역", "102", "망원역"},
		{"102번 망원역", "102", "망원역"},
		{"망원역", "", "망원역"},
	} {
		no, title := extract.SplitStationName(tc.in)
		require.Equal(t, tc.no, no, tc.in)
		require.Equal(t, tc.title, title, tc.in)
	}
}
