package bikeseoul

import (
	"time"

	"github.com/samirrijal/seoulbike/internal/core/domain"
	"github.com/samirrijal/seoulbike/internal/core/extract"
)

// parseRentStatus decodes the rent-status probe.
func parseRentStatus(obj map[string]any) domain.RentStatus {
	return domain.RentStatus{
		LoginYn:    extract.JSONString(obj["loginYn"]),
		MemberYn:   extract.JSONString(obj["memberYn"]),
		RentYn:     extract.JSONString(obj["rentYn"]),
		RentStatus: extract.JSONString(obj["rentStatus"]),
		RentBikeNo: extract.JSONString(obj["rentBikeNo"]),
		Raw:        obj,
	}
}

// realtimeItems finds the station list inside a bulk realtime payload.
func realtimeItems(obj map[string]any) []domain.StationStatus {
	for _, key := range []string{"realtimeList", "list", "data"} {
		items, ok := obj[key].([]any)
		if !ok {
			continue
		}
		out := make([]domain.StationStatus, 0, len(items))
		for _, it := range items {
			if m, ok := it.(map[string]any); ok {
				if st := extract.StationRecord(m); !st.Empty() {
					out = append(out, st)
				}
			}
		}
		return out
	}
	return nil
}

// parseVoucherInfo reads the voucher payload, which nests its fields under
// one of several wrapper keys depending on the client version.
func parseVoucherInfo(obj map[string]any, loc *time.Location, now time.Time) domain.AccountState {
	src := obj
	for _, key := range []string{"couponVo", "voucherVo", "data"} {
		if m, ok := obj[key].(map[string]any); ok {
			src = m
			break
		}
	}
	acct := domain.AccountState{
		VoucherEnd:   extract.DateTimeValue(firstString(src, obj, "voucherEndDttm"), loc),
		RegisteredAt: extract.DateTimeValue(extract.JSONString(src["regDttm"]), loc),
		LastLoginAt:  extract.DateTimeValue(extract.JSONString(src["lastLoginDttm"]), loc),
		UpdatedAt:    now,
	}
	if acct.VoucherEnd != "" {
		acct.Source = "voucher_api"
	}
	return acct
}

func firstString(primary, fallback map[string]any, key string) string {
	if v := extract.JSONString(primary[key]); v != "" {
		return v
	}
	return extract.JSONString(fallback[key])
}
