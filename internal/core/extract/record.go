package extract

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/samirrijal/seoulbike/internal/core/domain"
)

var voucherEndKeys = []string{"voucherEndDttm", "voucher_end_dttm", "ticketEndDttm", "ticket_end_dttm", "validEndDttm"}

// JSONString renders a decoded JSON scalar as trimmed text.
func JSONString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		return t.String()
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// JSONInt reads a count that may arrive as a number or a numeric string.
// Nil means the value was absent or unreadable.
func JSONInt(v any) *int {
	s := JSONString(v)
	if s == "" {
		return nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return &n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		n := int(f)
		return &n
	}
	return nil
}

func JSONFloat(v any) float64 {
	f, _ := ParseFloat(JSONString(v))
	return f
}

// StationRecord decodes one realtime station object. The member site and
// the open-data API share these key names.
func StationRecord(obj map[string]any) domain.StationStatus {
	st := domain.StationStatus{
		StationID:   strings.ToUpper(JSONString(obj["stationId"])),
		StationNo:   JSONString(obj["stationNo"]),
		StationName: JSONString(obj["stationName"]),
		Lat:         JSONFloat(obj["stationLatitude"]),
		Lon:         JSONFloat(obj["stationLongitude"]),
		Total:       JSONInt(obj["parkingBikeTotCnt"]),
		General:     JSONInt(obj["parkingBikeTotCntGeneral"]),
		Sprout:      JSONInt(obj["parkingBikeTotCntTeen"]),
		Repair:      JSONInt(obj["parkingBikeTotCntRepair"]),
		QR:          JSONInt(obj["parkingQRBikeCnt"]),
		Electric:    JSONInt(obj["parkingELECBikeCnt"]),
	}
	for _, k := range voucherEndKeys {
		if v := JSONString(obj[k]); v != "" {
			st.VoucherEnd = v
			break
		}
	}
	return st
}
