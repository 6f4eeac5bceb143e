package domain

import (
	"strings"
	"time"
)

// SessionState is the tri-state outcome of a login check.
type SessionState int

const (
	SessionUnknown SessionState = iota
	SessionValid
	SessionInvalid
)

func (s SessionState) String() string {
	switch s {
	case SessionValid:
		return "valid"
	case SessionInvalid:
		return "invalid"
	}
	return "unknown"
}

// RentStatus is the decoded rent-status probe.
type RentStatus struct {
	LoginYn    string         `json:"login_yn,omitempty"`
	MemberYn   string         `json:"member_yn,omitempty"`
	RentYn     string         `json:"rent_yn,omitempty"`
	RentStatus string         `json:"rent_status,omitempty"`
	RentBikeNo string         `json:"rent_bike_no,omitempty"`
	Raw        map[string]any `json:"raw,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// LoginState classifies the probe: missing data is unknown, an explicit
// non-"Y" login or member flag is invalid.
func (r RentStatus) LoginState() SessionState {
	if len(r.Raw) == 0 {
		return SessionUnknown
	}
	login := strings.ToUpper(strings.TrimSpace(r.LoginYn))
	if login == "" {
		return SessionUnknown
	}
	if login != "Y" {
		return SessionInvalid
	}
	if member := strings.ToUpper(strings.TrimSpace(r.MemberYn)); member != "" && member != "Y" {
		return SessionInvalid
	}
	return SessionValid
}

// Renting reports whether a bike is currently rented.
func (r RentStatus) Renting() bool {
	if strings.EqualFold(strings.TrimSpace(r.RentYn), "Y") {
		return true
	}
	switch strings.ToUpper(strings.TrimSpace(r.RentStatus)) {
	case "Y", "RENT", "1":
		return true
	}
	return strings.TrimSpace(r.RentBikeNo) != ""
}

// AuxStatus holds a best-effort JSON probe and its failure, if any.
type AuxStatus struct {
	Data  map[string]any `json:"data,omitempty"`
	Error string         `json:"error,omitempty"`
}

// AccountState carries the ticket and account timestamps, all ISO-8601 UTC.
type AccountState struct {
	TicketExpiry string    `json:"ticket_expiry,omitempty"` // effective expiry from any source
	VoucherEnd   string    `json:"voucher_end,omitempty"`   // realtime list or voucher endpoint only
	RegisteredAt string    `json:"registered_at,omitempty"`
	LastLoginAt  string    `json:"last_login_at,omitempty"`
	Source       string    `json:"source,omitempty"` // realtime, voucher_api or left_page
	Error        string    `json:"error,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Merge fills fields missing in a from prev.
func (a AccountState) Merge(prev AccountState) AccountState {
	if a.TicketExpiry == "" {
		a.TicketExpiry = prev.TicketExpiry
	}
	if a.VoucherEnd == "" {
		a.VoucherEnd = prev.VoucherEnd
	}
	if a.RegisteredAt == "" {
		a.RegisteredAt = prev.RegisteredAt
	}
	if a.LastLoginAt == "" {
		a.LastLoginAt = prev.LastLoginAt
	}
	if a.Source == "" {
		a.Source = prev.Source
	}
	return a
}
