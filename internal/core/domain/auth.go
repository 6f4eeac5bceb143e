package domain

import "strings"

// AuthMode selects how the poller talks to the upstream service.
type AuthMode interface {
	Name() string
	authMode()
}

// APIKeyMode polls the public open-data endpoint with an API key.
type APIKeyMode struct {
	Key string
}

func (APIKeyMode) Name() string { return "api_key" }
func (APIKeyMode) authMode()    {}

// CookieSessionMode scrapes the member website using a session cookie,
// optionally re-logging in with the stored credentials.
type CookieSessionMode struct {
	Cookie   string
	Username string
	Password string
}

func (CookieSessionMode) Name() string { return "cookie" }
func (CookieSessionMode) authMode()    {}

// HasCredentials reports whether a re-login can be attempted.
func (m CookieSessionMode) HasCredentials() bool {
	return strings.TrimSpace(m.Username) != "" && m.Password != ""
}
