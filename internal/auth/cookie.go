package auth

import (
	"net/http"
	"time"
)

const (
	DefaultCookieName = "admin-token"
	DefaultSessionTTL = 7 * 24 * time.Hour
)

// CookiePolicy is the one place the session cookie attributes are decided.
type CookiePolicy struct {
	Name   string
	TTL    time.Duration
	Secure bool
}

// DefaultCookiePolicy returns the production policy.
func DefaultCookiePolicy() CookiePolicy {
	return CookiePolicy{
		Name:   DefaultCookieName,
		TTL:    DefaultSessionTTL,
		Secure: true,
	}
}

// NewSessionCookie builds the cookie carrying a minted session.
func (p CookiePolicy) NewSessionCookie(value string) *http.Cookie {
	return &http.Cookie{
		Name:     p.Name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(p.TTL / time.Second),
		HttpOnly: true,
		Secure:   p.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// ClearSessionCookie builds a cookie deleting the session (Max-Age=0).
func (p CookiePolicy) ClearSessionCookie() *http.Cookie {
	return &http.Cookie{
		Name:     p.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   p.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// Read returns the session cookie value, or "" when absent.
func (p CookiePolicy) Read(r *http.Request) string {
	cookie, err := r.Cookie(p.Name)
	if err != nil {
		return ""
	}
	return cookie.Value
}
