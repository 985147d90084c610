package goSession

import (
	"net/http"
	"time"
)

// SessionCookies returns the access and refresh cookies for pair. Both are
// HttpOnly; Production adds Secure and SameSite=Strict, otherwise Lax.
func SessionCookies(cfg CookieConfig, pair TokenPair, now time.Time) []*http.Cookie {
	return []*http.Cookie{
		sessionCookie(cfg, cfg.AccessName, pair.AccessToken, pair.AccessExpiresAt, now),
		sessionCookie(cfg, cfg.RefreshName, pair.RefreshToken, pair.RefreshExpiresAt, now),
	}
}

// SetSessionCookies writes both session cookies to w.
func (e *Engine) SetSessionCookies(w http.ResponseWriter, pair TokenPair) {
	for _, c := range SessionCookies(e.config.Cookies, pair, e.now()) {
		http.SetCookie(w, c)
	}
}

// ClearSessionCookies expires both session cookies on the client.
func (e *Engine) ClearSessionCookies(w http.ResponseWriter) {
	ClearSessionCookies(w, e.config.Cookies)
}

func ClearSessionCookies(w http.ResponseWriter, cfg CookieConfig) {
	for _, name := range []string{cfg.AccessName, cfg.RefreshName} {
		c := sessionCookie(cfg, name, "", time.Time{}, time.Time{})
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
		http.SetCookie(w, c)
	}
}

func sessionCookie(cfg CookieConfig, name, value string, expiresAt, now time.Time) *http.Cookie {
	path := cfg.Path
	if path == "" {
		path = "/"
	}
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Domain:   cfg.Domain,
		HttpOnly: true,
		Secure:   cfg.Production,
		SameSite: http.SameSiteLaxMode,
	}
	if cfg.Production {
		c.SameSite = http.SameSiteStrictMode
	}
	if !expiresAt.IsZero() {
		c.Expires = expiresAt
		if maxAge := int(expiresAt.Sub(now).Seconds()); maxAge > 0 {
			c.MaxAge = maxAge
		}
	}
	return c
}
