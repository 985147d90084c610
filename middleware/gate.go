package middleware

import (
	"net/http"
	"strings"
)

// GateConfig configures the inbound auth gate.
type GateConfig struct {
	// APIPrefix paths always pass; API handlers authorize themselves.
	APIPrefix string
	// Locales are the recognised first path segments, e.g. "en", "fr".
	Locales       []string
	DefaultLocale string
	// PublicRoutes are locale-less paths reachable without a session. A
	// route ending in "/" matches every path below it.
	PublicRoutes []string
	// LoginPath is the locale-less login route, "/login" when empty.
	LoginPath     string
	AccessCookie  string
	RefreshCookie string
}

// Action is the gate outcome.
type Action int

const (
	Allow Action = iota
	RedirectLogin
)

func (a Action) String() string {
	if a == RedirectLogin {
		return "redirect_login"
	}
	return "allow"
}

// Decision is the result of Decide. Location is set for RedirectLogin.
type Decision struct {
	Action   Action
	Location string
}

// Decide classifies a request path given the cookies it carries. It checks
// cookie presence only; validity is left to the protected route and the
// refresh flow.
func Decide(cfg GateConfig, path string, cookies []*http.Cookie) Decision {
	if path == "" {
		path = "/"
	}
	if isUnder(path, cfg.APIPrefix) {
		return Decision{Action: Allow}
	}

	locale, rest := splitLocale(cfg, path)
	if isPublic(cfg, rest) {
		return Decision{Action: Allow}
	}
	if hasCookie(cookies, cfg.AccessCookie) || hasCookie(cookies, cfg.RefreshCookie) {
		return Decision{Action: Allow}
	}
	return Decision{Action: RedirectLogin, Location: LoginURL(cfg, locale)}
}

// LoginURL returns the login path for locale, falling back to the default
// locale.
func LoginURL(cfg GateConfig, locale string) string {
	login := cfg.LoginPath
	if login == "" {
		login = "/login"
	}
	if locale == "" {
		locale = cfg.DefaultLocale
	}
	if locale == "" {
		return login
	}
	return "/" + locale + login
}

// LocaleOf returns the locale segment of path, or the default locale.
func LocaleOf(cfg GateConfig, path string) string {
	locale, _ := splitLocale(cfg, path)
	if locale == "" {
		return cfg.DefaultLocale
	}
	return locale
}

// Gate redirects requests that Decide rejects with 302 Found.
func Gate(cfg GateConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := Decide(cfg, r.URL.Path, r.Cookies())
			if d.Action == RedirectLogin {
				http.Redirect(w, r, d.Location, http.StatusFound)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func splitLocale(cfg GateConfig, path string) (string, string) {
	trimmed := strings.TrimPrefix(path, "/")
	seg, rest, _ := strings.Cut(trimmed, "/")
	for _, l := range cfg.Locales {
		if seg == l {
			return l, "/" + rest
		}
	}
	return "", path
}

func isPublic(cfg GateConfig, path string) bool {
	for _, route := range cfg.PublicRoutes {
		if route == path {
			return true
		}
		if strings.HasSuffix(route, "/") && route != "/" && strings.HasPrefix(path, route) {
			return true
		}
		if strings.HasSuffix(route, "/") && strings.TrimSuffix(route, "/") == path {
			return true
		}
	}
	return false
}

func isUnder(path, prefix string) bool {
	if prefix == "" {
		return false
	}
	prefix = strings.TrimSuffix(prefix, "/")
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func hasCookie(cookies []*http.Cookie, name string) bool {
	if name == "" {
		return false
	}
	for _, c := range cookies {
		if c.Name == name && c.Value != "" {
			return true
		}
	}
	return false
}
