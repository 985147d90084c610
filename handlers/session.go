package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/middleware"
	"github.com/MrEthical07/goSession/sso"
)

// IdentityLinker maps an external SSO identity to a local principal,
// creating the user on first login.
type IdentityLinker interface {
	LinkIdentity(ctx context.Context, provider string, id sso.Identity) (goSession.Principal, error)
}

// Handlers serves the session endpoints of one Engine.
type Handlers struct {
	engine *goSession.Engine
	logger zerolog.Logger

	accounts Accounts
	mailer   Mailer

	sso        *sso.Provider
	linker     IdentityLinker
	ssoSuccess string
	stateName  string
}

// New returns handlers for engine. SSO routes stay disabled until WithSSO.
func New(engine *goSession.Engine, logger zerolog.Logger) *Handlers {
	return &Handlers{
		engine:    engine,
		logger:    logger.With().Str("component", "handlers").Logger(),
		stateName: "sso_state",
	}
}

// WithSSO enables the SSO routes. After a successful callback the browser
// is redirected to successURL.
func (h *Handlers) WithSSO(p *sso.Provider, linker IdentityLinker, successURL string) *Handlers {
	h.sso = p
	h.linker = linker
	h.ssoSuccess = successURL
	if h.ssoSuccess == "" {
		h.ssoSuccess = "/"
	}
	return h
}

// Register mounts the routes under prefix, e.g. "/api/auth".
func (h *Handlers) Register(mux *http.ServeMux, prefix string) {
	mux.HandleFunc("POST "+prefix+"/refresh", h.Refresh)
	mux.HandleFunc("POST "+prefix+"/logout", h.Logout)
	mux.Handle("POST "+prefix+"/logout-all", middleware.Guard(h.engine)(http.HandlerFunc(h.LogoutAll)))
	if h.accounts != nil {
		mux.HandleFunc("POST "+prefix+"/login", h.Login)
		mux.HandleFunc("POST "+prefix+"/register", h.SignUp)
		mux.HandleFunc("POST "+prefix+"/password-reset", h.PasswordReset)
	}
	if h.sso != nil {
		mux.HandleFunc("GET "+prefix+"/sso/start", h.SSOStart)
		mux.HandleFunc("GET "+prefix+"/sso/callback", h.SSOCallback)
	}
}

type refreshResponse struct {
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// Refresh rotates the refresh cookie and sets a fresh cookie pair.
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	raw := h.refreshCookie(r)
	if raw == "" {
		WriteError(w, goSession.ErrInvalidCredential)
		return
	}

	pair, err := h.engine.Rotate(requestContext(r), raw)
	if err != nil {
		if errors.Is(err, goSession.ErrInvalidCredential) {
			h.engine.ClearSessionCookies(w)
		}
		if errors.Is(err, goSession.ErrTransientStore) {
			h.logger.Warn().Err(err).Msg("refresh: transient failure")
		}
		WriteError(w, err)
		return
	}

	h.engine.SetSessionCookies(w, pair)
	writeJSON(w, http.StatusOK, refreshResponse{
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	})
}

// Logout revokes the presented refresh token and clears both cookies. It
// succeeds without a cookie.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if raw := h.refreshCookie(r); raw != "" {
		if err := h.engine.Revoke(r.Context(), raw); err != nil {
			WriteError(w, err)
			return
		}
	}
	h.engine.ClearSessionCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

type logoutAllResponse struct {
	Revoked int `json:"revoked"`
}

// LogoutAll revokes every session of the authenticated user. It expects
// middleware.Guard in front.
func (h *Handlers) LogoutAll(w http.ResponseWriter, r *http.Request) {
	res, ok := middleware.AuthResultFromContext(r.Context())
	if !ok {
		WriteError(w, goSession.ErrUnauthorized)
		return
	}
	n, err := h.engine.RevokeAll(r.Context(), res.UserID)
	if err != nil {
		WriteError(w, err)
		return
	}
	h.engine.ClearSessionCookies(w)
	writeJSON(w, http.StatusOK, logoutAllResponse{Revoked: n})
}

func (h *Handlers) refreshCookie(r *http.Request) string {
	c, err := r.Cookie(h.engine.Config().Cookies.RefreshName)
	if err != nil {
		return ""
	}
	return c.Value
}
