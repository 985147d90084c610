package handlers

import (
	"crypto/subtle"
	"net/http"

	"github.com/MrEthical07/goSession/sso"
)

const stateMaxAge = 600

// SSOStart sets a state cookie and redirects to the provider consent page.
func (h *Handlers) SSOStart(w http.ResponseWriter, r *http.Request) {
	state, err := sso.NewState()
	if err != nil {
		h.logger.Error().Err(err).Msg("sso: state generation failed")
		WriteError(w, err)
		return
	}
	http.SetCookie(w, h.stateCookie(state, stateMaxAge))
	http.Redirect(w, r, h.sso.AuthURL(state), http.StatusFound)
}

// SSOCallback verifies state, exchanges the code, links the identity and
// issues a session.
func (h *Handlers) SSOCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	c, err := r.Cookie(h.stateName)
	if err != nil || c.Value == "" || subtle.ConstantTimeCompare([]byte(c.Value), []byte(q.Get("state"))) != 1 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid sso state"})
		return
	}
	http.SetCookie(w, h.stateCookie("", -1))

	id, err := h.sso.Exchange(r.Context(), q.Get("code"))
	if err != nil {
		h.logger.Warn().Err(err).Str("provider", h.sso.Name()).Msg("sso: exchange failed")
		writeJSON(w, http.StatusBadGateway, errorBody{Error: "sso exchange failed"})
		return
	}

	principal, err := h.linker.LinkIdentity(r.Context(), h.sso.Name(), id)
	if err != nil {
		h.logger.Error().Err(err).Str("provider", h.sso.Name()).Msg("sso: identity link failed")
		WriteError(w, err)
		return
	}

	pair, err := h.engine.IssueSession(r.Context(), principal)
	if err != nil {
		WriteError(w, err)
		return
	}

	h.engine.SetSessionCookies(w, pair)
	http.Redirect(w, r, h.ssoSuccess, http.StatusFound)
}

func (h *Handlers) stateCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     h.stateName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.engine.Config().Cookies.Production,
		SameSite: http.SameSiteLaxMode,
	}
}
