package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/middleware"
)

// Accounts is the password side of the user directory.
//
// Authenticate must return an error matching goSession.ErrBadCredentials for
// every rejected sign-in, and Register one matching goSession.ErrAccountExists
// for a taken email.
type Accounts interface {
	Authenticate(ctx context.Context, email, password string) (goSession.Principal, error)
	Register(ctx context.Context, email, name, password string) (goSession.Principal, error)
	FindByEmail(ctx context.Context, email string) (goSession.Principal, error)
}

// Mailer delivers password reset messages.
type Mailer interface {
	SendPasswordReset(ctx context.Context, p goSession.Principal) error
}

// MinPasswordLength is enforced on registration.
const MinPasswordLength = 10

const maxBodyBytes = 4 << 10

// WithAccounts enables the login, register and password-reset routes.
func (h *Handlers) WithAccounts(a Accounts, m Mailer) *Handlers {
	h.accounts = a
	h.mailer = m
	return h
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
	Password string `json:"password"`
}

type sessionResponse struct {
	UserID           string    `json:"user_id"`
	Email            string    `json:"email"`
	Name             string    `json:"name,omitempty"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// Login checks the login bucket, verifies the password and issues a session.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.engine.CheckLogin(r.Context(), clientIP(r), req.Email); err != nil {
		WriteError(w, err)
		return
	}

	p, err := h.accounts.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if !errors.Is(err, goSession.ErrBadCredentials) {
			h.logger.Error().Err(err).Msg("login: account lookup failed")
		}
		WriteError(w, err)
		return
	}
	h.startSession(w, r, p, http.StatusOK)
}

// SignUp checks the register bucket, creates the account and signs it in.
func (h *Handlers) SignUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.engine.CheckRegister(r.Context(), clientIP(r)); err != nil {
		WriteError(w, err)
		return
	}
	if !strings.Contains(req.Email, "@") || len(req.Password) < MinPasswordLength {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid registration"})
		return
	}

	p, err := h.accounts.Register(r.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		if !errors.Is(err, goSession.ErrAccountExists) {
			h.logger.Error().Err(err).Msg("register: create failed")
		}
		WriteError(w, err)
		return
	}
	h.startSession(w, r, p, http.StatusCreated)
}

type resetRequest struct {
	Email string `json:"email"`
}

// PasswordReset accepts a reset request. The response never reveals whether
// the email is registered.
func (h *Handlers) PasswordReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.engine.CheckPasswordReset(r.Context(), clientIP(r), req.Email); err != nil {
		WriteError(w, err)
		return
	}

	if p, err := h.accounts.FindByEmail(r.Context(), req.Email); err == nil && h.mailer != nil {
		if err := h.mailer.SendPasswordReset(r.Context(), p); err != nil {
			h.logger.Error().Err(err).Str("user_id", p.ID).Msg("password reset: delivery failed")
		}
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "if the account exists, a reset email is on its way",
	})
}

func (h *Handlers) startSession(w http.ResponseWriter, r *http.Request, p goSession.Principal, status int) {
	pair, err := h.engine.IssueSession(r.Context(), p)
	if err != nil {
		WriteError(w, err)
		return
	}
	h.engine.SetSessionCookies(w, pair)
	writeJSON(w, status, sessionResponse{
		UserID:           p.ID,
		Email:            p.Email,
		Name:             p.Name,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed request body"})
		return false
	}
	return true
}

// clientIP prefers the address set by middleware.ClientIP.
func clientIP(r *http.Request) string {
	if ip := goSession.ClientIPFromContext(r.Context()); ip != "" {
		return ip
	}
	return middleware.RequestIP(r, false)
}

// requestContext guarantees the engine sees a client IP.
func requestContext(r *http.Request) context.Context {
	if goSession.ClientIPFromContext(r.Context()) != "" {
		return r.Context()
	}
	return goSession.WithClientIP(r.Context(), middleware.RequestIP(r, false))
}
