package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	goSession "github.com/MrEthical07/goSession"
)

// Response bodies. Rejections never say which check failed.
const (
	msgInvalidRefresh = "invalid or expired refresh token"
	msgRateLimited    = "too many requests, try again later"
	msgUnavailable    = "service temporarily unavailable"
	msgUnauthorized   = "unauthorized"
	msgInternal       = "internal error"
	msgBadCredentials = "invalid email or password"
	msgSessionLimit   = "too many active sessions"
	msgAccountExists  = "account already exists"
)

type errorBody struct {
	Error string `json:"error"`
}

// WriteError maps an engine error to its HTTP status and uniform body.
func WriteError(w http.ResponseWriter, err error) {
	var rl *goSession.RateLimitError
	switch {
	case errors.As(err, &rl):
		w.Header().Set("Retry-After", strconv.Itoa(rl.RetryAfterSeconds()))
		writeJSON(w, http.StatusTooManyRequests, errorBody{Error: msgRateLimited})
	case errors.Is(err, goSession.ErrInvalidCredential):
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: msgInvalidRefresh})
	case errors.Is(err, goSession.ErrTransientStore):
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: msgUnavailable})
	case errors.Is(err, goSession.ErrUnauthorized), errors.Is(err, goSession.ErrTokenClockSkew):
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: msgUnauthorized})
	case errors.Is(err, goSession.ErrBadCredentials):
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: msgBadCredentials})
	case errors.Is(err, goSession.ErrSessionLimitExceeded):
		writeJSON(w, http.StatusConflict, errorBody{Error: msgSessionLimit})
	case errors.Is(err, goSession.ErrAccountExists):
		writeJSON(w, http.StatusConflict, errorBody{Error: msgAccountExists})
	default:
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: msgInternal})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
