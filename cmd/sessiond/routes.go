package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/handlers"
	"github.com/MrEthical07/goSession/metrics/export/prometheus"
	"github.com/MrEthical07/goSession/middleware"
)

// buildHandler assembles the full request chain:
// client IP, then the page gate, then the routes.
func buildHandler(fc fileConfig, engine *goSession.Engine, dir directory, logger zerolog.Logger) (http.Handler, error) {
	h := handlers.New(engine, logger).WithAccounts(dir, logMailer{logger: logger})
	if fc.ssoEnabled() {
		p, err := fc.ssoProvider()
		if err != nil {
			return nil, err
		}
		h.WithSSO(p, dir, fc.SSO.SuccessURL)
	}

	mux := http.NewServeMux()
	h.Register(mux, fc.Gate.AuthPrefix)
	mux.Handle("GET "+fc.Gate.APIPrefix+"/me", middleware.Guard(engine)(http.HandlerFunc(me)))
	mux.Handle("GET "+fc.Server.MetricsPath, prometheus.New(engine, prometheus.WithConstLabels(map[string]string{"service": "sessiond"})))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /", page)

	gate := fc.gate(engine.Config().Cookies)
	login := gate.LoginPath
	if login == "" {
		login = "/login"
	}
	gate.PublicRoutes = append(gate.PublicRoutes, login, fc.Server.MetricsPath, "/healthz")

	return middleware.ClientIP(fc.Server.TrustProxy)(middleware.Gate(gate)(mux)), nil
}

func me(w http.ResponseWriter, r *http.Request) {
	res, ok := middleware.AuthResultFromContext(r.Context())
	if !ok {
		handlers.WriteError(w, goSession.ErrUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"user_id": res.UserID,
		"email":   res.Email,
		"name":    res.Name,
	})
}

// page stands in for the frontend; the gate has already run.
func page(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "page %s\n", r.URL.Path)
}
