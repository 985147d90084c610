package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/store"
)

type staticUsers struct{}

func (staticUsers) GetUserByID(_ context.Context, id string) (goSession.Principal, error) {
	return goSession.Principal{ID: id}, nil
}

func newEngine(t *testing.T) *goSession.Engine {
	t.Helper()
	cfg := goSession.DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	e, err := goSession.New().WithConfig(cfg).WithStore(store.NewMemory()).WithUserProvider(staticUsers{}).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(e.Close)
	return e
}

func TestGuard(t *testing.T) {
	e := newEngine(t)
	pair, err := e.IssueSession(context.Background(), goSession.Principal{ID: "u1"})
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}

	h := Guard(e)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, ok := AuthResultFromContext(r.Context())
		if !ok || res.UserID != "u1" {
			t.Errorf("missing auth result: %+v", res)
		}
		w.WriteHeader(http.StatusOK)
	}))

	bearer := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	bearer.Header.Set("Authorization", "Bearer "+pair.AccessToken)

	cookie := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	cookie.AddCookie(&http.Cookie{Name: "access_token", Value: pair.AccessToken})

	bad := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	bad.Header.Set("Authorization", "Bearer nope")

	none := httptest.NewRequest(http.MethodGet, "/api/me", nil)

	for _, tc := range []struct {
		name string
		req  *http.Request
		want int
	}{
		{"bearer", bearer, http.StatusOK},
		{"cookie", cookie, http.StatusOK},
		{"invalid", bad, http.StatusUnauthorized},
		{"missing", none, http.StatusUnauthorized},
	} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, tc.req)
		if rec.Code != tc.want {
			t.Fatalf("%s: status %d, want %d", tc.name, rec.Code, tc.want)
		}
	}
}

func TestGuardNilEngine(t *testing.T) {
	rec := httptest.NewRecorder()
	Guard(nil)(http.NotFoundHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status %d", rec.Code)
	}
}
