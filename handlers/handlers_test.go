package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/sso"
	"github.com/MrEthical07/goSession/store"
)

type stubUsers struct{}

func (stubUsers) GetUserByID(_ context.Context, id string) (goSession.Principal, error) {
	if id == "gone" {
		return goSession.Principal{}, goSession.ErrPrincipalNotFound
	}
	return goSession.Principal{ID: id, Email: id + "@example.com"}, nil
}

type downStore struct {
	*store.Memory
	mu   sync.Mutex
	down bool
}

func (s *downStore) setDown(v bool) {
	s.mu.Lock()
	s.down = v
	s.mu.Unlock()
}

func (s *downStore) FindActive(ctx context.Context, raw string) (*store.RefreshToken, error) {
	s.mu.Lock()
	down := s.down
	s.mu.Unlock()
	if down {
		return nil, errors.Join(store.ErrUnavailable, errors.New("dial tcp: refused"))
	}
	return s.Memory.FindActive(ctx, raw)
}

type fixture struct {
	engine *goSession.Engine
	store  *downStore
	mux    *http.ServeMux
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := goSession.DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Cookies.Production = false

	st := &downStore{Memory: store.NewMemory()}
	e, err := goSession.New().WithConfig(cfg).WithStore(st).WithUserProvider(stubUsers{}).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(e.Close)

	mux := http.NewServeMux()
	New(e, zerolog.Nop()).Register(mux, "/api/auth")
	return &fixture{engine: e, store: st, mux: mux}
}

func (f *fixture) post(path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, nil)
	req.RemoteAddr = "192.0.2.1:4000"
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func cookieNamed(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return body.Error
}

func TestRefreshRotatesCookies(t *testing.T) {
	f := newFixture(t)
	pair, err := f.engine.IssueSession(context.Background(), goSession.Principal{ID: "u1"})
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}

	rec := f.post("/api/auth/refresh", &http.Cookie{Name: "refresh_token", Value: pair.RefreshToken})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	access := cookieNamed(rec, "access_token")
	refresh := cookieNamed(rec, "refresh_token")
	if access == nil || refresh == nil || refresh.Value == pair.RefreshToken {
		t.Fatal("expected a rotated cookie pair")
	}
	if !access.HttpOnly || refresh.SameSite != http.SameSiteLaxMode {
		t.Fatalf("unexpected cookie attributes %+v", refresh)
	}

	replay := f.post("/api/auth/refresh", &http.Cookie{Name: "refresh_token", Value: pair.RefreshToken})
	if replay.Code != http.StatusUnauthorized || errorOf(t, replay) != msgInvalidRefresh {
		t.Fatalf("replay: %d %s", replay.Code, replay.Body.String())
	}
	if c := cookieNamed(replay, "refresh_token"); c == nil || c.MaxAge != -1 {
		t.Fatal("rejected refresh must clear cookies")
	}
}

func TestRefreshRejectionsAreUniform(t *testing.T) {
	f := newFixture(t)
	orphan, err := f.engine.IssueSession(context.Background(), goSession.Principal{ID: "gone"})
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}

	bodies := map[string]string{}
	for name, cookies := range map[string][]*http.Cookie{
		"missing":  nil,
		"garbage":  {{Name: "refresh_token", Value: "garbage"}},
		"orphaned": {{Name: "refresh_token", Value: orphan.RefreshToken}},
		"unknown":  {{Name: "refresh_token", Value: strings.Repeat("B", 43)}},
	} {
		rec := f.post("/api/auth/refresh", cookies...)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: status %d", name, rec.Code)
		}
		bodies[name] = rec.Body.String()
	}
	for name, b := range bodies {
		if b != bodies["missing"] {
			t.Fatalf("%s body %q differs from %q", name, b, bodies["missing"])
		}
	}
}

func TestRefreshTransientFailure(t *testing.T) {
	f := newFixture(t)
	pair, _ := f.engine.IssueSession(context.Background(), goSession.Principal{ID: "u1"})
	f.store.setDown(true)

	rec := f.post("/api/auth/refresh", &http.Cookie{Name: "refresh_token", Value: pair.RefreshToken})
	if rec.Code != http.StatusServiceUnavailable || rec.Header().Get("Retry-After") != "1" {
		t.Fatalf("expected 503 with Retry-After 1, got %d %q", rec.Code, rec.Header().Get("Retry-After"))
	}
	if cookieNamed(rec, "refresh_token") != nil {
		t.Fatal("transient failure must not clear cookies")
	}

	f.store.setDown(false)
	if rec := f.post("/api/auth/refresh", &http.Cookie{Name: "refresh_token", Value: pair.RefreshToken}); rec.Code != http.StatusOK {
		t.Fatalf("token must still work after recovery, got %d", rec.Code)
	}
}

func TestRefreshRateLimited(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 30; i++ {
		f.post("/api/auth/refresh", &http.Cookie{Name: "refresh_token", Value: "garbage"})
	}
	rec := f.post("/api/auth/refresh", &http.Cookie{Name: "refresh_token", Value: "garbage"})
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") == "" {
		t.Fatalf("expected 429 with Retry-After, got %d", rec.Code)
	}
	if errorOf(t, rec) != msgRateLimited {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestLogout(t *testing.T) {
	f := newFixture(t)
	pair, _ := f.engine.IssueSession(context.Background(), goSession.Principal{ID: "u1"})

	rec := f.post("/api/auth/logout", &http.Cookie{Name: "refresh_token", Value: pair.RefreshToken})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status %d", rec.Code)
	}
	if c := cookieNamed(rec, "access_token"); c == nil || c.MaxAge != -1 {
		t.Fatal("logout must clear the access cookie")
	}
	if _, err := f.engine.Rotate(context.Background(), pair.RefreshToken); !errors.Is(err, goSession.ErrInvalidCredential) {
		t.Fatalf("logged-out token must not rotate: %v", err)
	}
	if rec := f.post("/api/auth/logout"); rec.Code != http.StatusNoContent {
		t.Fatalf("logout without cookie: %d", rec.Code)
	}
}

func TestLogoutAll(t *testing.T) {
	f := newFixture(t)
	a, _ := f.engine.IssueSession(context.Background(), goSession.Principal{ID: "u1"})
	b, _ := f.engine.IssueSession(context.Background(), goSession.Principal{ID: "u1"})

	if rec := f.post("/api/auth/logout-all"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated logout-all: %d", rec.Code)
	}

	rec := f.post("/api/auth/logout-all", &http.Cookie{Name: "access_token", Value: a.AccessToken})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var body logoutAllResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body.Revoked != 2 {
		t.Fatalf("body %s, err %v", rec.Body.String(), err)
	}
	for _, p := range []goSession.TokenPair{a, b} {
		if _, err := f.engine.Rotate(context.Background(), p.RefreshToken); !errors.Is(err, goSession.ErrInvalidCredential) {
			t.Fatalf("expected revoked session, got %v", err)
		}
	}
}

type linker struct{}

func (linker) LinkIdentity(_ context.Context, provider string, id sso.Identity) (goSession.Principal, error) {
	return goSession.Principal{ID: provider + ":" + id.ID, Email: id.Email, Name: id.Name}, nil
}

func TestSSOFlow(t *testing.T) {
	idp := http.NewServeMux()
	idp.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"t","token_type":"Bearer","expires_in":60}`))
	})
	idp.HandleFunc("GET /userinfo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sub":"42","email":"grace@example.com","name":"Grace"}`))
	})
	srv := httptest.NewServer(idp)
	defer srv.Close()

	provider, err := sso.NewProvider("acme", sso.Config{
		ClientID:     "c",
		ClientSecret: "s",
		AuthURL:      srv.URL + "/authorize",
		TokenURL:     srv.URL + "/token",
		UserInfoURL:  srv.URL + "/userinfo",
		RedirectURL:  "http://app.test/api/auth/sso/callback",
	}, sso.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}

	f := newFixture(t)
	mux := http.NewServeMux()
	New(f.engine, zerolog.Nop()).WithSSO(provider, linker{}, "/en/dashboard").Register(mux, "/api/auth")

	start := httptest.NewRecorder()
	mux.ServeHTTP(start, httptest.NewRequest(http.MethodGet, "/api/auth/sso/start", nil))
	if start.Code != http.StatusFound {
		t.Fatalf("start status %d", start.Code)
	}
	loc, _ := url.Parse(start.Header().Get("Location"))
	state := loc.Query().Get("state")
	stateCookie := cookieNamed(start, "sso_state")
	if state == "" || stateCookie == nil || stateCookie.Value != state {
		t.Fatal("state cookie must match the state parameter")
	}

	forged := httptest.NewRequest(http.MethodGet, "/api/auth/sso/callback?code=x&state=forged", nil)
	forged.AddCookie(stateCookie)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, forged)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("forged state: %d", rec.Code)
	}

	cb := httptest.NewRequest(http.MethodGet, "/api/auth/sso/callback?code=x&state="+url.QueryEscape(state), nil)
	cb.AddCookie(stateCookie)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, cb)
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/en/dashboard" {
		t.Fatalf("callback: %d %q", rec.Code, rec.Header().Get("Location"))
	}
	access := cookieNamed(rec, "access_token")
	if access == nil {
		t.Fatal("callback must set session cookies")
	}
	res, err := f.engine.ValidateAccess(access.Value)
	if err != nil || res.UserID != "acme:42" || res.Email != "grace@example.com" {
		t.Fatalf("ValidateAccess: %+v %v", res, err)
	}
}
