package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/middleware"
)

type fakeAPI struct {
	refreshCalls  atomic.Int32
	dataCalls     atomic.Int32
	acceptRefresh bool
	refreshDelay  time.Duration
	// refreshStatus, when set, is returned by the refresh endpoint as is.
	refreshStatus int
	// when set, data requests block until the gate is closed.
	gate chan struct{}
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		f.refreshCalls.Add(1)
		if f.refreshDelay > 0 {
			time.Sleep(f.refreshDelay)
		}
		if f.refreshStatus != 0 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(f.refreshStatus)
			return
		}
		if c, err := r.Cookie("refresh_token"); err != nil || !f.acceptRefresh || c.Value == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "access_token", Value: "fresh", Path: "/"})
		http.SetCookie(w, &http.Cookie{Name: "refresh_token", Value: "r2", Path: "/"})
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("/api/data", func(w http.ResponseWriter, r *http.Request) {
		f.dataCalls.Add(1)
		c, err := r.Cookie("access_token")
		if err != nil || c.Value != "fresh" {
			if f.gate != nil {
				<-f.gate
			}
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		body, _ := io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(append([]byte(r.Method+":"), body...))
	})
	return mux
}

type fixture struct {
	api     *fakeAPI
	srv     *httptest.Server
	jar     http.CookieJar
	tr      *Transport
	client  *http.Client
	expired chan string
}

func newFixture(t *testing.T, api *fakeAPI) *fixture {
	t.Helper()
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	u, _ := url.Parse(srv.URL)
	jar.SetCookies(u, []*http.Cookie{
		{Name: "access_token", Value: "stale", Path: "/"},
		{Name: "refresh_token", Value: "r1", Path: "/"},
	})

	f := &fixture{api: api, srv: srv, jar: jar, expired: make(chan string, 8)}
	f.tr = &Transport{
		RefreshURL: srv.URL + "/api/auth/refresh",
		AuthPrefix: "/api/auth",
		Jar:        jar,
		LoginURL: RefererLoginURL(middleware.GateConfig{
			Locales:       []string{"en", "fr"},
			DefaultLocale: "en",
			LoginPath:     "/login",
		}),
		OnSessionExpired: func(login string) { f.expired <- login },
	}
	f.client = NewClient(f.tr)
	return f
}

func (f *fixture) cookie(name string) string {
	u, _ := url.Parse(f.srv.URL)
	for _, c := range f.jar.Cookies(u) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

func TestRefreshesAndReplaysWithBody(t *testing.T) {
	f := newFixture(t, &fakeAPI{acceptRefresh: true})

	req, _ := http.NewRequest(http.MethodPut, f.srv.URL+"/api/data", io.NopCloser(stringsReader("payload")))
	resp, err := f.client.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 after replay, got %d", resp.StatusCode)
	}
	if string(body) != "PUT:payload" {
		t.Fatalf("replay lost method or body: %q", body)
	}
	if n := f.api.refreshCalls.Load(); n != 1 {
		t.Fatalf("expected one refresh, got %d", n)
	}
	if f.cookie("refresh_token") != "r2" {
		t.Fatalf("expected rotated refresh cookie in jar")
	}
}

func TestConcurrentUnauthorizedShareOneRefresh(t *testing.T) {
	api := &fakeAPI{acceptRefresh: true, refreshDelay: 100 * time.Millisecond, gate: make(chan struct{})}
	f := newFixture(t, api)

	const n = 8
	var wg sync.WaitGroup
	codes := make([]int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := f.client.Get(f.srv.URL + "/api/data")
			if err != nil {
				t.Errorf("Get: %v", err)
				return
			}
			codes[i] = resp.StatusCode
			resp.Body.Close()
		}(i)
	}

	deadline := time.Now().Add(2 * time.Second)
	for api.dataCalls.Load() < n && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	close(api.gate)
	wg.Wait()

	for i, c := range codes {
		if c != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, c)
		}
	}
	if got := api.refreshCalls.Load(); got != 1 {
		t.Fatalf("expected a single shared refresh, got %d", got)
	}
}

func TestFailedRefreshExpiresSession(t *testing.T) {
	f := newFixture(t, &fakeAPI{acceptRefresh: false})

	req, _ := http.NewRequest(http.MethodGet, f.srv.URL+"/api/data", nil)
	req.Header.Set("Referer", f.srv.URL+"/fr/settings")
	resp, err := f.client.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected original 401, got %d", resp.StatusCode)
	}
	select {
	case login := <-f.expired:
		if login != "/fr/login" {
			t.Fatalf("expected locale-aware login, got %q", login)
		}
	default:
		t.Fatal("expected OnSessionExpired to be called")
	}
	if f.cookie("refresh_token") != "" || f.cookie("access_token") != "" {
		t.Fatal("expected session cookies cleared from jar")
	}
}

func TestUnavailableRefreshKeepsSession(t *testing.T) {
	for _, status := range []int{http.StatusServiceUnavailable, http.StatusTooManyRequests, http.StatusInternalServerError} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			f := newFixture(t, &fakeAPI{acceptRefresh: true, refreshStatus: status})

			resp, err := f.client.Get(f.srv.URL + "/api/data")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			resp.Body.Close()

			if resp.StatusCode != http.StatusUnauthorized {
				t.Fatalf("expected original 401, got %d", resp.StatusCode)
			}
			if n := f.api.refreshCalls.Load(); n != 1 {
				t.Fatalf("expected one refresh attempt, got %d", n)
			}
			if len(f.expired) != 0 {
				t.Fatalf("status %d must not expire the session", status)
			}
			if f.cookie("refresh_token") != "r1" {
				t.Fatal("expected refresh cookie kept in jar")
			}
		})
	}
}

func TestUnreachableRefreshKeepsSession(t *testing.T) {
	f := newFixture(t, &fakeAPI{acceptRefresh: true})
	down := httptest.NewServer(http.NotFoundHandler())
	f.tr.RefreshURL = down.URL + "/api/auth/refresh"
	down.Close()

	resp, err := f.client.Get(f.srv.URL + "/api/data")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected original 401, got %d", resp.StatusCode)
	}
	if len(f.expired) != 0 {
		t.Fatal("a network failure must not expire the session")
	}
	if f.cookie("refresh_token") != "r1" {
		t.Fatal("expected refresh cookie kept in jar")
	}
	if err := f.tr.Refresh(context.Background()); !errors.Is(err, ErrRefreshUnavailable) {
		t.Fatalf("expected ErrRefreshUnavailable, got %v", err)
	}
}

func TestRefreshErrorKinds(t *testing.T) {
	rejected := newFixture(t, &fakeAPI{acceptRefresh: false})
	if err := rejected.tr.Refresh(context.Background()); !errors.Is(err, ErrRefreshRejected) {
		t.Fatalf("expected ErrRefreshRejected, got %v", err)
	}
	busy := newFixture(t, &fakeAPI{refreshStatus: http.StatusServiceUnavailable})
	if err := busy.tr.Refresh(context.Background()); !errors.Is(err, ErrRefreshUnavailable) {
		t.Fatalf("expected ErrRefreshUnavailable, got %v", err)
	}
}

func TestAuthEndpointsNeverRefresh(t *testing.T) {
	f := newFixture(t, &fakeAPI{acceptRefresh: true})

	resp, err := f.client.Post(f.srv.URL+"/api/auth/login", "application/json", nil)
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 passthrough, got %d", resp.StatusCode)
	}
	if n := f.api.refreshCalls.Load(); n != 0 {
		t.Fatalf("auth endpoint triggered %d refreshes", n)
	}
}

func TestSpentBudgetDoesNotRetry(t *testing.T) {
	f := newFixture(t, &fakeAPI{acceptRefresh: true})

	ctx := WithRetryBudget(context.Background(), 0)
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, f.srv.URL+"/api/data", nil)
	resp, err := f.client.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if n := f.api.refreshCalls.Load(); n != 0 {
		t.Fatalf("expected no refresh, got %d", n)
	}
	if len(f.expired) != 0 {
		t.Fatal("spent budget must not expire the session")
	}
}

func TestSharedBudgetIsConsumed(t *testing.T) {
	f := newFixture(t, &fakeAPI{acceptRefresh: true})

	ctx := WithRetryBudget(context.Background(), 1)
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, f.srv.URL+"/api/data", nil)
	resp, err := f.client.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if left := RetriesLeft(ctx); left != 0 {
		t.Fatalf("expected budget spent, got %d", left)
	}
}

func TestRetriesLeftWithoutBudget(t *testing.T) {
	if got := RetriesLeft(context.Background()); got != -1 {
		t.Fatalf("expected -1, got %d", got)
	}
}

func stringsReader(s string) io.Reader {
	return &onceReader{data: []byte(s)}
}

// onceReader hides any Len method so the request carries no GetBody.
type onceReader struct {
	data []byte
	off  int
}

func (r *onceReader) Read(p []byte) (int, error) {
	if r.off >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.off:])
	r.off += n
	return n, nil
}
