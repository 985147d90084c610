package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/MrEthical07/goSession/middleware"
)

var (
	// ErrRefreshRejected is returned by Refresh when the server refuses the
	// refresh token. Only this error ends the session.
	ErrRefreshRejected = errors.New("session refresh rejected")
	// ErrRefreshUnavailable is returned by Refresh when the rotation endpoint
	// failed without judging the token, e.g. a 503 or 429. The session is kept.
	ErrRefreshUnavailable = errors.New("session refresh unavailable")
)

const defaultRefreshTimeout = 10 * time.Second

// Transport retries a request once after a silent refresh. It must be used
// with the same cookie jar as the surrounding http.Client.
type Transport struct {
	// Base performs the actual requests; http.DefaultTransport when nil.
	Base http.RoundTripper
	// RefreshURL is the absolute URL of the rotation endpoint.
	RefreshURL string
	// AuthPrefix marks endpoints that never trigger a refresh.
	AuthPrefix string
	Jar        http.CookieJar
	// LoginURL picks the page to send the user to when refresh fails.
	LoginURL func(*http.Request) string
	// OnSessionExpired is called with the login URL after the server rejects
	// the refresh token. Transport errors and 5xx responses do not call it.
	OnSessionExpired func(loginURL string)
	RefreshTimeout   time.Duration

	group singleflight.Group
}

// NewClient returns an http.Client wired to t, sharing t.Jar.
func NewClient(t *Transport) *http.Client {
	return &http.Client{Transport: t, Jar: t.Jar}
}

// RefererLoginURL derives a locale-aware login URL from the Referer page.
func RefererLoginURL(cfg middleware.GateConfig) func(*http.Request) string {
	return func(r *http.Request) string {
		path := ""
		if ref, err := url.Parse(r.Header.Get("Referer")); err == nil {
			path = ref.Path
		}
		return middleware.LoginURL(cfg, middleware.LocaleOf(cfg, path))
	}
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.isAuthURL(req.URL) {
		return t.base().RoundTrip(req)
	}

	req, err := rewindable(req)
	if err != nil {
		return nil, err
	}

	resp, err := t.base().RoundTrip(req)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	if !budgetFrom(req.Context()).take() {
		return resp, nil
	}

	if err := t.Refresh(req.Context()); err != nil {
		if errors.Is(err, ErrRefreshRejected) {
			t.expire(req)
		}
		return resp, nil
	}

	replay, err := t.replay(req)
	if err != nil {
		return resp, nil
	}
	drain(resp)
	return t.base().RoundTrip(replay)
}

// Refresh calls the rotation endpoint. Concurrent callers share one call.
func (t *Transport) Refresh(ctx context.Context) error {
	ch := t.group.DoChan(t.RefreshURL, func() (any, error) {
		timeout := t.RefreshTimeout
		if timeout <= 0 {
			timeout = defaultRefreshTimeout
		}
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		return nil, t.doRefresh(rctx)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Transport) doRefresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.RefreshURL, nil)
	if err != nil {
		return err
	}
	t.attachCookies(req)

	resp, err := t.base().RoundTrip(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRefreshUnavailable, err)
	}
	defer drain(resp)

	if t.Jar != nil {
		if rc := resp.Cookies(); len(rc) > 0 {
			t.Jar.SetCookies(req.URL, rc)
		}
	}
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		return nil
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", ErrRefreshRejected, resp.StatusCode)
	default:
		return fmt.Errorf("%w: status %d", ErrRefreshUnavailable, resp.StatusCode)
	}
}

func (t *Transport) replay(req *http.Request) (*http.Request, error) {
	out := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		out.Body = body
	}
	t.attachCookies(out)
	return out, nil
}

// expire clears the session cookies and notifies the application.
func (t *Transport) expire(req *http.Request) {
	if t.Jar != nil {
		for _, u := range []string{t.RefreshURL, req.URL.String()} {
			parsed, err := url.Parse(u)
			if err != nil {
				continue
			}
			var gone []*http.Cookie
			for _, c := range t.Jar.Cookies(parsed) {
				gone = append(gone, &http.Cookie{Name: c.Name, Path: "/", MaxAge: -1})
			}
			if len(gone) > 0 {
				t.Jar.SetCookies(parsed, gone)
			}
		}
	}

	if t.OnSessionExpired == nil {
		return
	}
	login := "/login"
	if t.LoginURL != nil {
		login = t.LoginURL(req)
	}
	t.OnSessionExpired(login)
}

func (t *Transport) attachCookies(req *http.Request) {
	if t.Jar == nil {
		return
	}
	req.Header.Del("Cookie")
	for _, c := range t.Jar.Cookies(req.URL) {
		req.AddCookie(c)
	}
}

func (t *Transport) isAuthURL(u *url.URL) bool {
	if t.AuthPrefix != "" && strings.HasPrefix(u.Path, t.AuthPrefix) {
		return true
	}
	if ru, err := url.Parse(t.RefreshURL); err == nil && ru.Path == u.Path {
		return true
	}
	return false
}

// rewindable returns req, or a clone with a buffered body, such that
// GetBody is set whenever there is a body.
func rewindable(req *http.Request) (*http.Request, error) {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return req, nil
	}
	buf, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, err
	}
	out := req.Clone(req.Context())
	out.Body = io.NopCloser(bytes.NewReader(buf))
	out.ContentLength = int64(len(buf))
	out.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(buf)), nil
	}
	return out, nil
}

func drain(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
