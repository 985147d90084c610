// Package goSession implements the session credential lifecycle of a web
// application: issuing short-lived access tokens paired with long-lived
// opaque refresh tokens, rotating refresh tokens on every use, revoking them
// on logout, and rate limiting the authentication surface.
//
// # Architecture
//
// The [Engine] is built once through [New] and the fluent [Builder]:
//
//	engine, err := goSession.New().
//		WithConfig(cfg).
//		WithStore(store.NewPostgres(db)).
//		WithUserProvider(users).
//		Build()
//
// It composes:
//
//   - a [TokenIssuer] that mints signed access tokens (package jwt) and random
//     refresh tokens (package refresh),
//   - a refresh token store (package store) with memory, Postgres and Redis
//     backends, all of which rotate a token in one atomic conditional write,
//   - fixed-window rate limiting per bucket (login, register, password_reset,
//     refresh) backed by process memory or Redis,
//   - lock-free metrics and an async audit dispatcher.
//
// HTTP integration lives in the middleware, handlers and client packages.
//
// # Error taxonomy
//
// Rotation failures are reported as [ErrInvalidCredential] (uniform for
// unknown, revoked, expired and race-lost tokens), [ErrPrincipalNotFound]
// (which also matches ErrInvalidCredential), [*RateLimitError] (matches
// [ErrRateLimited]) and [ErrTransientStore] (retryable). A store outage is
// never reported as an invalid credential.
package goSession
