// Package middleware exposes HTTP middleware adapters built on goSession.Engine.
//
// # Middleware
//
//   - [Gate]: cookie-presence gate that redirects page requests without any
//     session cookie to a locale-aware login path. Decisions come from the
//     pure function [Decide].
//   - [Guard]: access token verification for protected handlers; injects the
//     validated [goSession.AuthResult] into the request context.
//   - [ClientIP]: attaches the caller's IP to the request context for
//     per-IP rate limiting.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT implement
// authentication logic itself; validation is delegated to Engine.ValidateAccess.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Check token validity in Gate (presence only).
//   - Touch the refresh token store.
package middleware
