// Package store persists issued refresh tokens keyed by the SHA-256 digest of
// the raw token.
//
// # Consume-if-active
//
// Rotate is the one operation that must be atomic: it flips the presented
// token to revoked only if it is still active, and inserts the successor in
// the same logical write. Two concurrent Rotate calls for the same raw token
// therefore produce at most one successor; the loser sees ErrNotActive.
//
// # Backends
//
//   - [Memory]: process-local, mutex guarded. Tests, development, load tests.
//   - [Postgres]: database/sql over the pgx driver; schema via [Migrate].
//   - [Redis]: Lua scripts over go-redis; one hash per token plus a per-user index.
//
// # What this package must NOT do
//
//   - Persist a raw refresh token, in any backend.
//   - Report a backend failure as ErrNotActive (callers would log users out).
//   - Interpret access tokens or rate limits.
package store
