// Package limiters binds the internal/rate primitives to the named buckets
// used by the HTTP surface and the rotation flow.
//
// # Buckets
//
//   - login: 5 per minute per client IP, then blocked for 15 minutes.
//   - register: 3 per minute per client IP, no block.
//   - password_reset: 3 per 15 minutes, keyed on client IP and on the
//     normalized email independently, blocked for 60 minutes.
//   - refresh: 30 per minute per client IP, no block.
//
// A rejection is a [*LimitError] carrying the instant the caller may retry.
// It never says which key (IP or email) tripped.
//
// A nil *Guard allows everything.
//
// # What this package must NOT do
//
//   - Import goSession or any sibling internal package except internal/rate.
//   - Decide what a rejection means to the caller; flows map it.
package limiters
