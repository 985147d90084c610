// Package refresh mints and hashes opaque refresh tokens.
//
// # Token format
//
// A refresh token is 32 bytes from crypto/rand, base64url-encoded without
// padding. It carries no claims and is not signed: its only meaning is as a
// lookup key into the refresh token store, which retains only the SHA-256
// digest of the raw value.
//
// # What this package must NOT do
//
//   - Access any store or perform I/O beyond reading crypto/rand.
//   - Import goSession, jwt, or store.
//   - Implement rotation or revocation policy.
package refresh
