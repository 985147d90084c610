// Package rate provides the fixed-window-with-block counter shared by every
// rate-limited bucket.
//
// # Algorithm
//
// For each (bucket, key) entry, an attempt at instant now:
//
//  1. is rejected while now < BlockedUntil;
//  2. otherwise resets the window when now - WindowStart > Window;
//  3. increments Count and, when Count > MaxRequests, rejects and (if the
//     policy has a BlockDuration) sets BlockedUntil = now + BlockDuration.
//
// # Backends
//
//   - [Memory]: process-local table, constructed explicitly and closed at
//     shutdown. Entries whose window started more than [Retention] ago are
//     reclaimed by a sampled sweep on roughly 1% of calls.
//   - [Redis]: the same algorithm as a single Lua script, for deployments
//     running more than one instance.
//
// # What this package must NOT do
//
//   - Implement bucket policies or key derivation (those live in internal/limiters).
//   - Be imported outside the goSession module.
package rate
