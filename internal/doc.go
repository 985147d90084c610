// Package internal holds the building blocks behind the public goSession API.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher plus Sink implementations)
//   - dbx: transaction helper shared by the Postgres stores
//   - flows: rotation orchestration over narrow collaborator interfaces
//   - limiters: named buckets (login, register, password_reset, refresh)
//   - metrics: lock-free counters and latency histograms
//   - rate: fixed-window counters over Redis or process memory
//   - scheduler: periodic cleanup of dead refresh tokens
//   - users: account directory and password hashing for cmd/sessiond
//
// Nothing here is part of the public API.
package internal
