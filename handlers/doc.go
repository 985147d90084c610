// Package handlers exposes the session endpoints over HTTP: refresh,
// logout, logout-all and the SSO start/callback pair.
//
// Every rotation rejection is answered with the same 401 body so clients
// cannot tell unknown, expired, revoked or orphaned tokens apart. Rate
// limits answer 429 with Retry-After; backend outages answer 503 so clients
// retry instead of logging the user out.
package handlers
