// Package jwt issues and verifies the short-lived signed access tokens that
// authorize individual requests.
//
// Verification is stateless: signature, algorithm, expiry and the configured
// issuer/audience are checked, nothing is looked up. Signing-key problems are
// reported by NewManager as ErrMisconfigured so a process refuses to start
// with bad key material.
package jwt
