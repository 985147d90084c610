// Package sso performs the OAuth 2.0 authorization-code exchange against an
// external identity provider and normalizes the userinfo response into an
// [Identity] the engine can issue a session for.
//
// Provider-specific claim mapping beyond the standard sub/id, email and name
// fields is left to the caller's IdentityLinker.
package sso
