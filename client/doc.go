// Package client provides the outbound half of silent session refresh: an
// http.RoundTripper that answers a 401 from a non-auth endpoint with one
// refresh call and one replay of the original request.
//
// The retry budget travels in the request context ([WithRetryBudget]); a
// request without one gets a budget of exactly one. Concurrent 401s share a
// single refresh call.
package client
