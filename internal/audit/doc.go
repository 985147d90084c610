// Package audit relays credential lifecycle events (issue, rotate, reuse,
// logout, rate-limit rejections) to a Sink off the request path.
//
// A Dispatcher delivers from one goroutine in emission order. It either
// drops on a full buffer or waits for space until the caller's context ends.
// Close drains within a bounded time. Events never carry raw refresh or
// access tokens; the engine decides what to emit.
package audit
