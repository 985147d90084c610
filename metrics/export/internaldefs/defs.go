package internaldefs

import (
	goSession "github.com/MrEthical07/goSession"
)

// CounterDef binds one engine counter to its exported name.
type CounterDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// HistogramDef binds one latency histogram to its exported name.
type HistogramDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in rendering order.
var CounterDefs = []CounterDef{
	{ID: goSession.MetricRotateSuccess, Name: "gosession_rotate_success_total", Help: "Successful refresh token rotations."},
	{ID: goSession.MetricRotateFailure, Name: "gosession_rotate_failure_total", Help: "Failed refresh token rotations of any kind."},
	{ID: goSession.MetricRotateRateLimited, Name: "gosession_rotate_rate_limited_total", Help: "Rotations denied by the refresh rate limit."},
	{ID: goSession.MetricRotateInvalid, Name: "gosession_rotate_invalid_total", Help: "Rotations rejected for a malformed, unknown, revoked or expired token."},
	{ID: goSession.MetricRotateRaceLost, Name: "gosession_rotate_race_lost_total", Help: "Concurrent presentations that lost the rotation race."},
	{ID: goSession.MetricRotateReuseDetected, Name: "gosession_rotate_reuse_detected_total", Help: "Presentations of an already rotated refresh token."},
	{ID: goSession.MetricRotateTransient, Name: "gosession_rotate_transient_total", Help: "Rotations failed by an unavailable store or limiter."},
	{ID: goSession.MetricPrincipalNotFound, Name: "gosession_principal_not_found_total", Help: "Rotations whose principal no longer exists."},
	{ID: goSession.MetricSessionIssued, Name: "gosession_session_issued_total", Help: "Sessions issued at sign-in."},
	{ID: goSession.MetricSessionLimitExceeded, Name: "gosession_session_limit_exceeded_total", Help: "Sign-ins refused by the per-user session cap."},
	{ID: goSession.MetricLogout, Name: "gosession_logout_total", Help: "Single-session logout operations."},
	{ID: goSession.MetricLogoutAll, Name: "gosession_logout_all_total", Help: "Logout-all operations."},
	{ID: goSession.MetricValidateSuccess, Name: "gosession_validate_success_total", Help: "Accepted access tokens."},
	{ID: goSession.MetricValidateFailure, Name: "gosession_validate_failure_total", Help: "Rejected access tokens."},
	{ID: goSession.MetricLoginRateLimited, Name: "gosession_login_rate_limited_total", Help: "Rate-limited login attempts."},
	{ID: goSession.MetricRegisterRateLimited, Name: "gosession_register_rate_limited_total", Help: "Rate-limited registration attempts."},
	{ID: goSession.MetricPasswordResetRateLimited, Name: "gosession_password_reset_rate_limited_total", Help: "Rate-limited password reset requests."},
	{ID: goSession.MetricRateLimiterUnavailable, Name: "gosession_rate_limiter_unavailable_total", Help: "Rate limit checks that failed on the backend."},
	{ID: goSession.MetricCleanupRemoved, Name: "gosession_cleanup_removed_total", Help: "Refresh token records removed by cleanup."},
}

// HistogramDefs lists every exported latency histogram.
var HistogramDefs = []HistogramDef{
	{ID: goSession.MetricRotateLatency, Name: "gosession_rotate_latency_seconds", Help: "Refresh token rotation latency."},
	{ID: goSession.MetricValidateLatency, Name: "gosession_validate_latency_seconds", Help: "Access token validation latency."},
}

// HistogramBounds are the upper bounds of the engine buckets, in seconds.
var HistogramBounds = [goSession.HistogramBucketCount]string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix is HistogramBounds made safe for instrument names.
var HistogramBoundSuffix = [goSession.HistogramBucketCount]string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed array, zero filling or truncating.
func NormalizeBuckets(raw []uint64) [goSession.HistogramBucketCount]uint64 {
	var out [goSession.HistogramBucketCount]uint64
	copy(out[:], raw)
	return out
}

// CumulativeBuckets turns per-bucket counts into le-style running totals.
func CumulativeBuckets(raw [goSession.HistogramBucketCount]uint64) [goSession.HistogramBucketCount]uint64 {
	var out [goSession.HistogramBucketCount]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
