package goSession

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	internalaudit "github.com/MrEthical07/goSession/internal/audit"
	internalmetrics "github.com/MrEthical07/goSession/internal/metrics"
)

// Principal is the user identity carried by access tokens.
type Principal struct {
	ID    string
	Email string
	Name  string
}

// UserProvider resolves the owner of a refresh token during rotation.
//
// GetUserByID must return an error matching ErrPrincipalNotFound when the
// user no longer exists. Any other error is treated as transient.
type UserProvider interface {
	GetUserByID(ctx context.Context, userID string) (Principal, error)
}

// LastSeenRecorder is an optional UserProvider extension. When implemented,
// TouchLastSeen runs detached after every successful rotation and its
// failure never affects the rotation result.
type LastSeenRecorder interface {
	TouchLastSeen(ctx context.Context, userID string) error
}

// TokenPair is a freshly issued access/refresh pair. RefreshToken is the only
// copy of the raw refresh secret; the store keeps its hash.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// AuthResult is returned by Engine.ValidateAccess.
type AuthResult struct {
	UserID    string
	Email     string
	Name      string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// AuditEvent is an audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink consumes audit events.
type AuditSink = internalaudit.Sink

// NoOpSink drops audit events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink buffers audit events in a channel.
type ChannelSink = internalaudit.ChannelSink

// LoggerSink writes audit events through a zerolog.Logger.
type LoggerSink = internalaudit.LoggerSink

// NewChannelSink returns a ChannelSink with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewLoggerSink returns a LoggerSink writing to logger.
func NewLoggerSink(logger zerolog.Logger) *LoggerSink {
	return internalaudit.NewLoggerSink(logger)
}

// MetricID identifies one engine metric.
type MetricID = internalmetrics.MetricID

// Metrics is the engine's counter and histogram set.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot = internalmetrics.Snapshot

const (
	MetricRotateSuccess            = internalmetrics.MetricRotateSuccess
	MetricRotateFailure            = internalmetrics.MetricRotateFailure
	MetricRotateRateLimited        = internalmetrics.MetricRotateRateLimited
	MetricRotateInvalid            = internalmetrics.MetricRotateInvalid
	MetricRotateRaceLost           = internalmetrics.MetricRotateRaceLost
	MetricRotateReuseDetected      = internalmetrics.MetricRotateReuseDetected
	MetricRotateTransient          = internalmetrics.MetricRotateTransient
	MetricPrincipalNotFound        = internalmetrics.MetricPrincipalNotFound
	MetricSessionIssued            = internalmetrics.MetricSessionIssued
	MetricSessionLimitExceeded     = internalmetrics.MetricSessionLimitExceeded
	MetricLogout                   = internalmetrics.MetricLogout
	MetricLogoutAll                = internalmetrics.MetricLogoutAll
	MetricValidateSuccess          = internalmetrics.MetricValidateSuccess
	MetricValidateFailure          = internalmetrics.MetricValidateFailure
	MetricLoginRateLimited         = internalmetrics.MetricLoginRateLimited
	MetricRegisterRateLimited      = internalmetrics.MetricRegisterRateLimited
	MetricPasswordResetRateLimited = internalmetrics.MetricPasswordResetRateLimited
	MetricRateLimiterUnavailable   = internalmetrics.MetricRateLimiterUnavailable
	MetricCleanupRemoved           = internalmetrics.MetricCleanupRemoved
	MetricRotateLatency            = internalmetrics.MetricRotateLatency
	MetricValidateLatency          = internalmetrics.MetricValidateLatency
)

// HistogramBucketCount is the number of buckets in each latency histogram.
const HistogramBucketCount = internalmetrics.HistBucketCount

// NewMetrics returns a Metrics set configured by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:                 cfg.Enabled,
		EnableLatencyHistograms: cfg.EnableLatencyHistograms,
	})
}
