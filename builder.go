package goSession

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	internalaudit "github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/internal/flows"
	"github.com/MrEthical07/goSession/internal/limiters"
	"github.com/MrEthical07/goSession/internal/rate"
	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/store"
)

// Builder assembles an Engine. A Builder can be used for one Build only.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	store  store.Store

	userProvider UserProvider
	auditSink    AuditSink
	logger       zerolog.Logger
	now          func() time.Time

	built bool
}

// New returns a Builder holding DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
		logger: zerolog.Nop(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis shares client with the rate limiter. When no store is set, the
// refresh token store is also placed in Redis.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStore sets the refresh token store.
func (b *Builder) WithStore(s store.Store) *Builder {
	b.store = s
	return b
}

func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

// WithAuditSink sets the audit destination. It has no effect unless
// Config.Audit.Enabled is true.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides the engine clock for token timestamps and rate-limit
// windows.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build validates the configuration, constructs the signing manager, picks
// the rate-limit backend (Redis when a client was supplied, process memory
// otherwise) and wires the flow service.
// Build may return ErrSigningMisconfigured when signing material is unusable,
// or a validation error for any other invalid setting.
// Build marks the builder used; a second call fails.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.userProvider == nil {
		return nil, errors.New("user provider required")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	// -------- SIGNING --------
	manager, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cfg.JWT.PrivateKey,
		PublicKey:     cfg.JWT.PublicKey,
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
		Now:           now,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigningMisconfigured, err)
	}
	issuer := NewTokenIssuer(manager, cfg.Refresh.TTL, now)

	// -------- STORE --------
	tokens := b.store
	if tokens == nil {
		if b.redis == nil {
			return nil, errors.New("refresh token store required")
		}
		tokens = store.NewRedis(b.redis)
	}

	// -------- RATE LIMITS --------
	var guard *limiters.Guard
	if cfg.RateLimit.Enabled {
		var limiter rate.Limiter
		if b.redis != nil {
			limiter, err = rate.NewRedis(b.redis, cfg.ratePolicies(),
				rate.WithRedisPrefix(cfg.RateLimit.RedisPrefix),
				rate.WithRedisClock(now),
			)
		} else {
			limiter, err = rate.NewMemory(cfg.ratePolicies(), rate.WithClock(now))
		}
		if err != nil {
			return nil, err
		}
		guard = limiters.NewGuard(limiter)
	}

	// -------- AUDIT / METRICS --------
	var dispatcher *internalaudit.Dispatcher
	if cfg.Audit.Enabled {
		sink := b.auditSink
		if sink == nil {
			sink = internalaudit.NewLoggerSink(b.logger)
		}
		dispatcher = internalaudit.NewDispatcher(internalaudit.Config{
			BufferSize:   cfg.Audit.BufferSize,
			DropIfFull:   cfg.Audit.DropIfFull,
			DrainTimeout: cfg.Audit.DrainTimeout,
		}, sink)
	}

	e := &Engine{
		config:  cfg,
		issuer:  issuer,
		jwt:     manager,
		store:   tokens,
		users:   b.userProvider,
		guard:   guard,
		metrics: NewMetrics(cfg.Metrics),
		audit:   dispatcher,
		logger:  b.logger.With().Str("component", "gosession").Logger(),
		now:     now,
	}
	e.flows = flows.New(e.flowDeps())

	b.built = true
	return e, nil
}

func (e *Engine) flowDeps() flows.Deps {
	issuePair := func(p flows.Principal) (flows.IssuedPair, error) {
		pair, err := e.issuer.IssuePair(Principal(p))
		return flows.IssuedPair(pair), err
	}

	var touch func(context.Context, string) error
	if rec, ok := e.users.(LastSeenRecorder); ok {
		touch = rec.TouchLastSeen
	}

	rotate := flows.RotateDeps{
		ClientIP:     ClientIPFromContext,
		RateLimited:  limiters.ErrRateLimited,
		Store:        e.store,
		StoreTimeout: e.config.Timeouts.Store,
		LookupPrincipal: func(ctx context.Context, userID string) (flows.Principal, error) {
			p, err := e.users.GetUserByID(ctx, userID)
			return flows.Principal(p), err
		},
		PrincipalNotFound: ErrPrincipalNotFound,
		IssuePair:         issuePair,
		ReuseDetection:    e.config.Refresh.ReuseDetection,
		TouchLastSeen:     touch,
		TouchTimeout:      e.config.Timeouts.Touch,
		Logger:            e.logger,
	}
	if e.guard != nil {
		rotate.RateLimiter = e.guard
	}

	return flows.Deps{
		Rotate: rotate,
		Issue: flows.IssueDeps{
			Store:            e.store,
			StoreTimeout:     e.config.Timeouts.Store,
			IssuePair:        issuePair,
			MaxActivePerUser: e.config.Refresh.MaxActivePerUser,
		},
		Logout: flows.LogoutDeps{
			Store:        e.store,
			StoreTimeout: e.config.Timeouts.Store,
		},
		Validate: flows.ValidateDeps{
			ParseAccess:  e.jwt.ParseAccess,
			Now:          e.now,
			MaxClockSkew: e.config.Security.MaxClockSkew,
		},
	}
}
