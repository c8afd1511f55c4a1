package roleAuth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/roleAuth/directory"
	internalaudit "github.com/MrEthical07/roleAuth/internal/audit"
	"github.com/MrEthical07/roleAuth/internal/flows"
	internalmetrics "github.com/MrEthical07/roleAuth/internal/metrics"
	"github.com/MrEthical07/roleAuth/internal/rate"
	"github.com/MrEthical07/roleAuth/jwt"
	"github.com/MrEthical07/roleAuth/password"
	"github.com/MrEthical07/roleAuth/session"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

// Builder assembles an [Engine]. A Builder can be built once.
type Builder struct {
	config    Config
	redis     redis.UniversalClient
	directory directory.Directory
	auditSink AuditSink
	logger    *zap.Logger
	tracer    trace.Tracer
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing sessions, locks and throttles.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithDirectory(d directory.Directory) *Builder {
	b.directory = d
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the engine logger. The default discards everything.
func (b *Builder) WithLogger(l *zap.Logger) *Builder {
	b.logger = l
	return b
}

func (b *Builder) WithTracer(t trace.Tracer) *Builder {
	b.tracer = t
	return b
}

// WithClock overrides time.Now for sessions and tokens. Intended for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.directory == nil {
		return nil, errors.New("user directory required")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tracer := b.tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}

	// -------- TOKEN CODEC --------
	codec, err := jwt.NewCodec(jwt.Config{
		TTL:           cfg.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(strings.ToLower(cfg.JWT.SigningMethod)),
		PrivateKey:    cfg.JWT.PrivateKey,
		PublicKey:     cfg.JWT.PublicKey,
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
		VerifyKeys:    cfg.JWT.VerifyKeys,
		Now:           now,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	// -------- PASSWORDS --------
	ph, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	// -------- STORES --------
	store := session.NewStore(b.redis, cfg.Session.RedisPrefix).WithClock(now)
	limiter := rate.New(b.redis, rate.Config{
		Prefix:                cfg.Session.RedisPrefix,
		EnableIPThrottle:      cfg.RateLimit.EnableIPThrottle,
		MaxLoginAttempts:      cfg.RateLimit.MaxLoginAttempts,
		LoginCooldownDuration: cfg.RateLimit.LoginCooldown,
		MaxSwitchesPerWindow:  cfg.RateLimit.MaxSwitchesPerWindow,
		SwitchWindow:          cfg.RateLimit.SwitchWindow,
	})

	engine := &Engine{
		config:    cfg,
		sessions:  store,
		limiter:   limiter,
		codec:     codec,
		directory: b.directory,
		passwords: ph,
		metrics:   internalmetrics.New(internalmetrics.Config(cfg.Metrics)),
		log:       logger,
		tracer:    tracer,
		now:       now,
	}
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		OnDrop: func(ev internalaudit.Event) {
			logger.Debug("audit event dropped", zap.String("event_type", ev.EventType))
		},
		Now: now,
	}, b.auditSink)

	engine.flow = flows.New(engine.buildFlowDeps())

	b.built = true
	return engine, nil
}
