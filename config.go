package roleAuth

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config is the engine configuration. Start from [DefaultConfig] and
// override what you need.
type Config struct {
	JWT       JWTConfig
	Session   SessionConfig
	Switch    SwitchConfig
	Password  PasswordConfig
	RateLimit RateLimitConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures the session token codec. The session TTL equals
// AccessTTL.
type JWTConfig struct {
	AccessTTL     time.Duration
	SigningMethod string // "ed25519" (default) or "hs256"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	// Leeway is the tolerated clock skew, at most 2m.
	Leeway time.Duration
	KeyID  string
	// VerifyKeys maps kid to previous public keys during rotation.
	VerifyKeys map[string][]byte
}

/*
====================================
SESSION CONFIG
====================================
*/

type SessionConfig struct {
	RedisPrefix string
}

/*
====================================
SWITCH CONFIG
====================================
*/

// SwitchConfig bounds the role switch. CommitTimeout limits the steps
// after the old session is invalidated, which ignore caller cancellation.
type SwitchConfig struct {
	CommitTimeout time.Duration
	LockTTL       time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig sets fixed-window throttles. Zero maxima disable the
// matching throttle.
type RateLimitConfig struct {
	EnableIPThrottle     bool
	MaxLoginAttempts     int
	LoginCooldown        time.Duration
	MaxSwitchesPerWindow int
	SwitchWindow         time.Duration
}

/*
====================================
OBSERVABILITY CONFIG
====================================
*/

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns production defaults. Keys are not set.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			SigningMethod: "ed25519",
			Leeway:        30 * time.Second,
		},
		Session: SessionConfig{
			RedisPrefix: "ra",
		},
		Switch: SwitchConfig{
			CommitTimeout: 5 * time.Second,
			LockTTL:       10 * time.Second,
		},
		Password: PasswordConfig{
			Memory:      65536,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		RateLimit: RateLimitConfig{
			EnableIPThrottle:     false,
			MaxLoginAttempts:     5,
			LoginCooldown:        15 * time.Minute,
			MaxSwitchesPerWindow: 10,
			SwitchWindow:         time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	if cfg.JWT.VerifyKeys != nil {
		out.JWT.VerifyKeys = make(map[string][]byte, len(cfg.JWT.VerifyKeys))
		for kid, key := range cfg.JWT.VerifyKeys {
			out.JWT.VerifyKeys[kid] = cloneBytes(key)
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks structural constraints. Key material is checked when
// the codec is built.
func (c *Config) Validate() error {
	var errs []error

	if c.JWT.AccessTTL <= 0 {
		errs = append(errs, errors.New("JWT.AccessTTL must be > 0"))
	}
	switch strings.ToLower(c.JWT.SigningMethod) {
	case "", "ed25519", "hs256":
	default:
		errs = append(errs, fmt.Errorf("JWT.SigningMethod %q unsupported", c.JWT.SigningMethod))
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		errs = append(errs, errors.New("JWT.Leeway must be within [0, 2m]"))
	}
	if len(c.JWT.PrivateKey) == 0 {
		errs = append(errs, errors.New("JWT.PrivateKey required"))
	}

	if strings.ContainsRune(c.Session.RedisPrefix, ':') {
		errs = append(errs, errors.New("Session.RedisPrefix must not contain ':'"))
	}

	if c.Switch.CommitTimeout <= 0 {
		errs = append(errs, errors.New("Switch.CommitTimeout must be > 0"))
	}
	if c.Switch.LockTTL < c.Switch.CommitTimeout {
		errs = append(errs, errors.New("Switch.LockTTL must be >= Switch.CommitTimeout"))
	}

	if c.RateLimit.MaxLoginAttempts < 0 || c.RateLimit.MaxSwitchesPerWindow < 0 {
		errs = append(errs, errors.New("RateLimit maxima must be >= 0"))
	}
	if c.RateLimit.MaxLoginAttempts > 0 && c.RateLimit.LoginCooldown <= 0 {
		errs = append(errs, errors.New("RateLimit.LoginCooldown must be > 0 when login throttling is enabled"))
	}
	if c.RateLimit.MaxSwitchesPerWindow > 0 && c.RateLimit.SwitchWindow <= 0 {
		errs = append(errs, errors.New("RateLimit.SwitchWindow must be > 0 when switch throttling is enabled"))
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		errs = append(errs, errors.New("Audit.BufferSize must be > 0"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
