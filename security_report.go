package roleAuth

import "time"

// SecurityReport summarizes the security-relevant settings an engine runs
// with. Servers log it at startup.
type SecurityReport struct {
	SigningAlgorithm string
	KeyID            string
	RotationKeys     int
	AccessTTL        time.Duration
	Leeway           time.Duration
	Argon2           PasswordConfigReport

	LoginThrottleActive  bool
	IPThrottleActive     bool
	SwitchThrottleActive bool
	SwitchCommitTimeout  time.Duration
	SwitchLockTTL        time.Duration

	AuditEnabled    bool
	AuditDropIfFull bool
}

type PasswordConfigReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}
	c := e.config
	loginThrottle := c.RateLimit.MaxLoginAttempts > 0 && c.RateLimit.LoginCooldown > 0

	return SecurityReport{
		SigningAlgorithm: c.JWT.SigningMethod,
		KeyID:            c.JWT.KeyID,
		RotationKeys:     len(c.JWT.VerifyKeys),
		AccessTTL:        c.JWT.AccessTTL,
		Leeway:           c.JWT.Leeway,
		Argon2: PasswordConfigReport{
			Memory:      c.Password.Memory,
			Time:        c.Password.Time,
			Parallelism: c.Password.Parallelism,
			SaltLength:  c.Password.SaltLength,
			KeyLength:   c.Password.KeyLength,
		},
		LoginThrottleActive:  loginThrottle,
		IPThrottleActive:     loginThrottle && c.RateLimit.EnableIPThrottle,
		SwitchThrottleActive: c.RateLimit.MaxSwitchesPerWindow > 0 && c.RateLimit.SwitchWindow > 0,
		SwitchCommitTimeout:  c.Switch.CommitTimeout,
		SwitchLockTTL:        c.Switch.LockTTL,
		AuditEnabled:         c.Audit.Enabled,
		AuditDropIfFull:      c.Audit.DropIfFull,
	}
}
