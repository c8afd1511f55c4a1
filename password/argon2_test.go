package password

import (
	"errors"
	"strings"
	"testing"
)

func fastConfig() Config {
	return Config{
		Memory:      minMemoryKB,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func mustHasher(t *testing.T, cfg Config) *Argon2 {
	t.Helper()
	h, err := NewArgon2(cfg)
	if err != nil {
		t.Fatalf("NewArgon2: %v", err)
	}
	return h
}

func TestHashThenVerify(t *testing.T) {
	h := mustHasher(t, fastConfig())

	encoded, err := h.Hash("correct horse battery")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !strings.HasPrefix(encoded, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected encoding: %s", encoded)
	}

	ok, err := h.Verify("correct horse battery", encoded)
	if err != nil || !ok {
		t.Fatalf("Verify(correct) = %v, %v", ok, err)
	}
	ok, err = h.Verify("correct horse battery!", encoded)
	if err != nil || ok {
		t.Fatalf("Verify(wrong) = %v, %v", ok, err)
	}
}

func TestHashesAreSalted(t *testing.T) {
	h := mustHasher(t, fastConfig())
	a, _ := h.Hash("same-password")
	b, _ := h.Hash("same-password")
	if a == b {
		t.Fatal("two hashes of the same password must differ")
	}
}

func TestVerifyUsesStoredParameters(t *testing.T) {
	older := mustHasher(t, fastConfig())
	encoded, err := older.Hash("migrated-password")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	cfg := fastConfig()
	cfg.Time = 2
	cfg.Memory = 2 * minMemoryKB
	current := mustHasher(t, cfg)

	ok, err := current.Verify("migrated-password", encoded)
	if err != nil || !ok {
		t.Fatalf("Verify = %v, %v", ok, err)
	}

	upgrade, err := current.NeedsUpgrade(encoded)
	if err != nil || !upgrade {
		t.Fatalf("NeedsUpgrade = %v, %v", upgrade, err)
	}
	upgrade, err = older.NeedsUpgrade(encoded)
	if err != nil || upgrade {
		t.Fatalf("NeedsUpgrade(same config) = %v, %v", upgrade, err)
	}
}

func TestNeedsUpgradeOnKeyLength(t *testing.T) {
	encoded, _ := mustHasher(t, fastConfig()).Hash("some-password")

	cfg := fastConfig()
	cfg.KeyLength = 64
	upgrade, err := mustHasher(t, cfg).NeedsUpgrade(encoded)
	if err != nil || !upgrade {
		t.Fatalf("NeedsUpgrade = %v, %v", upgrade, err)
	}
}

func TestPasswordLengthBounds(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxBytes = 64
	h := mustHasher(t, cfg)

	tests := []struct {
		name  string
		plain string
		want  error
	}{
		{"empty", "", ErrTooShort},
		{"nine bytes", "123456789", ErrTooShort},
		{"min length", "1234567890", nil},
		{"at max", strings.Repeat("b", 64), nil},
		{"over max", strings.Repeat("a", 65), ErrTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.Hash(tt.plain)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Hash err = %v, want %v", err, tt.want)
			}
		})
	}

	encoded, _ := h.Hash("valid-password-123")
	if _, err := h.Verify(strings.Repeat("c", 65), encoded); !errors.Is(err, ErrTooLong) {
		t.Fatalf("Verify(long) err = %v", err)
	}
}

func TestDefaultMaxBytesApplied(t *testing.T) {
	h := mustHasher(t, fastConfig())
	if _, err := h.Hash(strings.Repeat("d", DefaultMaxBytes+1)); !errors.Is(err, ErrTooLong) {
		t.Fatalf("expected ErrTooLong, got %v", err)
	}
}

func TestVerifyRejectsMalformedHashes(t *testing.T) {
	h := mustHasher(t, fastConfig())
	valid, _ := h.Hash("valid-password-123")
	parts := strings.Split(valid, "$")

	tests := map[string]string{
		"empty":            "",
		"bcrypt":           "$2a$10$abcdefghijklmnopqrstuv",
		"wrong version":    strings.Replace(valid, "v=19", "v=16", 1),
		"missing version":  strings.Replace(valid, "v=19", "19", 1),
		"weak memory":      strings.Replace(valid, "m=8192", "m=1024", 1),
		"unknown param":    strings.Replace(valid, "p=1", "x=1", 1),
		"duplicate param":  strings.Replace(valid, "p=1", "t=1", 1),
		"short salt":       "$" + strings.Join([]string{parts[1], parts[2], parts[3], "YWJj", parts[5]}, "$"),
		"bad key encoding": "$" + strings.Join([]string{parts[1], parts[2], parts[3], parts[4], "!!"}, "$"),
	}
	for name, encoded := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := h.Verify("valid-password-123", encoded); !errors.Is(err, ErrInvalidHash) {
				t.Fatalf("expected ErrInvalidHash, got %v", err)
			}
		})
	}
}

func TestNewArgon2RejectsWeakConfig(t *testing.T) {
	mutations := map[string]func(*Config){
		"memory":      func(c *Config) { c.Memory = 1024 },
		"time":        func(c *Config) { c.Time = 0 },
		"parallelism": func(c *Config) { c.Parallelism = 0 },
		"salt":        func(c *Config) { c.SaltLength = 8 },
		"key":         func(c *Config) { c.KeyLength = 8 },
		"max bytes":   func(c *Config) { c.MaxBytes = 4 },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			cfg := fastConfig()
			mutate(&cfg)
			if _, err := NewArgon2(cfg); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}
