package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16

	// MinLength is the shortest accepted password, in bytes.
	MinLength = 10
	// DefaultMaxBytes bounds the input fed to Argon2 when Config.MaxBytes
	// is zero.
	DefaultMaxBytes = 1024

	algorithmID = "argon2id"
)

var (
	ErrInvalidConfig = errors.New("password: invalid argon2 configuration")
	ErrTooShort      = fmt.Errorf("password: must be at least %d bytes", MinLength)
	ErrTooLong       = errors.New("password: exceeds maximum length")
	ErrInvalidHash   = errors.New("password: invalid encoded hash")
)

// Config holds Argon2id cost parameters. Memory is in KiB.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	MaxBytes    int
}

// Argon2 hashes and verifies passwords. Safe for concurrent use.
type Argon2 struct {
	config Config
}

// params are the cost values recovered from an encoded hash.
type params struct {
	memory      uint32
	time        uint32
	parallelism uint8
}

type encodedHash struct {
	params
	salt []byte
	key  []byte
}

func NewArgon2(cfg Config) (*Argon2, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.MaxBytes == 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	return &Argon2{config: cfg}, nil
}

// Hash returns the PHC encoding of plain under the configured cost.
func (a *Argon2) Hash(plain string) (string, error) {
	if len(plain) < MinLength {
		return "", ErrTooShort
	}
	if len(plain) > a.config.MaxBytes {
		return "", ErrTooLong
	}

	salt := make([]byte, a.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("password: read salt: %w", err)
	}
	key := argon2.IDKey([]byte(plain), salt, a.config.Time, a.config.Memory, a.config.Parallelism, a.config.KeyLength)

	return encode(params{
		memory:      a.config.Memory,
		time:        a.config.Time,
		parallelism: a.config.Parallelism,
	}, salt, key), nil
}

// Verify reports whether plain matches encoded. The cost parameters are
// taken from encoded, so hashes made under older settings still verify.
func (a *Argon2) Verify(plain, encoded string) (bool, error) {
	if len(plain) > a.config.MaxBytes {
		return false, ErrTooLong
	}
	h, err := decode(encoded)
	if err != nil {
		return false, err
	}
	key := argon2.IDKey([]byte(plain), h.salt, h.time, h.memory, h.parallelism, uint32(len(h.key)))
	return subtle.ConstantTimeCompare(key, h.key) == 1, nil
}

// NeedsUpgrade reports whether encoded was produced with weaker cost
// parameters or a different key length than the current config.
func (a *Argon2) NeedsUpgrade(encoded string) (bool, error) {
	h, err := decode(encoded)
	if err != nil {
		return false, err
	}
	switch {
	case a.config.Memory > h.memory,
		a.config.Time > h.time,
		a.config.Parallelism > h.parallelism,
		a.config.KeyLength != uint32(len(h.key)):
		return true, nil
	}
	return false, nil
}

func encode(p params, salt, key []byte) string {
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID, argon2.Version,
		p.memory, p.time, p.parallelism,
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(key),
	)
}

// decode parses $argon2id$v=19$m=..,t=..,p=..$salt$key.
func decode(encoded string) (*encodedHash, error) {
	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" {
		return nil, fmt.Errorf("%w: expected 5 segments", ErrInvalidHash)
	}
	if fields[1] != algorithmID {
		return nil, fmt.Errorf("%w: algorithm %q", ErrInvalidHash, fields[1])
	}

	version, ok := strings.CutPrefix(fields[2], "v=")
	if !ok {
		return nil, fmt.Errorf("%w: missing version", ErrInvalidHash)
	}
	if v, err := strconv.Atoi(version); err != nil || v != argon2.Version {
		return nil, fmt.Errorf("%w: version %q", ErrInvalidHash, version)
	}

	p, err := decodeParams(fields[3])
	if err != nil {
		return nil, err
	}

	salt, err := base64.StdEncoding.DecodeString(fields[4])
	if err != nil || len(salt) < int(minSaltLength) {
		return nil, fmt.Errorf("%w: salt", ErrInvalidHash)
	}
	key, err := base64.StdEncoding.DecodeString(fields[5])
	if err != nil || len(key) == 0 {
		return nil, fmt.Errorf("%w: key", ErrInvalidHash)
	}

	return &encodedHash{params: p, salt: salt, key: key}, nil
}

func decodeParams(segment string) (params, error) {
	var (
		p    params
		seen = map[string]bool{}
	)
	pairs := strings.Split(segment, ",")
	if len(pairs) != 3 {
		return p, fmt.Errorf("%w: parameter count", ErrInvalidHash)
	}

	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok || seen[name] {
			return p, fmt.Errorf("%w: parameter %q", ErrInvalidHash, pair)
		}
		seen[name] = true

		switch name {
		case "m":
			v, err := strconv.ParseUint(raw, 10, 32)
			if err != nil || uint32(v) < minMemoryKB {
				return p, fmt.Errorf("%w: memory", ErrInvalidHash)
			}
			p.memory = uint32(v)
		case "t":
			v, err := strconv.ParseUint(raw, 10, 32)
			if err != nil || uint32(v) < minTimeCost {
				return p, fmt.Errorf("%w: time", ErrInvalidHash)
			}
			p.time = uint32(v)
		case "p":
			v, err := strconv.ParseUint(raw, 10, 8)
			if err != nil || uint8(v) < minParallelism {
				return p, fmt.Errorf("%w: parallelism", ErrInvalidHash)
			}
			p.parallelism = uint8(v)
		default:
			return p, fmt.Errorf("%w: unknown parameter %q", ErrInvalidHash, name)
		}
	}
	return p, nil
}

func (c Config) validate() error {
	switch {
	case c.Memory < minMemoryKB:
		return fmt.Errorf("%w: memory must be >= %d KiB", ErrInvalidConfig, minMemoryKB)
	case c.Time < minTimeCost:
		return fmt.Errorf("%w: time must be >= %d", ErrInvalidConfig, minTimeCost)
	case c.Parallelism < minParallelism:
		return fmt.Errorf("%w: parallelism must be >= %d", ErrInvalidConfig, minParallelism)
	case c.SaltLength < minSaltLength:
		return fmt.Errorf("%w: salt length must be >= %d", ErrInvalidConfig, minSaltLength)
	case c.KeyLength < minKeyLength:
		return fmt.Errorf("%w: key length must be >= %d", ErrInvalidConfig, minKeyLength)
	case c.MaxBytes != 0 && c.MaxBytes < MinLength:
		return fmt.Errorf("%w: max bytes must be >= %d", ErrInvalidConfig, MinLength)
	}
	return nil
}
