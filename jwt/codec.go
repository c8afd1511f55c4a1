package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/roleAuth/role"
	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the JWS algorithm used by the codec.
type SigningMethod string

const (
	MethodEd25519 SigningMethod = "ed25519"
	MethodHS256   SigningMethod = "hs256"
)

const (
	// DefaultLeeway is the clock skew tolerated when checking exp and iat.
	DefaultLeeway = 30 * time.Second
	maxLeeway     = 2 * time.Minute
)

var (
	ErrMalformedToken   = errors.New("jwt: malformed token")
	ErrExpiredToken     = errors.New("jwt: token expired")
	ErrSignatureInvalid = errors.New("jwt: signature invalid")
	ErrSigning          = errors.New("jwt: signing failed")
	ErrInvalidConfig    = errors.New("jwt: invalid configuration")
)

// Config configures a Codec. Leeway is the clock skew tolerance; it is
// applied to exp, nbf and iat during Decode.
type Config struct {
	TTL           time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
	// VerifyKeys holds previous public keys by kid during rotation.
	VerifyKeys map[string][]byte
	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time
}

// Claims is the decoded content of a session token.
type Claims struct {
	Subject      string
	GrantedRoles role.Set
	ActiveRole   role.Role
	SessionID    string
	IssuedAt     time.Time
	ExpiresAt    time.Time
}

type wireClaims struct {
	Roles []string `json:"roles"`
	Role  string   `json:"role"`
	jwt.RegisteredClaims
}

// Codec issues and decodes session tokens.
type Codec struct {
	cfg     Config
	method  jwt.SigningMethod
	signKey interface{}
	parser  *jwt.Parser
}

// NewCodec validates cfg and prepares signing and verification keys.
func NewCodec(cfg Config) (*Codec, error) {
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("%w: ttl must be positive", ErrInvalidConfig)
	}
	if cfg.Leeway < 0 || cfg.Leeway > maxLeeway {
		return nil, fmt.Errorf("%w: leeway must be within [0, %s]", ErrInvalidConfig, maxLeeway)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	c := &Codec{cfg: cfg}
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) < 32 {
			return nil, fmt.Errorf("%w: hs256 requires a key of at least 32 bytes", ErrInvalidConfig)
		}
		c.method = jwt.SigningMethodHS256
		c.signKey = cfg.PrivateKey
	case MethodEd25519, "":
		c.method = jwt.SigningMethodEdDSA
		if len(cfg.PrivateKey) > 0 {
			key, err := parseEdPrivateKey(cfg.PrivateKey)
			if err != nil {
				return nil, err
			}
			c.signKey = key
		}
		if len(cfg.PublicKey) > 0 {
			if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.PublicKey) == 0 && len(cfg.VerifyKeys) == 0 {
			return nil, fmt.Errorf("%w: ed25519 requires a public key or verify key set", ErrInvalidConfig)
		}
		for kid, key := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return nil, fmt.Errorf("%w: verify key set contains empty kid", ErrInvalidConfig)
			}
			if _, err := parseEdPublicKey(key); err != nil {
				return nil, fmt.Errorf("verify key %q: %w", kid, err)
			}
		}
	default:
		return nil, fmt.Errorf("%w: unsupported signing method %q", ErrInvalidConfig, cfg.SigningMethod)
	}
	if cfg.KeyID != "" && len(cfg.VerifyKeys) > 0 {
		if _, ok := cfg.VerifyKeys[cfg.KeyID]; !ok {
			return nil, fmt.Errorf("%w: KeyID is not present in VerifyKeys", ErrInvalidConfig)
		}
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithLeeway(cfg.Leeway),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(cfg.Now),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	c.parser = jwt.NewParser(opts...)

	return c, nil
}

// TTL returns the lifetime given to issued tokens.
func (c *Codec) TTL() time.Duration { return c.cfg.TTL }

// Issue signs a token for the given session. For a fixed clock the output
// is deterministic. Only key or configuration problems fail, with
// ErrSigning.
func (c *Codec) Issue(subject string, granted role.Set, active role.Role, sessionID string) (string, error) {
	if c.signKey == nil {
		return "", fmt.Errorf("%w: no private key configured", ErrSigning)
	}
	if subject == "" || sessionID == "" || !active.Valid() {
		return "", fmt.Errorf("%w: subject, session id and active role are required", ErrSigning)
	}

	now := c.cfg.Now()
	claims := wireClaims{
		Roles: granted.Names(),
		Role:  active.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        sessionID,
			Issuer:    c.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.cfg.TTL)),
		},
	}
	if c.cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{c.cfg.Audience}
	}

	token := jwt.NewWithClaims(c.method, claims)
	if c.cfg.KeyID != "" {
		token.Header["kid"] = c.cfg.KeyID
	}
	signed, err := token.SignedString(c.signKey)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigning, err)
	}
	return signed, nil
}

// Decode verifies the signature and time claims and returns the session
// claims. Unknown role names make the token malformed.
func (c *Codec) Decode(tokenStr string) (*Claims, error) {
	if tokenStr == "" {
		return nil, ErrMalformedToken
	}

	token, err := c.parser.ParseWithClaims(tokenStr, &wireClaims{}, c.keyFunc)
	if err != nil {
		return nil, classifyParseError(err)
	}
	wc, ok := token.Claims.(*wireClaims)
	if !ok || !token.Valid {
		return nil, ErrMalformedToken
	}
	if wc.Subject == "" || wc.ID == "" {
		return nil, fmt.Errorf("%w: missing sub or jti", ErrMalformedToken)
	}

	granted, err := role.ParseSet(wc.Roles)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	active, err := role.Parse(wc.Role)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if !granted.Has(active) {
		return nil, fmt.Errorf("%w: active role not granted", ErrMalformedToken)
	}

	out := &Claims{
		Subject:      wc.Subject,
		GrantedRoles: granted,
		ActiveRole:   active,
		SessionID:    wc.ID,
		ExpiresAt:    wc.ExpiresAt.Time,
	}
	if wc.IssuedAt != nil {
		out.IssuedAt = wc.IssuedAt.Time
	}
	return out, nil
}

func (c *Codec) keyFunc(t *jwt.Token) (interface{}, error) {
	if t.Method.Alg() != c.method.Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
	}

	kid, _ := t.Header["kid"].(string)
	if len(c.cfg.VerifyKeys) > 0 {
		if kid == "" {
			return nil, errors.New("missing kid")
		}
		key, ok := c.cfg.VerifyKeys[kid]
		if !ok {
			return nil, errors.New("unknown kid")
		}
		return c.verifyKey(key)
	}
	if c.cfg.KeyID != "" && kid != c.cfg.KeyID {
		return nil, errors.New("unknown kid")
	}
	if c.method == jwt.SigningMethodHS256 {
		return c.cfg.PrivateKey, nil
	}
	return c.verifyKey(c.cfg.PublicKey)
}

func (c *Codec) verifyKey(key []byte) (interface{}, error) {
	if c.method == jwt.SigningMethodHS256 {
		return key, nil
	}
	return parseEdPublicKey(key)
}

func classifyParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpiredToken, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid ed25519 private key", ErrInvalidConfig)
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: invalid ed25519 private key type", ErrInvalidConfig)
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid ed25519 public key", ErrInvalidConfig)
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: invalid ed25519 public key type", ErrInvalidConfig)
	}
	return edKey, nil
}
