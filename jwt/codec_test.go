package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/roleAuth/role"
	gjwt "github.com/golang-jwt/jwt/v5"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newEdKeys(t testing.TB) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return pub, priv
}

func newTestCodec(t testing.TB, mutate func(*Config)) *Codec {
	t.Helper()
	pub, priv := newEdKeys(t)
	cfg := Config{
		TTL:           15 * time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Issuer:        "roleauth",
		Audience:      "api",
		Leeway:        DefaultLeeway,
		Now:           func() time.Time { return fixedNow },
	}
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := NewCodec(cfg)
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	return c
}

func TestIssueDecodeCarriesSessionClaims(t *testing.T) {
	c := newTestCodec(t, nil)
	granted := role.NewSet(role.PM, role.BA)

	token, err := c.Issue("u@x.com", granted, role.BA, "j2")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := c.Decode(token)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if claims.Subject != "u@x.com" || claims.SessionID != "j2" {
		t.Fatalf("unexpected identity claims: %+v", claims)
	}
	if claims.ActiveRole != role.BA || claims.GrantedRoles != granted {
		t.Fatalf("unexpected role claims: active=%v granted=%v", claims.ActiveRole, claims.GrantedRoles.Names())
	}
	if !claims.ExpiresAt.Equal(fixedNow.Add(15 * time.Minute)) {
		t.Fatalf("expiry = %v", claims.ExpiresAt)
	}
}

func TestIssueIsDeterministicForFixedClock(t *testing.T) {
	c := newTestCodec(t, nil)
	a, err := c.Issue("u@x.com", role.NewSet(role.PM), role.PM, "j1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	b, err := c.Issue("u@x.com", role.NewSet(role.PM), role.PM, "j1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if a != b {
		t.Fatal("expected identical tokens for identical inputs and clock")
	}
}

func TestDecodeExpiredRespectsLeeway(t *testing.T) {
	now := fixedNow
	c := newTestCodec(t, func(cfg *Config) {
		cfg.TTL = time.Minute
		cfg.Leeway = 10 * time.Second
		cfg.Now = func() time.Time { return now }
	})

	token, err := c.Issue("u@x.com", role.NewSet(role.PM), role.PM, "j1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	now = fixedNow.Add(time.Minute + 5*time.Second)
	if _, err := c.Decode(token); err != nil {
		t.Fatalf("expected token within leeway to decode: %v", err)
	}

	now = fixedNow.Add(time.Minute + 11*time.Second)
	if _, err := c.Decode(token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestDecodeRejectsTamperedSignature(t *testing.T) {
	c := newTestCodec(t, nil)
	token, err := c.Issue("u@x.com", role.NewSet(role.PM), role.PM, "j1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	other := newTestCodec(t, nil)
	if _, err := other.Decode(token); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid from foreign key, got %v", err)
	}

	parts := strings.Split(token, ".")
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)
	if _, err := c.Decode(tampered); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid, got %v", err)
	}
}

func TestDecodeRejectsWrongAlgorithm(t *testing.T) {
	c := newTestCodec(t, nil)
	claims := wireClaims{
		Roles: []string{"PM"},
		Role:  "PM",
		RegisteredClaims: gjwt.RegisteredClaims{
			Subject:   "u@x.com",
			ID:        "j1",
			Issuer:    "roleauth",
			Audience:  gjwt.ClaimStrings{"api"},
			IssuedAt:  gjwt.NewNumericDate(fixedNow),
			ExpiresAt: gjwt.NewNumericDate(fixedNow.Add(time.Minute)),
		},
	}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString([]byte("secret-secret-secret-secret-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := c.Decode(token); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid, got %v", err)
	}
}

func TestDecodeMalformedInputs(t *testing.T) {
	c := newTestCodec(t, nil)
	for _, in := range []string{"", "abc", "a.b.c", "....."} {
		if _, err := c.Decode(in); !errors.Is(err, ErrMalformedToken) {
			t.Fatalf("Decode(%q) = %v, want ErrMalformedToken", in, err)
		}
	}
}

func TestDecodeRejectsUnknownOrUngrantedRole(t *testing.T) {
	_, priv := newEdKeys(t)
	c := newTestCodec(t, func(cfg *Config) {
		cfg.PrivateKey = priv
		cfg.PublicKey = priv.Public().(ed25519.PublicKey)
	})

	sign := func(roles []string, active string) string {
		claims := wireClaims{
			Roles: roles,
			Role:  active,
			RegisteredClaims: gjwt.RegisteredClaims{
				Subject:   "u@x.com",
				ID:        "j1",
				Issuer:    "roleauth",
				Audience:  gjwt.ClaimStrings{"api"},
				IssuedAt:  gjwt.NewNumericDate(fixedNow),
				ExpiresAt: gjwt.NewNumericDate(fixedNow.Add(time.Minute)),
			},
		}
		s, err := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, claims).SignedString(priv)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return s
	}

	if _, err := c.Decode(sign([]string{"PM", "manager"}, "PM")); !errors.Is(err, ErrMalformedToken) {
		t.Fatalf("lowercase role name: %v", err)
	}
	if _, err := c.Decode(sign([]string{"PM"}, "BA")); !errors.Is(err, ErrMalformedToken) {
		t.Fatalf("active role outside granted set: %v", err)
	}
	if _, err := c.Decode(sign([]string{"PM", "BA"}, "BA")); err != nil {
		t.Fatalf("valid claims should decode: %v", err)
	}
}

func TestKeyRotationWithVerifyKeys(t *testing.T) {
	oldPub, oldPriv := newEdKeys(t)
	newPub, newPriv := newEdKeys(t)

	oldCodec := newTestCodec(t, func(cfg *Config) {
		cfg.PrivateKey, cfg.PublicKey, cfg.KeyID = oldPriv, oldPub, "k1"
	})
	rotated := newTestCodec(t, func(cfg *Config) {
		cfg.PrivateKey, cfg.PublicKey, cfg.KeyID = newPriv, newPub, "k2"
		cfg.VerifyKeys = map[string][]byte{"k1": oldPub, "k2": newPub}
	})

	token, err := oldCodec.Issue("u@x.com", role.NewSet(role.PM), role.PM, "j1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := rotated.Decode(token); err != nil {
		t.Fatalf("rotated codec should accept previous kid: %v", err)
	}
	if _, err := oldCodec.Decode(mustIssue(t, rotated)); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("old codec must reject unknown kid, got %v", err)
	}
}

func mustIssue(t *testing.T, c *Codec) string {
	t.Helper()
	token, err := c.Issue("u@x.com", role.NewSet(role.PM), role.PM, "j9")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return token
}

func TestIssueFailsWithSigningErrorWithoutPrivateKey(t *testing.T) {
	pub, _ := newEdKeys(t)
	c, err := NewCodec(Config{TTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub})
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	if _, err := c.Issue("u@x.com", role.NewSet(role.PM), role.PM, "j1"); !errors.Is(err, ErrSigning) {
		t.Fatalf("expected ErrSigning, got %v", err)
	}
}

func TestNewCodecValidatesConfig(t *testing.T) {
	pub, _ := newEdKeys(t)
	cases := []Config{
		{TTL: 0, PublicKey: pub},
		{TTL: time.Minute, PublicKey: pub, Leeway: -time.Second},
		{TTL: time.Minute, PublicKey: pub, Leeway: 3 * time.Minute},
		{TTL: time.Minute},
		{TTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("short")},
		{TTL: time.Minute, SigningMethod: "rs256", PublicKey: pub},
		{TTL: time.Minute, PublicKey: pub, KeyID: "k3", VerifyKeys: map[string][]byte{"k1": pub}},
	}
	for i, cfg := range cases {
		if _, err := NewCodec(cfg); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("case %d: expected ErrInvalidConfig, got %v", i, err)
		}
	}
}

func TestHS256RoundTrip(t *testing.T) {
	c := newTestCodec(t, func(cfg *Config) {
		cfg.SigningMethod = MethodHS256
		cfg.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
		cfg.PublicKey = nil
	})
	token, err := c.Issue("u@x.com", role.NewSet(role.Admin), role.Admin, "j1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := c.Decode(token)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if claims.ActiveRole != role.Admin {
		t.Fatalf("active role = %v", claims.ActiveRole)
	}
}

func FuzzDecode(f *testing.F) {
	c := newTestCodec(f, nil)
	valid, err := c.Issue("u@x.com", role.NewSet(role.PM, role.BA), role.PM, "j1")
	if err != nil {
		f.Fatal(err)
	}
	f.Add(valid)
	f.Add("")
	f.Add("a.b.c")
	f.Add("eyJhbGciOiJub25lIn0.e30.")

	f.Fuzz(func(t *testing.T, token string) {
		claims, err := c.Decode(token)
		if err != nil {
			return
		}
		if !claims.GrantedRoles.Has(claims.ActiveRole) {
			t.Fatalf("decoded claims violate granted/active invariant: %+v", claims)
		}
	})
}
