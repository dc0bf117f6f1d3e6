package jwt

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/rhuss/polls/pkg/auth"
)

var (
	testSecret = []byte("0123456789abcdef0123456789abcdef")
	testT0     = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

// testKeyPEM is a 2048-bit RSA key shared by the RS* tests.
var testKey *rsa.PrivateKey

func init() {
	var err error
	testKey, err = rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(fmt.Sprintf("generating test RSA key: %v", err))
	}
}

func keyPEM(k *rsa.PrivateKey) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(k)})
}

func newHMACCodec(t *testing.T, ttl time.Duration) *Codec {
	t.Helper()
	c, err := NewCodec(Config{Algorithm: "HS256", Secret: testSecret, TTL: ttl})
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	return c
}

func alice() *auth.Principal {
	return auth.NewPrincipal("u-alice", "alice", "Alice", []string{"USER"})
}

// signRaw signs arbitrary claims with the test secret.
func signRaw(t *testing.T, method jwtlib.SigningMethod, key any, claims jwtlib.MapClaims) string {
	t.Helper()
	s, err := jwtlib.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("signing: %v", err)
	}
	return s
}

func validClaims() jwtlib.MapClaims {
	return jwtlib.MapClaims{
		"sub": "u-alice",
		"iat": testT0.Unix(),
		"exp": testT0.Add(time.Hour).Unix(),
	}
}

func wantKind(t *testing.T, err, kind error) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %v, got nil", kind)
	}
	var te *auth.TokenError
	if !errors.As(err, &te) {
		t.Fatalf("expected *auth.TokenError, got %T: %v", err, err)
	}
	if !errors.Is(err, kind) {
		t.Fatalf("error = %v, want kind %v", err, kind)
	}
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	c := newHMACCodec(t, time.Hour)

	token, issued, err := c.Issue(alice(), testT0)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if strings.Count(token, ".") != 2 {
		t.Fatalf("token %q does not have three segments", token)
	}

	got, err := c.Verify(token, testT0.Add(time.Minute))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got.Subject != "u-alice" {
		t.Errorf("Subject = %q, want u-alice", got.Subject)
	}
	if !got.IssuedAt.Equal(testT0) {
		t.Errorf("IssuedAt = %v, want %v", got.IssuedAt, testT0)
	}
	if !got.ExpiresAt.Equal(testT0.Add(time.Hour)) {
		t.Errorf("ExpiresAt = %v, want %v", got.ExpiresAt, testT0.Add(time.Hour))
	}
	if got.ID == "" || got.ID != issued.ID {
		t.Errorf("ID = %q, want %q", got.ID, issued.ID)
	}
}

func TestIssueTruncatesToSeconds(t *testing.T) {
	c := newHMACCodec(t, time.Hour)
	now := testT0.Add(750 * time.Millisecond)

	token, claims, err := c.Issue(alice(), now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !claims.IssuedAt.Equal(testT0) {
		t.Errorf("IssuedAt = %v, want %v", claims.IssuedAt, testT0)
	}
	if _, err := c.Verify(token, now); err != nil {
		t.Errorf("Verify at issue instant: %v", err)
	}
}

func TestIssueRequiresSubject(t *testing.T) {
	c := newHMACCodec(t, time.Hour)
	if _, _, err := c.Issue(nil, testT0); err == nil {
		t.Error("expected error for nil principal")
	}
	if _, _, err := c.Issue(auth.NewPrincipal("", "x", "x", nil), testT0); err == nil {
		t.Error("expected error for empty subject")
	}
}

func TestExpiryBoundary(t *testing.T) {
	c := newHMACCodec(t, 3600*time.Second)
	token, _, err := c.Issue(alice(), testT0)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	tests := []struct {
		name    string
		offset  time.Duration
		wantErr error
	}{
		{"just before expiry", 3599 * time.Second, nil},
		{"exactly at expiry", 3600 * time.Second, auth.ErrExpired},
		{"after expiry", 3601 * time.Second, auth.ErrExpired},
		{"long after expiry", 30 * 24 * time.Hour, auth.ErrExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Verify(token, testT0.Add(tt.offset))
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Verify: %v", err)
				}
				return
			}
			wantKind(t, err, tt.wantErr)
		})
	}
}

func TestSignatureTamperEveryPosition(t *testing.T) {
	c := newHMACCodec(t, time.Hour)
	token, _, err := c.Issue(alice(), testT0)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	sigStart := strings.LastIndex(token, ".") + 1
	for i := sigStart; i < len(token); i++ {
		replacement := byte('A')
		if token[i] == 'A' {
			replacement = 'B'
		}
		tampered := token[:i] + string(replacement) + token[i+1:]

		_, err := c.Verify(tampered, testT0)
		if !errors.Is(err, auth.ErrBadSignature) {
			t.Fatalf("position %d: error = %v, want bad signature", i-sigStart, err)
		}
	}
}

func TestPayloadTamper(t *testing.T) {
	c := newHMACCodec(t, time.Hour)
	token, _, err := c.Issue(alice(), testT0)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	parts := strings.Split(token, ".")

	forged := validClaims()
	forged["sub"] = "u-admin"
	forgedPayload := strings.Split(signRaw(t, jwtlib.SigningMethodHS256, []byte("another-secret-another-secret-xx"), forged), ".")[1]

	_, err = c.Verify(parts[0]+"."+forgedPayload+"."+parts[2], testT0)
	wantKind(t, err, auth.ErrBadSignature)
}

func TestWrongSecret(t *testing.T) {
	c := newHMACCodec(t, time.Hour)
	token := signRaw(t, jwtlib.SigningMethodHS256, []byte("another-secret-another-secret-xx"), validClaims())

	_, err := c.Verify(token, testT0)
	wantKind(t, err, auth.ErrBadSignature)
}

func TestAlgorithmConfusion(t *testing.T) {
	hs := newHMACCodec(t, time.Hour)
	rs, err := NewCodec(Config{Algorithm: "RS256", PrivateKeyPEM: keyPEM(testKey), TTL: time.Hour})
	if err != nil {
		t.Fatalf("NewCodec RS256: %v", err)
	}

	noneToken := signRaw(t, jwtlib.SigningMethodNone, jwtlib.UnsafeAllowNoneSignatureType, validClaims())
	hs512Token := signRaw(t, jwtlib.SigningMethodHS512, append(append([]byte{}, testSecret...), testSecret...), validClaims())
	rsToken := signRaw(t, jwtlib.SigningMethodRS256, testKey, validClaims())
	hsToken := signRaw(t, jwtlib.SigningMethodHS256, testSecret, validClaims())

	// HS256 token signed with the RSA public key bytes as the HMAC secret.
	pubDER, err := x509.MarshalPKIXPublicKey(&testKey.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	confused := signRaw(t, jwtlib.SigningMethodHS256, pubPEM, validClaims())

	tests := []struct {
		name  string
		codec *Codec
		token string
	}{
		{"none against HS256", hs, noneToken},
		{"HS512 against HS256", hs, hs512Token},
		{"RS256 against HS256", hs, rsToken},
		{"none against RS256", rs, noneToken},
		{"HS256 against RS256", rs, hsToken},
		{"HS256 keyed with public key against RS256", rs, confused},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.codec.Verify(tt.token, testT0)
			wantKind(t, err, auth.ErrBadSignature)
		})
	}
}

func TestUnknownAlgorithmHeader(t *testing.T) {
	c := newHMACCodec(t, time.Hour)
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"XX999","typ":"JWT"}`))
	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"u-alice","iat":1,"exp":9999999999}`))

	_, err := c.Verify(header+"."+payload+".c2ln", testT0)
	wantKind(t, err, auth.ErrBadSignature)
}

func TestMalformedTokens(t *testing.T) {
	c := newHMACCodec(t, time.Hour)
	enc := base64.RawURLEncoding.EncodeToString
	header := enc([]byte(`{"alg":"HS256","typ":"JWT"}`))

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-token"},
		{"two segments", header + "." + enc([]byte(`{}`))},
		{"four segments", header + ".a.b.c"},
		{"bad header encoding", "!!!." + enc([]byte(`{}`)) + ".sig"},
		{"header not json", enc([]byte("nope")) + "." + enc([]byte(`{}`)) + ".sig"},
		{"payload not json", header + "." + enc([]byte("nope")) + ".sig"},
		{"padded payload", header + "." + base64.URLEncoding.EncodeToString([]byte(`{"sub":"x"}`)) + ".sig"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Verify(tt.token, testT0)
			wantKind(t, err, auth.ErrMalformed)
		})
	}
}

func TestClaimSetValidation(t *testing.T) {
	c := newHMACCodec(t, time.Hour)

	tests := []struct {
		name   string
		mutate func(jwtlib.MapClaims)
	}{
		{"unknown claim", func(m jwtlib.MapClaims) { m["role"] = "ADMIN" }},
		{"audience claim", func(m jwtlib.MapClaims) { m["aud"] = "polls" }},
		{"missing sub", func(m jwtlib.MapClaims) { delete(m, "sub") }},
		{"empty sub", func(m jwtlib.MapClaims) { m["sub"] = "" }},
		{"numeric sub", func(m jwtlib.MapClaims) { m["sub"] = 42 }},
		{"missing iat", func(m jwtlib.MapClaims) { delete(m, "iat") }},
		{"missing exp", func(m jwtlib.MapClaims) { delete(m, "exp") }},
		{"string exp", func(m jwtlib.MapClaims) { m["exp"] = "tomorrow" }},
		{"numeric jti", func(m jwtlib.MapClaims) { m["jti"] = 7 }},
		{"iat in the future", func(m jwtlib.MapClaims) { m["iat"] = testT0.Add(time.Minute).Unix() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mc := validClaims()
			tt.mutate(mc)
			token := signRaw(t, jwtlib.SigningMethodHS256, testSecret, mc)

			_, err := c.Verify(token, testT0)
			wantKind(t, err, auth.ErrMalformed)
		})
	}
}

func TestIssuer(t *testing.T) {
	c, err := NewCodec(Config{Algorithm: "HS256", Secret: testSecret, Issuer: "polls", TTL: time.Hour})
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	token, _, err := c.Issue(alice(), testT0)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := c.Verify(token, testT0)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Issuer != "polls" {
		t.Errorf("Issuer = %q, want polls", claims.Issuer)
	}

	wrong := validClaims()
	wrong["iss"] = "someone-else"
	_, err = c.Verify(signRaw(t, jwtlib.SigningMethodHS256, testSecret, wrong), testT0)
	wantKind(t, err, auth.ErrMalformed)

	_, err = c.Verify(signRaw(t, jwtlib.SigningMethodHS256, testSecret, validClaims()), testT0)
	wantKind(t, err, auth.ErrMalformed)
}

func TestRS256RoundTrip(t *testing.T) {
	c, err := NewCodec(Config{Algorithm: "RS256", PrivateKeyPEM: keyPEM(testKey), TTL: time.Hour})
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	if c.Algorithm() != "RS256" {
		t.Errorf("Algorithm() = %q", c.Algorithm())
	}

	token, _, err := c.Issue(alice(), testT0)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := c.Verify(token, testT0.Add(time.Minute))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Subject != "u-alice" {
		t.Errorf("Subject = %q", claims.Subject)
	}

	other, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	foreign := signRaw(t, jwtlib.SigningMethodRS256, other, validClaims())
	_, err = c.Verify(foreign, testT0)
	wantKind(t, err, auth.ErrBadSignature)
}

func TestNewCodecValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"short HS256 secret", Config{Algorithm: "HS256", Secret: []byte("short")}},
		{"HS512 with 32 byte secret", Config{Algorithm: "HS512", Secret: testSecret}},
		{"RS256 without key", Config{Algorithm: "RS256"}},
		{"RS256 with garbage key", Config{Algorithm: "RS256", PrivateKeyPEM: []byte("not pem")}},
		{"unsupported algorithm", Config{Algorithm: "ES256", Secret: testSecret}},
		{"none algorithm", Config{Algorithm: "none", Secret: testSecret}},
		{"negative ttl", Config{Algorithm: "HS256", Secret: testSecret, TTL: -time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewCodec(tt.cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNewCodecDefaults(t *testing.T) {
	c, err := NewCodec(Config{Secret: testSecret})
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	if c.Algorithm() != "HS256" {
		t.Errorf("Algorithm() = %q, want HS256", c.Algorithm())
	}
	if c.TTL() != DefaultTTL {
		t.Errorf("TTL() = %v, want %v", c.TTL(), DefaultTTL)
	}
}
