package identity

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func TestVerifyHS256(t *testing.T) {
	v := NewHMACVerifier(testSecret, "https://issuer.example", "reportfox")

	token, err := MintHS256(testSecret, Identity{UID: "uid-1", Email: " Alice@Example.com "}, "https://issuer.example", "reportfox", time.Minute)
	require.NoError(t, err)

	id, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "uid-1", id.UID)
	assert.Equal(t, "alice@example.com", id.Email)
}

func TestVerifyRejects(t *testing.T) {
	v := NewHMACVerifier(testSecret, "https://issuer.example", "reportfox")

	wrongSecret, _ := MintHS256("other", Identity{UID: "u"}, "https://issuer.example", "reportfox", time.Minute)
	expired, _ := MintHS256(testSecret, Identity{UID: "u"}, "https://issuer.example", "reportfox", -time.Hour)
	wrongIssuer, _ := MintHS256(testSecret, Identity{UID: "u"}, "https://evil.example", "reportfox", time.Minute)
	wrongAudience, _ := MintHS256(testSecret, Identity{UID: "u"}, "https://issuer.example", "other-app", time.Minute)
	noSubject, _ := MintHS256(testSecret, Identity{}, "https://issuer.example", "reportfox", time.Minute)

	tests := map[string]string{
		"empty":          "",
		"garbage":        "not.a.token",
		"wrong secret":   wrongSecret,
		"expired":        expired,
		"wrong issuer":   wrongIssuer,
		"wrong audience": wrongAudience,
		"no subject":     noSubject,
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestVerifyRS256(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	v := NewRSAVerifier(&key.PublicKey, "", "")

	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, Claims{
		Email: "b@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "uid-2",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}).SignedString(key)
	require.NoError(t, err)

	id, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "uid-2", id.UID)

	// An HS256 token must not be accepted by an RS256 verifier.
	hs, _ := MintHS256(testSecret, Identity{UID: "uid-2"}, "", "", time.Minute)
	_, err = v.Verify(hs)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNilVerifier(t *testing.T) {
	var v *Verifier
	_, err := v.Verify("x")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "abc", BearerToken("bearer  abc "))
	assert.Empty(t, BearerToken("Basic abc"))
	assert.Empty(t, BearerToken(""))
}
