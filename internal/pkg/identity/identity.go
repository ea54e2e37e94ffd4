package identity

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ManuelReschke/ReportFox/internal/pkg/env"
)

var (
	ErrNotConfigured = errors.New("identity: no verification key configured")
	ErrInvalidToken  = errors.New("identity: invalid token")
)

// Identity is a verified caller as asserted by the identity provider.
type Identity struct {
	UID   string
	Email string
	Name  string
}

// Claims follows the Firebase ID token layout: the subject is the uid.
type Claims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	jwt.RegisteredClaims
}

// Verifier checks bearer tokens issued by the identity provider.
type Verifier struct {
	method   jwt.SigningMethod
	key      any
	issuer   string
	audience string
	leeway   time.Duration
}

func NewHMACVerifier(secret, issuer, audience string) *Verifier {
	return &Verifier{
		method:   jwt.SigningMethodHS256,
		key:      []byte(secret),
		issuer:   issuer,
		audience: audience,
		leeway:   30 * time.Second,
	}
}

func NewRSAVerifier(pub *rsa.PublicKey, issuer, audience string) *Verifier {
	return &Verifier{
		method:   jwt.SigningMethodRS256,
		key:      pub,
		issuer:   issuer,
		audience: audience,
		leeway:   30 * time.Second,
	}
}

// NewVerifierFromEnv builds a verifier from IDENTITY_PUBLIC_KEY_FILE (RS256)
// or IDENTITY_JWT_SECRET (HS256). The public key wins when both are set.
func NewVerifierFromEnv() (*Verifier, error) {
	issuer := env.GetEnv("IDENTITY_ISSUER", "")
	audience := env.GetEnv("IDENTITY_AUDIENCE", "")

	if path := env.GetEnv("IDENTITY_PUBLIC_KEY_FILE", ""); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read identity public key: %w", err)
		}
		pub, err := jwt.ParseRSAPublicKeyFromPEM(data)
		if err != nil {
			return nil, fmt.Errorf("parse identity public key: %w", err)
		}
		return NewRSAVerifier(pub, issuer, audience), nil
	}
	if secret := env.GetEnv("IDENTITY_JWT_SECRET", ""); secret != "" {
		return NewHMACVerifier(secret, issuer, audience), nil
	}
	return nil, ErrNotConfigured
}

func (v *Verifier) parserOptions() []jwt.ParserOption {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{v.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	return opts
}

// Verify parses and validates a raw token.
func (v *Verifier) Verify(raw string) (*Identity, error) {
	if v == nil {
		return nil, ErrNotConfigured
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidToken
	}

	t, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return v.key, nil
	}, v.parserOptions()...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	c, ok := t.Claims.(*Claims)
	if !ok || !t.Valid {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(c.Subject) == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return &Identity{
		UID:   c.Subject,
		Email: strings.ToLower(strings.TrimSpace(c.Email)),
		Name:  strings.TrimSpace(c.Name),
	}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

// MintHS256 signs a token for local development and tests.
func MintHS256(secret string, id Identity, issuer, audience string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: id.Email,
		Name:  id.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UID,
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	if audience != "" {
		claims.Audience = jwt.ClaimStrings{audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
