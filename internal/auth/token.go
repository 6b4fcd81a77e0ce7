package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// UserClaims is the caller-supplied identity embedded in a signed token.
// Refresh tokens omit the role on purpose: role checks always go back to the
// user store.
type UserClaims struct {
	Email  string `json:"email"`
	UserID string `json:"user_id"`
	Role   string `json:"role,omitempty"`
}

// Claims is the full signed-token payload:
// {"user": {...}, "exp": <unix>, "jti": "<uuid>", "refresh": <bool>}.
type Claims struct {
	User    UserClaims `json:"user"`
	Refresh bool       `json:"refresh"`
	jwt.RegisteredClaims
}

// Expired reports whether the token's expiry instant has passed. Decode never
// checks this; usability policy belongs to the caller.
func (c *Claims) Expired(now time.Time) bool {
	if c.ExpiresAt == nil {
		return true
	}
	return !now.Before(c.ExpiresAt.Time)
}

// RemainingTTL returns how long the token stays naturally valid, clamped at
// zero. Used as the blocklist entry TTL on logout.
func (c *Claims) RemainingTTL(now time.Time) time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}
	if d := c.ExpiresAt.Time.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Codec issues and decodes access/refresh tokens with an HMAC-signed JWT.
type Codec struct {
	secret     []byte
	method     jwt.SigningMethod
	defaultTTL time.Duration
	now        func() time.Time
}

// NewCodec builds a codec from the configured secret and algorithm. The
// default TTL applies when Issue receives a non-positive ttl.
func NewCodec(secret, algorithm string, defaultTTL time.Duration) (*Codec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	var method jwt.SigningMethod
	switch algorithm {
	case "HS256":
		method = jwt.SigningMethodHS256
	case "HS384":
		method = jwt.SigningMethodHS384
	case "HS512":
		method = jwt.SigningMethodHS512
	default:
		return nil, fmt.Errorf("auth: unsupported signing algorithm %q", algorithm)
	}
	if defaultTTL <= 0 {
		defaultTTL = 15 * time.Minute
	}
	return &Codec{
		secret:     []byte(secret),
		method:     method,
		defaultTTL: defaultTTL,
		now:        time.Now,
	}, nil
}

// DefaultTTL asks Issue to apply the codec's configured default lifetime.
// A ttl of exactly zero is honored as-is and produces an already expired,
// still decodable token.
const DefaultTTL = time.Duration(-1)

// Issue signs a token for the given user claims. Each issuance gets a fresh
// jti, which later serves as the revocation key.
func (c *Codec) Issue(user UserClaims, ttl time.Duration, refresh bool) (string, error) {
	if ttl < 0 {
		ttl = c.defaultTTL
	}
	now := c.now().UTC()
	claims := Claims{
		User:    user,
		Refresh: refresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(c.method, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Decode verifies the signature and structural validity of a token. It does
// not reject on expiry: the access gate and the refresh flow apply their own
// expiry policy against the decoded exp claim.
func (c *Codec) Decode(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != c.method.Alg() {
			return nil, ErrInvalidToken
		}
		return c.secret, nil
	}, jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.ExpiresAt == nil || strings.TrimSpace(claims.ID) == "" {
		return nil, ErrInvalidToken
	}
	if claims.User.Email == "" && claims.User.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
