// Package auth provides the session token, password hashing, Google OAuth
// and request authentication primitives of the auth service.
//
// SESSION TOKEN CONTRACT:
// Resource services verify tokens on their own with the shared secret, so
// the payload shape is fixed:
//
//	{
//	  "sub":    42,                    // user id, a JSON number
//	  "email":  "alice@example.com",
//	  "name":   "alice",
//	  "userId": "42",                  // correlation id, backend specific
//	  "iss":    "expense-auth",
//	  "iat":    1700000000,
//	  "exp":    1700086400             // iat + 24h, never renewed
//	}
//
// Tokens are HS256 signed. There is no revocation list and no refresh:
// once issued a token is valid until exp.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL is the token lifetime when none is configured.
const DefaultTTL = 24 * time.Hour

var (
	// ErrTokenExpired means the signature checked out but exp has passed.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrTokenInvalid covers every other verification failure.
	ErrTokenInvalid = errors.New("auth: invalid token")
)

// CorrelationID is the userId claim. Older tokens carried it as a JSON
// number, so decoding accepts either form and always yields the string.
type CorrelationID string

// UnmarshalJSON accepts "abc", 42 and null.
func (c *CorrelationID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*c = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = CorrelationID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("userId must be a string or a number: %w", err)
	}
	*c = CorrelationID(n.String())
	return nil
}

// Claims is the signed payload.
//
// Sub shadows RegisteredClaims.Subject: encoding/json prefers the
// shallower field, so "sub" is (de)serialised as a number. GetSubject is
// overridden to match.
type Claims struct {
	Sub    int64         `json:"sub"`
	Email  string        `json:"email"`
	Name   string        `json:"name"`
	UserID CorrelationID `json:"userId"`
	jwt.RegisteredClaims
}

// GetSubject implements jwt.Claims.
func (c Claims) GetSubject() (string, error) {
	return strconv.FormatInt(c.Sub, 10), nil
}

// Payload is what the issuer puts into a token.
type Payload struct {
	Sub    int64
	Email  string
	Name   string
	UserID string
}

// TokenService signs and verifies session tokens.
type TokenService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService creates a TokenService. The secret must be at least 16
// characters; a ttl of zero means DefaultTTL.
func NewTokenService(secret, issuer string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if issuer == "" {
		return nil, errors.New("auth: JWT issuer must not be empty")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &TokenService{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}, nil
}

// TTL returns the configured token lifetime.
func (s *TokenService) TTL() time.Duration { return s.ttl }

// Generate signs a token for p that expires after the configured TTL.
func (s *TokenService) Generate(p Payload) (string, error) {
	return s.GenerateWithDuration(p, s.ttl)
}

// GenerateWithDuration signs a token with a custom lifetime. A negative d
// yields an already expired token, which the tests rely on.
func (s *TokenService) GenerateWithDuration(p Payload, d time.Duration) (string, error) {
	now := s.now()

	c := Claims{
		Sub:    p.Sub,
		Email:  p.Email,
		Name:   p.Name,
		UserID: CorrelationID(p.UserID),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate verifies signature, algorithm, issuer and expiry and returns
// the claims.
//
// The error wraps ErrTokenExpired or ErrTokenInvalid, plus the jwt
// library's own error for logs.
func (s *TokenService) Validate(tokenStr string) (*Claims, error) {
	var c Claims
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&c,
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %w", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}
	if c.Sub == 0 {
		return nil, fmt.Errorf("%w: token has no subject", ErrTokenInvalid)
	}
	return &c, nil
}
