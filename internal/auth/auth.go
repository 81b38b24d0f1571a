// Package auth verifies merchant dashboard tokens.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
	ErrWrongStore   = errors.New("token not valid for this store")
)

// Claims carry the store a merchant token grants access to.
type Claims struct {
	StoreID string `json:"store_id"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 tokens signed with a shared secret.
type Verifier struct {
	secret []byte
}

// NewVerifier returns nil when secret is empty; a nil Verifier allows every
// request.
func NewVerifier(secret string) *Verifier {
	if secret == "" {
		return nil
	}
	return &Verifier{secret: []byte(secret)}
}

// Enabled reports whether tokens are checked at all.
func (v *Verifier) Enabled() bool { return v != nil }

// Issue signs a token for storeID valid for ttl.
func (v *Verifier) Issue(storeID, subject string, ttl time.Duration) (string, error) {
	if v == nil {
		return "", errors.New("auth disabled")
	}
	now := time.Now()
	claims := Claims{
		StoreID: storeID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Parse validates a raw token and returns its claims.
func (v *Verifier) Parse(raw string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.StoreID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Authorize checks an Authorization header value against storeID.
func (v *Verifier) Authorize(header, storeID string) (*Claims, error) {
	if v == nil {
		return nil, nil
	}
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, ErrMissingToken
	}
	claims, err := v.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if claims.StoreID != storeID {
		return nil, ErrWrongStore
	}
	return claims, nil
}
