package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Signer issues HS256 tokens accepted by TokenValidator with the same key.
type Signer struct {
	key []byte
	ttl time.Duration
}

func NewSigner(key string, ttl time.Duration) (Signer, error) {
	if key == "" {
		return Signer{}, errors.New("signing key is empty")
	}
	return Signer{key: []byte(key), ttl: ttl}, nil
}

func (s Signer) Issue(id, name string, now time.Time) (string, error) {
	claims := tokenClaims{
		DeviceID: id,
		Name:     name,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if s.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(s.ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}
