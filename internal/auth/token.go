package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	maxTokenLen = 20 * 1024

	DefaultTokenLeeway = 60 * time.Second
)

// tokenClaims is the wire form of the payload. The device id travels as "id",
// not the registered "jti".
type tokenClaims struct {
	DeviceID string `json:"id,omitempty"`
	Name     string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// TokenValidator verifies compact HS256 tokens: header.payload.signature.
type TokenValidator struct {
	key    []byte
	leeway time.Duration
}

func NewTokenValidator(key string, leeway time.Duration) TokenValidator {
	if leeway < 0 {
		leeway = DefaultTokenLeeway
	}
	return TokenValidator{key: []byte(key), leeway: leeway}
}

// Claims is the subset of the token payload the relay looks at.
type Claims struct {
	ID   string
	Name string
	Exp  *int64
	Nbf  *int64
}

func (v TokenValidator) Validate(token string, now time.Time) error {
	_, err := v.Parse(token, now)
	return err
}

// Parse verifies token at now and returns its claims.
func (v TokenValidator) Parse(token string, now time.Time) (Claims, error) {
	if len(v.key) == 0 || token == "" || len(token) > maxTokenLen {
		return Claims{}, ErrInvalidCredentials
	}

	p := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithStrictDecoding(),
	)
	var tc tokenClaims
	parsed, err := p.ParseWithClaims(token, &tc, func(*jwt.Token) (any, error) {
		return v.key, nil
	})
	if err != nil {
		// A well-formed header naming another algorithm is a token we do not
		// speak, everything else is a bad credential.
		if parsed != nil {
			if alg, ok := parsed.Header["alg"].(string); ok && alg != jwt.SigningMethodHS256.Alg() {
				return Claims{}, ErrUnsupportedToken
			}
		}
		return Claims{}, ErrInvalidCredentials
	}

	claims := Claims{ID: tc.DeviceID, Name: tc.Name}
	if tc.ExpiresAt != nil {
		exp := tc.ExpiresAt.Unix()
		claims.Exp = &exp
	}
	if tc.NotBefore != nil {
		nbf := tc.NotBefore.Unix()
		claims.Nbf = &nbf
	}
	return claims, nil
}
