package auth

import (
	"crypto/subtle"
	"time"
)

type SharedSecret struct {
	Expected string
}

func (v SharedSecret) Validate(secret string, _ time.Time) error {
	if secret == "" || v.Expected == "" {
		return ErrInvalidCredentials
	}
	if subtle.ConstantTimeCompare([]byte(secret), []byte(v.Expected)) != 1 {
		return ErrInvalidCredentials
	}
	return nil
}
