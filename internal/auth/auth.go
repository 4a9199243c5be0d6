// Package auth validates the credential attached to every signaling message
// and issues signed tokens for registered devices.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/rendezvous/internal/config"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnsupportedToken   = errors.New("unsupported token")
)

// Validator reports whether credential is acceptable at now. It is pure: no
// state is read or written besides its configuration.
type Validator interface {
	Validate(credential string, now time.Time) error
}

func NewValidator(cfg config.AuthConfig) (Validator, error) {
	switch cfg.Mode {
	case config.AuthModeSharedSecret:
		return SharedSecret{Expected: cfg.Secret}, nil
	case config.AuthModeJWT:
		return NewTokenValidator(cfg.Secret, cfg.TokenLeeway), nil
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.Mode)
	}
}

// IsAuthFailure reports whether err came from a rejected credential.
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrInvalidCredentials) || errors.Is(err, ErrUnsupportedToken)
}
