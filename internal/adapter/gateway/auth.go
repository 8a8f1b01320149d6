package gateway

import (
	"crypto/subtle"
	"errors"
)

// ErrUnauthorized is returned for a connection without the expected token.
var ErrUnauthorized = errors.New("gateway: unauthorized")

// Authenticator validates incoming gateway connections.
type Authenticator interface {
	Authenticate(token string) error
}

// TokenAuth accepts connections presenting one shared token. The zero
// value, or an empty token, accepts every connection.
type TokenAuth struct {
	token []byte
}

func NewTokenAuth(token string) *TokenAuth {
	return &TokenAuth{token: []byte(token)}
}

// Authenticate uses constant-time comparison to prevent timing attacks.
func (a *TokenAuth) Authenticate(token string) error {
	if a == nil || len(a.token) == 0 {
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(token), a.token) == 1 {
		return nil
	}
	return ErrUnauthorized
}
