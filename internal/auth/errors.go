package auth

import "errors"

var (
	// ErrNotFound signals a missing tenant, user, role or token record.
	ErrNotFound = errors.New("auth: not found")
	// ErrConflict signals a uniqueness violation (duplicate email or domain).
	ErrConflict = errors.New("auth: already exists")
	// ErrUnauthorized covers bad credentials, inactive accounts and
	// invalid/expired/revoked refresh tokens. Callers must not leak which
	// factor failed.
	ErrUnauthorized = errors.New("auth: unauthorized")
	// ErrInvalidToken indicates an access token failed validation.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrInvalidInput marks malformed use-case input.
	ErrInvalidInput = errors.New("auth: invalid input")
)
