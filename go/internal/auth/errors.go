package auth

import "errors"

var (
	ErrMissingToken         = errors.New("missing token")
	ErrInvalidTokenFormat   = errors.New("invalid authorization header format")
	ErrInvalidToken         = errors.New("invalid token")
	ErrInvalidSigningMethod = errors.New("unexpected signing method")
)
