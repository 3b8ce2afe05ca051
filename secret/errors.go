package secret

import "errors"

// Sentinel errors.
var (
	ErrMissingEnv         = errors.New("secret: missing required environment variables")
	ErrInvalidProvider    = errors.New("secret: invalid provider registration")
	ErrDuplicateProvider  = errors.New("secret: provider already registered")
	ErrUnknownProvider    = errors.New("secret: provider is not registered")
	ErrInvalidRef         = errors.New("secret: invalid secret reference")
	ErrEmptySecret        = errors.New("secret: provider returned empty value")
	ErrSecretNotFound     = errors.New("secret: secret not found")
	ErrPathOutsideBaseDir = errors.New("secret: path escapes base directory")
)
