package generate

import "errors"

// Sentinel errors for generation.
var (
	ErrUnknownTemplate   = errors.New("generate: unknown template")
	ErrDuplicateTemplate = errors.New("generate: template already registered")
	ErrInvalidTemplate   = errors.New("generate: invalid template")
	ErrMissingVariable   = errors.New("generate: required template variable missing")

	ErrEmptyArtifact     = errors.New("generate: incomplete response: model returned empty output")
	ErrInvalidDockerfile = errors.New("generate: dockerfile format validation failed")
	ErrInvalidManifest   = errors.New("generate: manifest validation failed")
)
