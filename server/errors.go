package server

import "errors"

// Sentinel errors.
var (
	ErrNilGenerator  = errors.New("server: generator is nil")
	ErrInvalidBody   = errors.New("server: invalid request body")
	ErrMissingPrompt = errors.New("server: template_id or prompt is required")
	ErrBothPrompts   = errors.New("server: template_id and prompt are mutually exclusive")
)
