package recovery

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors.
var (
	// ErrAbandoned matches every *AbandonedError via errors.Is.
	ErrAbandoned = errors.New("recovery: session abandoned")

	// ErrNoInitialError is returned when Recover is called without a failure.
	ErrNoInitialError = errors.New("recovery: initial error is nil")

	// ErrInvalidStrategy indicates a nil strategy or one without a name.
	ErrInvalidStrategy = errors.New("recovery: invalid strategy")

	// ErrDuplicateStrategy indicates a strategy name is already registered.
	ErrDuplicateStrategy = errors.New("recovery: duplicate strategy")
)

// Reason explains why a session was abandoned.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonMaxAttempts
	ReasonMaxTime
	ReasonMaxTokens
	ReasonRepeatingError
	ReasonNoStrategy
	ReasonCanceled
)

var reasonText = [...]string{
	ReasonNone:           "",
	ReasonMaxAttempts:    "max attempts exceeded",
	ReasonMaxTime:        "max time exceeded",
	ReasonMaxTokens:      "max tokens exceeded",
	ReasonRepeatingError: "repeating error, no progress",
	ReasonNoStrategy:     "no strategy available",
	ReasonCanceled:       "context canceled",
}

// String returns a human-readable explanation.
func (r Reason) String() string {
	if r < 0 || int(r) >= len(reasonText) {
		return "unknown"
	}
	return reasonText[r]
}

// MarshalText encodes the reason as its explanation.
func (r Reason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// AbandonedError is the failure surfaced when a session gives up. It wraps
// the last underlying error.
type AbandonedError struct {
	SessionID  string
	Reason     Reason
	Attempts   int
	Strategies []string
	Elapsed    time.Duration
	TokensUsed int
	Err        error
}

func (e *AbandonedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "recovery: abandoned after %d attempts (%s)", e.Attempts, e.Reason)
	fmt.Fprintf(&b, " [strategies=%s elapsed=%s tokens=%d]",
		strings.Join(e.Strategies, ","), e.Elapsed.Round(time.Millisecond), e.TokensUsed)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *AbandonedError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrAbandoned.
func (e *AbandonedError) Is(target error) bool {
	return target == ErrAbandoned
}
