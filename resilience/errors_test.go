package resilience

import (
	"strings"
	"testing"
)

// The recovery classifier keys off these words.
func TestSentinelErrors_Classifiable(t *testing.T) {
	tests := []struct {
		err  error
		word string
	}{
		{ErrCircuitOpen, "network"},
		{ErrRateLimitExceeded, "rate limit"},
		{ErrTimeout, "timeout"},
		{ErrBulkheadFull, "capacity"},
	}

	for _, tt := range tests {
		if !strings.Contains(tt.err.Error(), tt.word) {
			t.Errorf("%q should mention %q", tt.err, tt.word)
		}
	}
}
