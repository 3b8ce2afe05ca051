package health

import (
	"errors"
	"strings"
	"testing"
)

func TestErrors(t *testing.T) {
	errs := []error{ErrCheckFailed, ErrCheckTimeout, ErrCheckerNotFound, ErrCircuitOpen}
	for i, err := range errs {
		if !strings.HasPrefix(err.Error(), "health: ") {
			t.Errorf("%v lacks package prefix", err)
		}
		for j, other := range errs {
			if i != j && errors.Is(err, other) {
				t.Errorf("%v should not match %v", err, other)
			}
		}
	}
}
