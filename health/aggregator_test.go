package health

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func staticChecker(name string, r Result) Checker {
	return NewCheckerFunc(name, func(context.Context) Result { return r })
}

func TestNewAggregator_Defaults(t *testing.T) {
	agg := NewAggregator()
	if agg.config.Timeout != 10*time.Second {
		t.Errorf("Timeout = %v, want 10s", agg.config.Timeout)
	}

	agg = NewAggregator(AggregatorConfig{Timeout: -1, MaxConcurrency: 2})
	if agg.config.Timeout != 10*time.Second {
		t.Errorf("Timeout = %v, want 10s", agg.config.Timeout)
	}
	if agg.config.MaxConcurrency != 2 {
		t.Errorf("MaxConcurrency = %d, want 2", agg.config.MaxConcurrency)
	}
}

func TestAggregator_RegisterOrder(t *testing.T) {
	agg := NewAggregator()
	agg.Register(staticChecker("cache", Healthy("ok")))
	agg.Register(staticChecker("sampler", Healthy("ok")))
	agg.Register(staticChecker("cache", Degraded("replaced")))

	if diff := cmp.Diff([]string{"cache", "sampler"}, agg.CheckerNames()); diff != "" {
		t.Errorf("CheckerNames mismatch (-want +got):\n%s", diff)
	}

	r, err := agg.Check(context.Background(), "cache")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if r.Status != StatusDegraded {
		t.Errorf("replaced checker not used: %v", r.Status)
	}

	agg.Unregister("cache")
	if diff := cmp.Diff([]string{"sampler"}, agg.CheckerNames()); diff != "" {
		t.Errorf("after Unregister (-want +got):\n%s", diff)
	}
}

func TestAggregator_CheckNotFound(t *testing.T) {
	agg := NewAggregator()
	if _, err := agg.Check(context.Background(), "missing"); !errors.Is(err, ErrCheckerNotFound) {
		t.Errorf("Check(missing) error = %v, want ErrCheckerNotFound", err)
	}
}

func TestAggregator_CheckAll(t *testing.T) {
	agg := NewAggregator(AggregatorConfig{MaxConcurrency: 1})
	agg.Register(staticChecker("a", Healthy("ok")))
	agg.Register(staticChecker("b", Degraded("slow")))
	agg.Register(staticChecker("c", Healthy("ok")))

	results := agg.CheckAll(context.Background())
	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}
	if got := OverallStatus(results); got != StatusDegraded {
		t.Errorf("OverallStatus = %v, want degraded", got)
	}
	for name, r := range results {
		if r.Timestamp.IsZero() {
			t.Errorf("%s: Timestamp not set", name)
		}
	}
}

func TestAggregator_CheckAllEmpty(t *testing.T) {
	results := NewAggregator().CheckAll(context.Background())
	if len(results) != 0 {
		t.Errorf("len(results) = %d, want 0", len(results))
	}
	if got := OverallStatus(results); got != StatusHealthy {
		t.Errorf("OverallStatus(empty) = %v, want healthy", got)
	}
}

func TestAggregator_RunsConcurrently(t *testing.T) {
	agg := NewAggregator()
	var running, peak atomic.Int32
	release := make(chan struct{})

	for _, name := range []string{"a", "b", "c"} {
		agg.Register(NewCheckerFunc(name, func(context.Context) Result {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			<-release
			running.Add(-1)
			return Healthy("ok")
		}))
	}

	done := make(chan map[string]Result)
	go func() { done <- agg.CheckAll(context.Background()) }()

	deadline := time.After(2 * time.Second)
	for peak.Load() < 3 {
		select {
		case <-deadline:
			close(release)
			t.Fatalf("peak concurrency = %d, want 3", peak.Load())
		default:
			time.Sleep(time.Millisecond)
		}
	}
	close(release)
	<-done
}

func TestAggregator_Timeout(t *testing.T) {
	agg := NewAggregator(AggregatorConfig{Timeout: 20 * time.Millisecond})
	block := make(chan struct{})
	defer close(block)

	agg.Register(NewCheckerFunc("stuck", func(context.Context) Result {
		<-block
		return Healthy("late")
	}))

	results := agg.CheckAll(context.Background())
	r := results["stuck"]
	if r.Status != StatusUnhealthy || !errors.Is(r.Error, ErrCheckTimeout) {
		t.Errorf("result = %+v, want unhealthy timeout", r)
	}
}

func TestOverallStatus(t *testing.T) {
	tests := []struct {
		name    string
		results map[string]Result
		want    Status
	}{
		{"all healthy", map[string]Result{"a": Healthy(""), "b": Healthy("")}, StatusHealthy},
		{"one degraded", map[string]Result{"a": Healthy(""), "b": Degraded("")}, StatusDegraded},
		{"one unhealthy", map[string]Result{"a": Degraded(""), "b": Unhealthy("", nil)}, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := OverallStatus(tt.results); got != tt.want {
				t.Errorf("OverallStatus = %v, want %v", got, tt.want)
			}
		})
	}
}
