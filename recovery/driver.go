package recovery

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jonwraymond/sampleops/observe"
	"github.com/jonwraymond/sampleops/resilience"
	"github.com/jonwraymond/sampleops/sampling"
)

// State is the lifecycle state of a recovery session.
type State int

const (
	StateIdle State = iota
	StateAttempting
	StateSucceeded
	StateFailedRetry
	StateAbandoned
)

var stateNames = [...]string{
	StateIdle:        "idle",
	StateAttempting:  "attempting",
	StateSucceeded:   "succeeded",
	StateFailedRetry: "failed_retry",
	StateAbandoned:   "abandoned",
}

// String returns the snake_case name of the state.
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// MarshalText encodes the state as its name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Attempt is one entry of the recovery trail.
type Attempt struct {
	Number     int           `json:"number"`
	Strategy   string        `json:"strategy"`
	Success    bool          `json:"success"`
	Duration   time.Duration `json:"duration"`
	Confidence float64       `json:"confidence"`
	Error      string        `json:"error,omitempty"`
	TokensUsed int           `json:"tokens_used,omitempty"`
}

// Result is the outcome of a recovery session.
type Result struct {
	SessionID     string            `json:"session_id"`
	Success       bool              `json:"success"`
	Response      sampling.Response `json:"response"`
	FinalError    error             `json:"-"`
	Attempts      []Attempt         `json:"attempts"`
	Context       ErrorContext      `json:"context"`
	AbandonReason Reason            `json:"abandon_reason,omitempty"`
	State         State             `json:"state"`
}

// Err returns nil on success and the final error otherwise.
func (r *Result) Err() error {
	if r.Success {
		return nil
	}
	return r.FinalError
}

// Config configures a Driver.
type Config struct {
	// Registry supplies strategies. Nil uses DefaultRegistry(StrategyOptions{}).
	Registry *Registry

	// MaxAttempts, MaxDuration and MaxTokens bound a session. Zero or
	// larger values are lowered to the hard ceilings (5, 60s, 10,000).
	MaxAttempts int
	MaxDuration time.Duration
	MaxTokens   int

	Logger  observe.Logger
	Tracer  observe.Tracer
	Metrics observe.Metrics

	// Clock returns the current time. Default: time.Now
	Clock func() time.Time

	// Sleep waits between attempts of strategies that implement Delayer.
	// Default: resilience.Sleep
	Sleep func(ctx context.Context, d time.Duration) error
}

// Driver runs recovery sessions.
//
// A Driver holds configuration only; every call to Recover owns its own
// session state, so one Driver may serve concurrent sessions.
type Driver struct {
	registry *Registry
	limits   Limits
	logger   observe.Logger
	tracer   observe.Tracer
	metrics  observe.Metrics
	clock    func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewDriver creates a Driver.
func NewDriver(cfg Config) *Driver {
	d := &Driver{
		registry: cfg.Registry,
		limits: Limits{
			MaxAttempts: cfg.MaxAttempts,
			MaxDuration: cfg.MaxDuration,
			MaxTokens:   cfg.MaxTokens,
		}.clamped(),
		logger:  cfg.Logger,
		tracer:  cfg.Tracer,
		metrics: cfg.Metrics,
		clock:   cfg.Clock,
		sleep:   cfg.Sleep,
	}
	if d.registry == nil {
		d.registry = DefaultRegistry(StrategyOptions{})
	}
	if d.logger == nil {
		d.logger = observe.NopLogger()
	}
	if d.tracer == nil {
		d.tracer = observe.NopTracer()
	}
	if d.metrics == nil {
		d.metrics = observe.NopMetrics()
	}
	if d.clock == nil {
		d.clock = time.Now
	}
	if d.sleep == nil {
		d.sleep = resilience.Sleep
	}
	return d
}

// Limits returns the effective session limits.
func (d *Driver) Limits() Limits {
	return d.limits
}

// Registry returns the strategy registry.
func (d *Driver) Registry() *Registry {
	return d.registry
}

// session is the mutable state of one Recover call.
type session struct {
	d       *Driver
	ctx     context.Context
	req     sampling.Request
	exec    sampling.Sampler
	ec      *ErrorContext
	result  *Result
	logger  observe.Logger
	lastErr error

	// params are those of the last attempt. Strategies build on them and
	// on the original prompt, so instructions never stack.
	params sampling.Params
}

// Recover drives req from initialErr to success or abandonment, calling
// exec once per attempt. Attempts are strictly sequential. Every failure
// is recorded in the session's ErrorContext; only abandonment is reported
// through Result.FinalError, as an *AbandonedError wrapping the last
// error.
func (d *Driver) Recover(ctx context.Context, req sampling.Request, initialErr error, exec sampling.Sampler) *Result {
	result := &Result{
		SessionID: uuid.NewString(),
		State:     StateIdle,
	}
	switch {
	case initialErr == nil:
		result.FinalError = ErrNoInitialError
		return result
	case exec == nil:
		result.FinalError = sampling.ErrNilSampler
		return result
	}

	meta := observe.OpMeta{
		Operation:  observe.OpRecovery,
		TemplateID: req.TemplateID,
		SessionID:  result.SessionID,
		Model:      req.Params.Model,
	}
	ctx, span := d.tracer.StartSpan(ctx, meta)

	s := &session{
		d:       d,
		ctx:     ctx,
		req:     req,
		exec:    exec,
		ec:      NewErrorContext(req, initialErr, d.clock()),
		result:  result,
		logger:  d.logger.With(meta),
		lastErr: initialErr,
		params:  req.Params,
	}
	s.run()

	result.Context = s.ec.Snapshot()
	d.tracer.EndSpan(span, result.Err())

	outcome := StateSucceeded.String()
	if !result.Success {
		outcome = StateAbandoned.String()
	}
	d.metrics.RecordRecoverySession(ctx, outcome, len(result.Attempts))
	return result
}

func (s *session) run() {
	s.transition(StateAttempting, "",
		observe.Field{Key: "error", Value: s.lastErr.Error()},
		observe.Field{Key: "error_type", Value: s.ec.ErrorType.String()},
		observe.Field{Key: "pattern_types", Value: s.ec.PatternTypes()},
	)

	for {
		if s.ctx.Err() != nil {
			s.abandon(ReasonCanceled)
			return
		}
		if reason := s.ec.abandonReason(s.d.clock(), s.d.limits); reason != ReasonNone {
			s.abandon(reason)
			return
		}

		strategy, ok := s.d.registry.Select(s.lastErr, s.ec)
		if !ok {
			s.abandon(ReasonNoStrategy)
			return
		}

		if delayer, ok := strategy.(Delayer); ok {
			if delay := delayer.Delay(s.ec); delay > 0 {
				if err := s.d.sleep(s.ctx, delay); err != nil {
					s.abandon(ReasonCanceled)
					return
				}
			}
		}

		if s.attempt(strategy) {
			return
		}
	}
}

// attempt executes one strategy and reports whether the session succeeded.
func (s *session) attempt(strategy Strategy) bool {
	name := strategy.Name()
	number := s.ec.Attempt
	confidence := Confidence(s.ec, name)

	next := Adjust(strategy.Recover(s.req.WithParams(s.params), s.lastErr, s.ec), s.ec, name).
		WithAnnotation(sampling.AnnotationSessionID, s.result.SessionID)

	ctx, span := s.d.tracer.StartSpan(s.ctx, observe.OpMeta{
		Operation:  observe.OpRecoveryAttempt,
		TemplateID: next.TemplateID,
		SessionID:  s.result.SessionID,
		Strategy:   name,
		Attempt:    number,
		Model:      next.Params.Model,
	})
	start := s.d.clock()
	resp, err := s.exec.Sample(ctx, next)
	duration := s.d.clock().Sub(start)
	s.d.tracer.EndSpan(span, err)

	s.d.metrics.RecordRecoveryAttempt(s.ctx, name, err == nil)

	a := Attempt{
		Number:     number,
		Strategy:   name,
		Success:    err == nil,
		Duration:   duration,
		Confidence: confidence,
	}

	if err == nil {
		a.TokensUsed = resp.TokensUsed
		s.ec.AddTokens(resp.TokensUsed)
		s.ec.StrategiesUsed = append(s.ec.StrategiesUsed, name)
		s.result.Attempts = append(s.result.Attempts, a)
		s.result.Success = true
		s.result.Response = resp
		s.transition(StateSucceeded, name,
			observe.Field{Key: "confidence", Value: confidence},
			observe.Field{Key: "tokens_used", Value: resp.TokensUsed},
		)
		return true
	}

	a.Error = err.Error()
	a.TokensUsed = sampling.TokensUsed(err)
	s.result.Attempts = append(s.result.Attempts, a)

	s.ec.Record(next, err, name, s.d.clock())
	s.lastErr = err
	s.params = next.Params
	s.transition(StateFailedRetry, name,
		observe.Field{Key: "confidence", Value: confidence},
		observe.Field{Key: "error", Value: err.Error()},
		observe.Field{Key: "error_type", Value: Classify(err).String()},
	)
	return false
}

func (s *session) abandon(reason Reason) {
	now := s.d.clock()
	s.result.AbandonReason = reason
	s.result.FinalError = &AbandonedError{
		SessionID:  s.result.SessionID,
		Reason:     reason,
		Attempts:   s.ec.Attempt,
		Strategies: append([]string(nil), s.ec.StrategiesUsed...),
		Elapsed:    s.ec.Elapsed(now),
		TokensUsed: s.ec.Metadata.TokensUsed,
		Err:        s.lastErr,
	}
	s.transition(StateAbandoned, "",
		observe.Field{Key: "reason", Value: reason.String()},
		observe.Field{Key: "error", Value: s.lastErr.Error()},
		observe.Field{Key: "tokens_used", Value: s.ec.Metadata.TokensUsed},
	)
}

// transition moves the session to state and logs it with the strategy,
// attempt and elapsed time.
func (s *session) transition(state State, strategy string, fields ...observe.Field) {
	s.result.State = state

	fields = append([]observe.Field{
		{Key: "state", Value: state.String()},
		{Key: "attempt", Value: s.ec.Attempt},
		{Key: "strategy", Value: strategy},
		{Key: "elapsed_ms", Value: s.ec.Elapsed(s.d.clock()).Milliseconds()},
	}, fields...)

	switch state {
	case StateAbandoned:
		s.logger.Warn(s.ctx, "recovery abandoned", fields...)
	case StateSucceeded:
		s.logger.Info(s.ctx, "recovery succeeded", fields...)
	case StateFailedRetry:
		s.logger.Debug(s.ctx, "recovery attempt failed", fields...)
	default:
		s.logger.Info(s.ctx, "recovery started", fields...)
	}
}
