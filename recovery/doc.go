// Package recovery drives repair of failed AI generations.
//
// When a sample fails, a Driver opens a session: it records the failure in
// an ErrorContext (classified ErrorType, detected FailurePatterns, attempt
// history, token spend), asks a Registry for the highest-priority Strategy
// that can handle it, applies the strategy's request transformation plus
// the shared Adjust step, and samples again. The loop ends in success, or
// in abandonment when attempts, time, tokens, progress (the same error three
// times in a row), or strategies run out.
//
// Classification is a deliberate heuristic over error text: backends report
// failures as free-form messages, so ErrorType and PatternType are derived
// from keywords. Both are closed enums.
//
// Nothing here is global. Registries and drivers are constructed and
// injected; a Driver may be shared, and every Recover call owns its session
// state.
package recovery
