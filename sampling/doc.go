// Package sampling defines the generation request model and the single
// capability the rest of sampleops consumes from its environment: a Sampler
// that turns a Request into an artifact.
//
// A Request is a value. Modifying methods (WithPrompt, WithParams,
// WithVariable, WithAnnotation) return copies and never mutate the receiver,
// so a request can be shared between a cache lookup, a recovery session and
// telemetry without defensive copying by callers.
//
// Annotations are a side channel for observability. They travel with the
// request but are never part of its cache identity.
package sampling
