// Package generate is the cache-first entry point for artifact generation.
//
// A [Generator] fingerprints each request, serves live cache entries without
// sampling, coalesces concurrent identical misses into one sampling call and
// hands failed samples to a recovery driver. Artifacts produced directly or
// through recovery are cached under the fingerprint of the original request,
// so a later identical request hits even when recovery had to rewrite the
// prompt.
//
// [Templates] render prompts for the built-in artifact kinds ("dockerfile",
// "k8s-manifests") from tool arguments and carry a validator per kind.
// Sampled output that fails validation is reported as a sampling failure so
// recovery can repair it.
package generate
