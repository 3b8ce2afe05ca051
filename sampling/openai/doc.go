// Package openai implements sampling.Sampler against an OpenAI-compatible
// chat completions endpoint (OpenAI, Azure OpenAI, vLLM, Ollama and similar).
//
// Failures are returned as *sampling.Error whose message names the failure
// kind (rate limit, timeout, content filter, truncated output, model error),
// so the recovery classifier can pick a strategy from it. Output truncated at
// the token limit is reported as an incomplete response carrying the partial
// text.
package openai
