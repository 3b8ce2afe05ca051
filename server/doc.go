// Package server exposes the generation pipeline over HTTP.
//
// Routes:
//
//	POST   /v1/generate       generate an artifact from a template or prompt
//	GET    /v1/templates      list registered templates
//	GET    /v1/cache/stats    cache statistics (admin)
//	DELETE /v1/cache          drop every cache entry (admin)
//	POST   /v1/cache/cleanup  sweep expired entries (admin)
//	GET    /healthz, /readyz, /health, /health/{name}
//	GET    /metrics           prometheus exposition
//
// When an Authenticator is configured every /v1 route requires a bearer
// token and the cache routes additionally require the admin role.
package server
