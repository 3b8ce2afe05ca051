// Package auth provides bearer-token authentication for the sampleops HTTP
// surface.
//
// Tokens are HMAC-signed JWTs validated by [JWTAuthenticator]. The resulting
// [Identity] travels on the request context ([WithIdentity],
// [IdentityFromContext]) and [Middleware] rejects requests that carry no valid
// token with 401 Unauthorized. [RequireRole] narrows a handler to identities
// holding a role and answers 403 Forbidden otherwise.
package auth
