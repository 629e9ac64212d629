// Package auth provides bearer-token authentication for the regionsync HTTP API.
//
// # JWT Tokens
//
// Operators mint tokens with `regionsync token <subject>`. Tokens are HS256
// signed with auth.jwt_secret, carry iss "regionsync", a sub claim and a
// space-separated scope claim:
//
//	v := auth.NewJWTVerifier([]byte(secret))
//	token, err := v.Generate("dashboard", []string{auth.ScopeRead}, 24*time.Hour)
//	claims, err := v.Verify(token)
//
// # Scopes
//
//   - read: list records, region state and regions
//   - write: everything read allows, plus bookmarking, deleting records,
//     registering regions and injecting locations or events
//
// # HTTP Middleware
//
// Middleware verifies the Authorization header and stores the Claims in the
// request context; RequireScope guards individual routes. When no secret is
// configured the server skips Middleware and every route is open.
package auth
