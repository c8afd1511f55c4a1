// Package middleware adapts the engine and the policy gates to net/http.
//
//   - [Authenticate] verifies the bearer token through Engine.Authenticate
//     and stores the [roleAuth.Principal] on the request context.
//   - [RequireRole] and [RequireGate] run a policy gate against that
//     principal and answer refusals with the standard envelope.
//
// # What this package must NOT do
//
//   - Parse or create tokens directly.
//   - Decide access itself. Every decision comes from the policy package.
package middleware
