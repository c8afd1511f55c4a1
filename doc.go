// Package roleAuth is a session and role-switching engine for services
// where one user holds several roles but acts as exactly one at a time.
//
// Every login creates a Redis-backed session and a signed token that names
// the active role. [Engine.SwitchRole] retires that session and issues a
// new one in the requested role; on any failure after the old session was
// invalidated the engine restores it, so a caller is never left without a
// valid session.
//
// # Architecture boundaries
//
// roleAuth is the public surface: [Engine], [Builder], [Config], [Principal]
// and the error sentinels. Flow orchestration, throttling, audit dispatch
// and metrics live under internal/. Authorization gates live in the policy
// package and HTTP glue in middleware and response.
//
// # What this package must NOT do
//
//   - Expose Redis clients or the session encoding in its public API.
//   - Keep a current principal in package state. A [Principal] is passed
//     explicitly or carried on a request context.
//   - Import any sub-package that re-imports roleAuth.
package roleAuth
