// Package flows contains the orchestrators behind every Engine operation.
//
// Each flow function (RunAuthenticate, RunLogin, RunSwitchRole, RunLogout)
// accepts a typed dependency struct and returns a result with a failure kind.
// The root package maps failure kinds to its public errors, metrics and audit
// events.
//
// # Architecture boundaries
//
// Flows coordinate the session store, token codec, user directory and rate
// limiter. They do NOT own any of these resources; ownership stays with the
// Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import roleAuth (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency interfaces.
package flows
