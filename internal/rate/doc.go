// Package rate provides Redis-backed fixed-window throttles for login and
// role-switch attempts.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key prefixes:
//   - rl:  login failures per identifier
//   - rli: login failures per client IP
//   - rs:  role switches per subject
//
// # What this package must NOT do
//
//   - Decide what a failure is. Callers report failures explicitly.
//   - Be imported outside the roleAuth module.
package rate
