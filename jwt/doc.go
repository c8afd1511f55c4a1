// Package jwt signs and decodes the session tokens that carry a user's
// subject, granted roles, active role, and session identifier. Decoding is
// CPU-only; revocation is checked against the session store by callers.
package jwt
