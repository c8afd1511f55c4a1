// Package session provides the Redis-backed registry of live sessions and the
// compact binary encoding of session records.
//
// # Binary encoding
//
// Records are stored as a versioned binary blob. The session identifier is
// part of the key, not the blob.
//
// # Idempotency
//
// [Store.Create] on an existing session identifier overwrites the record
// and resets its TTL. [Store.Invalidate] on a missing session succeeds.
// Both are therefore safe to retry.
//
// # Architecture boundaries
//
// This package does NOT interpret tokens or make authorization decisions.
// It must not import the root roleAuth package or jwt.
package session
