// Package password hashes and verifies account passwords with Argon2id.
//
// Hashes use the PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<key>
//
// Verify reads the cost parameters from the stored hash. NeedsUpgrade
// reports hashes made under weaker settings so the engine can rehash them
// after a successful login.
//
// Plaintext is never stored or logged by this package.
package password
