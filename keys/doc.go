// Package keys signs and verifies plugin artifacts.
//
// Two schemes are supported: ed25519 with strict verification and
// dilithium3. Both derive their key pair from a 32-byte seed, so a single
// seed file in a KeyStore serves either scheme.
//
// Public keys travel as "<scheme>:<base64>" strings. A bare hex string is
// accepted as an ed25519 key.
package keys
