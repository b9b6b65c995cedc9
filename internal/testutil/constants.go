// Package testutil provides shared test helpers: PDF fixtures, fake
// detectors and a temporary audit store.
package testutil

// TestSigningKey is 32+ bytes of HMAC key material for tests only.
const TestSigningKey = "test-signing-key-1234567890123456"
