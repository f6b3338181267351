// Package testutil provides shared helpers for the invoicing platform's
// test suites.
package testutil

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

// NewTestUUID derives a deterministic UUID from a seed string, so tests
// can reference the same identity without sharing state.
func NewTestUUID(seed string) uuid.UUID {
	namespace := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	return uuid.NewSHA1(namespace, []byte(seed))
}

// Eventually polls the condition until it holds or the timeout elapses
func Eventually(t *testing.T, condition func() bool, timeout, interval time.Duration) bool {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(interval)
	}
	return false
}
