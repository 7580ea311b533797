package test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TryTilCountIs evaluates condition once per tick and fails the test after cnt
// unsuccessful attempts. A slow condition delays the next tick instead of piling up.
func TryTilCountIs(t *testing.T, condition func() bool, cnt uint64, tick time.Duration, msgAndArgs ...any) {
	t.Helper()
	ch := make(chan bool, 1)
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	var attempts uint64
	for c := ticker.C; ; {
		select {
		case <-c:
			c = nil
			go func() { ch <- condition() }()
		case ok := <-ch:
			if ok {
				return
			}
			if attempts++; attempts >= cnt {
				assert.Fail(t, "Condition never satisfied", msgAndArgs...)
				t.FailNow()
			}
			c = ticker.C
		}
	}
}

// WaitClosed fails the test when ch is not closed (or does not deliver) within timeout.
func WaitClosed[T any](t *testing.T, ch <-chan T, timeout time.Duration) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout):
		t.Fatalf("channel not signalled within %s", timeout)
	}
}
