// ABOUTME: Tests for per-IP token bucket rate limiting
// ABOUTME: Covers bucket exhaustion, per-client isolation and lifecycle

package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	rl := newRateLimiter(1, 2)
	defer rl.close()

	assert.True(t, rl.allow("10.0.0.1"))
	assert.True(t, rl.allow("10.0.0.1"))
	assert.False(t, rl.allow("10.0.0.1"))

	// Each client gets its own bucket.
	assert.True(t, rl.allow("10.0.0.2"))
}

func TestRateLimiterClose(t *testing.T) {
	rl := newRateLimiter(10, 5)
	rl.close()
	rl.close() // idempotent

	select {
	case <-rl.stop:
	default:
		t.Fatal("stop channel not closed")
	}

	// Closed limiters still serve allow decisions.
	assert.True(t, rl.allow("10.0.0.1"))
}
