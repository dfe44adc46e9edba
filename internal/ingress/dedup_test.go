package ingress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDedupSuppressesWithinTTL(t *testing.T) {
	d := NewDedup(5*time.Minute, nil)
	now := time.Now()
	assert.False(t, d.Seen("bsc:0xabc", now), "expected the first sighting to not be flagged as seen")
	assert.True(t, d.Seen("bsc:0xabc", now.Add(time.Minute)), "expected a repeat within the TTL window to be suppressed")
}

func TestDedupAllowsAfterTTLExpires(t *testing.T) {
	d := NewDedup(5*time.Minute, nil)
	now := time.Now()
	d.Seen("bsc:0xabc", now)
	assert.False(t, d.Seen("bsc:0xabc", now.Add(6*time.Minute)), "expected the key to be admissible again once the TTL has elapsed")
}

func TestDedupTracksKeysIndependently(t *testing.T) {
	d := NewDedup(5*time.Minute, nil)
	now := time.Now()
	d.Seen("bsc:0xabc", now)
	assert.False(t, d.Seen("bsc:0xdef", now), "expected a distinct key to not be suppressed by an unrelated entry")
}
