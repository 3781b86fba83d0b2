package quota

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTieredPolicy(t *testing.T) {
	p := NewPolicy()

	assert.True(t, p.Allow(0, TierFree))
	assert.True(t, p.Allow(FreeSpaceLimit-1, TierFree))
	assert.False(t, p.Allow(FreeSpaceLimit, TierFree))
	assert.False(t, p.Allow(FreeSpaceLimit+5, TierFree))

	assert.True(t, p.Allow(FreeSpaceLimit, TierPro))
	assert.True(t, p.Allow(100, TierStaff))

	// Unknown tiers are treated as free.
	assert.False(t, p.Allow(FreeSpaceLimit, Tier("mystery")))
}

func TestCustomFreeLimit(t *testing.T) {
	p := &TieredPolicy{FreeLimit: 1}

	assert.True(t, p.Allow(0, TierFree))
	assert.False(t, p.Allow(1, TierFree))
}
