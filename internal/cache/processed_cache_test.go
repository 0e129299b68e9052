package cache

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProcessedCache_MissThenHit(t *testing.T) {
	c := NewProcessedCache(1000, 0.01)

	assert.False(t, c.MaybeProcessed("conv_abc"))
	c.MarkProcessed("conv_abc")
	assert.True(t, c.MaybeProcessed("conv_abc"))

	stats := c.GetStats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 0.5, stats.HitRate)
}

func TestProcessedCache_NegativeIsDefinitive(t *testing.T) {
	c := NewProcessedCache(10000, 0.001)
	for i := 0; i < 500; i++ {
		c.MarkProcessed(fmt.Sprintf("conv_%d", i))
	}
	for i := 0; i < 500; i++ {
		assert.True(t, c.MaybeProcessed(fmt.Sprintf("conv_%d", i)))
	}
}

func TestProcessedCache_FalsePositiveTracking(t *testing.T) {
	c := NewProcessedCache(1000, 0.01)
	c.MarkProcessed("conv_x")

	c.MaybeProcessed("conv_x")
	c.RecordFalsePositive()

	stats := c.GetStats()
	assert.Equal(t, int64(1), stats.FalsePositives)
	assert.Equal(t, float64(1), stats.FalsePositiveRate)
}

func TestProcessedCache_ApproximatedSizeGrows(t *testing.T) {
	c := NewProcessedCache(1000, 0.01)
	assert.Zero(t, c.GetStats().ApproximatedSize)
	for i := 0; i < 100; i++ {
		c.MarkProcessed(fmt.Sprintf("conv_%d", i))
	}
	assert.NotZero(t, c.GetStats().ApproximatedSize)
}
