// Package cache holds in-process approximate caches. The webhook vendor
// redelivers terminal events aggressively, so a cheap already-processed check
// in front of the database and the transcript fetch pays for itself quickly.
package cache

import (
	"sync"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/casefunnel/lead-intake/internal/observer"
)

// ProcessedCache is a bloom filter over conversation external IDs that have
// completed the pipeline. A positive answer is only "maybe": callers must
// confirm against the database before skipping work. A negative answer is
// definitive and the pipeline proceeds without an extra lookup.
type ProcessedCache struct {
	filter         *bloom.BloomFilter
	mu             sync.RWMutex
	hits           atomic.Int64
	misses         atomic.Int64
	falsePositives atomic.Int64
}

// NewProcessedCache sizes the filter for the expected number of processed
// conversations at the given false-positive rate.
func NewProcessedCache(expectedConversations uint, fpRate float64) *ProcessedCache {
	return &ProcessedCache{
		filter: bloom.NewWithEstimates(expectedConversations, fpRate),
	}
}

// MaybeProcessed reports whether the conversation might already be processed.
func (c *ProcessedCache) MaybeProcessed(externalID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.filter.TestString(externalID) {
		c.hits.Add(1)
		observer.IncCacheCheck("processed_conversations", "possible_hit")
		return true
	}
	c.misses.Add(1)
	observer.IncCacheCheck("processed_conversations", "miss")
	return false
}

// MarkProcessed records a conversation that completed the pipeline.
func (c *ProcessedCache) MarkProcessed(externalID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filter.AddString(externalID)
}

// RecordFalsePositive tracks a possible hit the database disproved.
func (c *ProcessedCache) RecordFalsePositive() {
	c.falsePositives.Add(1)
	observer.IncCacheCheck("processed_conversations", "false_positive")
}

// Stats reports cache effectiveness counters.
type Stats struct {
	Hits              int64
	Misses            int64
	HitRate           float64
	FalsePositives    int64
	FalsePositiveRate float64
	ApproximatedSize  uint64
}

// GetStats returns cache statistics.
func (c *ProcessedCache) GetStats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	fps := c.falsePositives.Load()
	total := hits + misses

	hitRate := float64(0)
	fpRate := float64(0)
	if total > 0 {
		hitRate = float64(hits) / float64(total)
		fpRate = float64(fps) / float64(total)
	}

	c.mu.RLock()
	size := c.filter.ApproximatedSize()
	c.mu.RUnlock()

	return Stats{
		Hits:              hits,
		Misses:            misses,
		HitRate:           hitRate,
		FalsePositives:    fps,
		FalsePositiveRate: fpRate,
		ApproximatedSize:  uint64(size),
	}
}
