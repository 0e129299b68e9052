package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/casefunnel/lead-intake/pkg/utils"
)

const janitorInterval = 60 * time.Second

type windowEntry struct {
	count   int64
	resetAt time.Time
}

// MemoryStore is a process-local fixed-window counter store. A janitor
// goroutine evicts expired windows so long-lived processes do not accumulate
// one entry per client ever seen.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*windowEntry
	stop    chan struct{}
	stopped sync.Once
}

// NewMemoryStore creates the store and starts its janitor.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]*windowEntry),
		stop:    make(chan struct{}),
	}
	go s.janitor()
	return s
}

// Incr counts one request. A fresh or expired window restarts at count=1.
func (s *MemoryStore) Incr(_ context.Context, key string, window time.Duration) (int64, time.Time, error) {
	now := utils.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok || !entry.resetAt.After(now) {
		entry = &windowEntry{count: 0, resetAt: now.Add(window)}
		s.entries[key] = entry
	}
	entry.count++
	return entry.count, entry.resetAt, nil
}

// Stop halts the janitor. Idempotent.
func (s *MemoryStore) Stop() {
	s.stopped.Do(func() {
		close(s.stop)
	})
}

func (s *MemoryStore) janitor() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *MemoryStore) sweep() {
	now := utils.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, entry := range s.entries {
		if !entry.resetAt.After(now) {
			delete(s.entries, key)
		}
	}
}
