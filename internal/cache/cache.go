// Package cache holds the in-process caches behind memoized selectors.
package cache

import (
	"strconv"
	"sync"
	"time"

	"budgetsync/internal/log"
)

// Cache defines a generic cache interface
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string)
	Size() int
}

// Memo caches derived values keyed by the version of the data they were
// derived from, so a value is recomputed only after its source changes.
type Memo[T any] struct {
	lru *LRUCache[T]
}

func NewMemo[T any](maxSize int, ttl time.Duration) *Memo[T] {
	return &Memo[T]{lru: NewLRUCache[T](maxSize, ttl)}
}

// Get returns the value cached for (version, key), computing and storing it on a miss.
func (m *Memo[T]) Get(version uint64, key string, compute func() T) T {
	k := strconv.FormatUint(version, 10) + "/" + key
	if v, ok := m.lru.Get(k); ok {
		return v
	}
	v := compute()
	m.lru.Set(k, v)
	return v
}

func (m *Memo[T]) CleanExpired() int { return m.lru.CleanExpired() }

func (m *Memo[T]) Stats() (hits, misses uint64) { return m.lru.Stats() }

// Manager handles cache lifecycle and cleanup
type Manager struct {
	mu          sync.Mutex
	caches      []Cleaner
	logger      *log.Logger
	stopCleanup chan struct{}
	cleanupDone chan struct{}
	started     bool
}

// Cleaner interface for caches that support cleanup
type Cleaner interface {
	CleanExpired() int
}

// NewManager creates a new cache manager
func NewManager(logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Discard()
	}
	return &Manager{
		logger: logger.WithComponent(log.ComponentCache),
	}
}

// Register adds a cache to the manager for cleanup
func (m *Manager) Register(cache Cleaner) {
	m.mu.Lock()
	m.caches = append(m.caches, cache)
	m.mu.Unlock()
}

// StartCleanup begins periodic cleanup of all registered caches
func (m *Manager) StartCleanup(interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started || interval <= 0 {
		return
	}
	m.started = true
	m.stopCleanup = make(chan struct{})
	m.cleanupDone = make(chan struct{})
	go m.cleanup(interval, m.stopCleanup, m.cleanupDone)
}

// CleanNow sweeps every registered cache once.
func (m *Manager) CleanNow() int {
	m.mu.Lock()
	caches := append([]Cleaner(nil), m.caches...)
	m.mu.Unlock()

	total := 0
	for _, c := range caches {
		total += c.CleanExpired()
	}
	return total
}

func (m *Manager) cleanup(interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := m.CleanNow(); n > 0 {
				m.logger.Debug("Expired selector entries removed", log.FieldCount, n)
			}
		case <-stop:
			return
		}
	}
}

// Stop gracefully stops the cleanup routine
func (m *Manager) Stop() {
	m.mu.Lock()
	started, stop, done := m.started, m.stopCleanup, m.cleanupDone
	m.started = false
	m.mu.Unlock()
	if started {
		close(stop)
		<-done
	}
}
