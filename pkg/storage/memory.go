package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore implements Store in memory. It is safe for concurrent use.
//
// With a TTL, a background goroutine drops snapshots whose GeneratedAt is
// older than the TTL; Stop must then be called to release it. Snapshots of
// a daily cycle are typically kept for two days so a missed run shows up as
// a missing metric rather than stale data.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]Snapshot
	ttl       time.Duration
	now       func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewMemoryStore creates a store that keeps snapshots until replaced.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snapshots: make(map[string]Snapshot),
		now:       time.Now,
	}
}

// NewMemoryStoreWithTTL creates a store that evicts snapshots older than ttl
// every cleanupInterval (default one minute). A non-positive ttl disables
// eviction.
func NewMemoryStoreWithTTL(ttl, cleanupInterval time.Duration) *MemoryStore {
	s := NewMemoryStore()
	if ttl <= 0 {
		return s
	}
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	s.ttl = ttl
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.runCleanup(cleanupInterval)
	return s
}

// Stop shuts down the cleanup goroutine and waits for it. It is safe to
// call more than once and on a store without TTL.
func (s *MemoryStore) Stop() {
	if s.stop == nil {
		return
	}
	s.stopOnce.Do(func() {
		close(s.stop)
		<-s.done
	})
}

func (s *MemoryStore) runCleanup(interval time.Duration) {
	defer close(s.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.evict()
		case <-s.stop:
			return
		}
	}
}

func (s *MemoryStore) evict() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for metric, snap := range s.snapshots {
		if now.Sub(snap.GeneratedAt) > s.ttl {
			delete(s.snapshots, metric)
		}
	}
}

// Put stores snapshot, replacing the previous one of the same metric.
func (s *MemoryStore) Put(ctx context.Context, snapshot Snapshot) error {
	if snapshot.Metric == "" {
		return fmt.Errorf("snapshot metric cannot be empty")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snapshot.Metric] = snapshot
	return nil
}

// GetLatest returns the snapshot of metric and whether one exists.
func (s *MemoryStore) GetLatest(ctx context.Context, metric string) (Snapshot, bool, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot, found := s.snapshots[metric]
	return snapshot, found, nil
}

// List returns every snapshot ordered by metric.
func (s *MemoryStore) List(ctx context.Context) ([]Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	out := make([]Snapshot, 0, len(s.snapshots))
	for _, snap := range s.snapshots {
		out = append(out, snap)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Metric < out[j].Metric })
	return out, nil
}

// Len returns the number of stored snapshots.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshots)
}
