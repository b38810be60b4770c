package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryEventStore is the in-process EventStore used as the default for
// tests and single-node setups. Durable deployments wire the SQL store.
type MemoryEventStore struct {
	mu     sync.Mutex
	events map[string]*memoryQueuedEvent
	seq    int64
	nowFn  func() time.Time
}

type memoryQueuedEvent struct {
	record QueuedEvent
	seq    int64
}

func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{
		events: make(map[string]*memoryQueuedEvent),
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryEventStore) Put(_ context.Context, event QueuedEvent) error {
	if s == nil {
		return fmt.Errorf("core: memory event store is not configured")
	}
	if strings.TrimSpace(event.ID) == "" {
		return fmt.Errorf("core: queued event id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.events[event.ID]; ok {
		existing.record = event
		return nil
	}
	s.seq++
	s.events[event.ID] = &memoryQueuedEvent{record: event, seq: s.seq}
	return nil
}

func (s *MemoryEventStore) NextBatch(_ context.Context, limit int) ([]QueuedEvent, error) {
	if s == nil {
		return nil, fmt.Errorf("core: memory event store is not configured")
	}
	if limit <= 0 {
		limit = 1
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	candidates := make([]*memoryQueuedEvent, 0, len(s.events))
	for _, entry := range s.events {
		if entry.record.NextAttemptAt != nil && entry.record.NextAttemptAt.After(now) {
			continue
		}
		candidates = append(candidates, entry)
	}
	sort.Slice(candidates, func(i, j int) bool {
		left, right := candidates[i], candidates[j]
		if !left.record.CreatedAt.Equal(right.record.CreatedAt) {
			return left.record.CreatedAt.Before(right.record.CreatedAt)
		}
		return left.seq < right.seq
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	batch := make([]QueuedEvent, 0, len(candidates))
	for _, entry := range candidates {
		claimed := entry.record
		entry.record.Status = EventStatusProcessing
		batch = append(batch, claimed)
	}
	return batch, nil
}

func (s *MemoryEventStore) MarkFailed(_ context.Context, id string, nextAttemptAt *time.Time) error {
	if s == nil {
		return fmt.Errorf("core: memory event store is not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.events[strings.TrimSpace(id)]
	if !ok {
		return fmt.Errorf("core: queued event %q not found", id)
	}
	entry.record.Status = EventStatusFailed
	entry.record.RetryCount++
	entry.record.NextAttemptAt = nil
	if nextAttemptAt != nil {
		value := nextAttemptAt.UTC()
		entry.record.NextAttemptAt = &value
	}
	return nil
}

func (s *MemoryEventStore) Delete(_ context.Context, id string) error {
	if s == nil {
		return fmt.Errorf("core: memory event store is not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.events, strings.TrimSpace(id))
	return nil
}

func (s *MemoryEventStore) Count(context.Context) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("core: memory event store is not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events), nil
}

// Get returns a stored record by id. Test helper; not part of EventStore.
func (s *MemoryEventStore) Get(id string) (QueuedEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.events[strings.TrimSpace(id)]
	if !ok {
		return QueuedEvent{}, false
	}
	return entry.record, true
}

func (s *MemoryEventStore) now() time.Time {
	if s != nil && s.nowFn != nil {
		return s.nowFn().UTC()
	}
	return time.Now().UTC()
}

// MemoryLocker is the in-process Locker default. It honors the same TTL
// takeover semantics as the SQL lock store but only excludes callers within
// one process.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]time.Time
	nowFn func() time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		locks: make(map[string]time.Time),
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

func (l *MemoryLocker) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	if l == nil {
		return false, fmt.Errorf("core: memory locker is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return false, fmt.Errorf("core: lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}

	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if until, ok := l.locks[key]; ok && now.Before(until) {
		return false, nil
	}
	l.locks[key] = now.Add(ttl)
	return true, nil
}

func (l *MemoryLocker) Renew(_ context.Context, key string, ttl time.Duration) error {
	if l == nil {
		return fmt.Errorf("core: memory locker is not configured")
	}
	key = strings.TrimSpace(key)
	if ttl <= 0 {
		ttl = defaultLockTTL
	}

	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	until, ok := l.locks[key]
	if !ok || now.After(until) {
		return fmt.Errorf("core: lock %q is no longer held", key)
	}
	l.locks[key] = now.Add(ttl)
	return nil
}

func (l *MemoryLocker) Release(_ context.Context, key string) error {
	if l == nil {
		return fmt.Errorf("core: memory locker is not configured")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.locks, strings.TrimSpace(key))
	return nil
}

func (l *MemoryLocker) now() time.Time {
	if l != nil && l.nowFn != nil {
		return l.nowFn().UTC()
	}
	return time.Now().UTC()
}

var (
	_ EventStore = (*MemoryEventStore)(nil)
	_ Locker     = (*MemoryLocker)(nil)
)
