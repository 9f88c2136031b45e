package cache

import (
	"sync"
	"time"
)

// Local — быстрый ярус кэша в памяти процесса со скользящим TTL
// и ограничением размера.
type Local struct {
	mu      sync.Mutex
	entries map[string]*localEntry
	maxSize int
}

type localEntry struct {
	value      []byte
	expireAt   time.Time
	accessedAt time.Time
}

// NewLocal создаёт локальный ярус на maxSize записей.
func NewLocal(maxSize int) *Local {
	if maxSize <= 0 {
		maxSize = 1024
	}
	return &Local{entries: make(map[string]*localEntry), maxSize: maxSize}
}

// Get возвращает значение и продлевает скользящий TTL записи.
func (l *Local) Get(key string, ttl time.Duration) ([]byte, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[key]
	if !ok {
		return nil, false
	}
	now := time.Now()
	if now.After(entry.expireAt) {
		delete(l.entries, key)
		return nil, false
	}
	entry.accessedAt = now
	entry.expireAt = now.Add(ttl)
	return entry.value, true
}

// Set сохраняет значение, при переполнении вытесняя самую давно
// не читавшуюся запись.
func (l *Local) Set(key string, value []byte, ttl time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	for k, e := range l.entries {
		if now.After(e.expireAt) {
			delete(l.entries, k)
		}
	}
	if _, ok := l.entries[key]; !ok && len(l.entries) >= l.maxSize {
		l.evictOldest()
	}
	l.entries[key] = &localEntry{value: value, expireAt: now.Add(ttl), accessedAt: now}
}

func (l *Local) evictOldest() {
	var oldestKey string
	var oldestAt time.Time
	for k, e := range l.entries {
		if oldestKey == "" || e.accessedAt.Before(oldestAt) {
			oldestKey = k
			oldestAt = e.accessedAt
		}
	}
	if oldestKey != "" {
		delete(l.entries, oldestKey)
	}
}
