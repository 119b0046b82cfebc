package core

import (
	"sync"
	"time"
)

// Queue Mirror
// The mirror is the engine's last successfully fetched copy of the remote queue.
// Positions in it are only meaningful for the snapshot they came from; every
// mutation re-reads the remote queue instead of trusting a cached index.

// QueueMirror holds the most recent queue snapshot.
type QueueMirror struct {
	entries   []QueueEntry
	fetchedAt time.Time
	mutex     sync.RWMutex
}

// NewQueueMirror returns an empty mirror.
func NewQueueMirror() *QueueMirror {
	return &QueueMirror{}
}

// Replace stores a fresh snapshot.
func (m *QueueMirror) Replace(entries []QueueEntry, fetchedAt time.Time) {
	copied := make([]QueueEntry, len(entries))
	copy(copied, entries)

	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.entries = copied
	m.fetchedAt = fetchedAt
}

// Snapshot returns a copy of the mirrored entries.
func (m *QueueMirror) Snapshot() []QueueEntry {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	copied := make([]QueueEntry, len(m.entries))
	copy(copied, m.entries)
	return copied
}

// Len returns the number of mirrored entries.
func (m *QueueMirror) Len() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.entries)
}

// FetchedAt returns when the snapshot was taken; zero if never.
func (m *QueueMirror) FetchedAt() time.Time {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.fetchedAt
}

// FindByKey looks up an entry by its composite key.
func (m *QueueMirror) FindByKey(key string) (QueueEntry, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	for _, entry := range m.entries {
		if entry.Key() == key {
			return entry, true
		}
	}
	return QueueEntry{}, false
}
