package core

import (
	"sort"
	"sync"
	"time"
)

// InFlight tracks user intents that are still running so an identical
// intent can be rejected instead of interleaving with the first.
type InFlight struct {
	mutex sync.Mutex
	ops   map[string]time.Time
}

// NewInFlight creates an empty table.
func NewInFlight() *InFlight {
	return &InFlight{ops: make(map[string]time.Time)}
}

// Begin claims key. It returns false if key is already running; otherwise the
// returned function releases the claim.
func (f *InFlight) Begin(key string) (func(), bool) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if _, running := f.ops[key]; running {
		return nil, false
	}
	f.ops[key] = time.Now()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mutex.Lock()
			defer f.mutex.Unlock()
			delete(f.ops, key)
		})
	}, true
}

// Active reports whether key is running.
func (f *InFlight) Active(key string) bool {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	_, running := f.ops[key]
	return running
}

// Keys lists the running operation keys in sorted order.
func (f *InFlight) Keys() []string {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	keys := make([]string, 0, len(f.ops))
	for key := range f.ops {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func playKey(videoID string) string { return "play:" + videoID }
func addKey(videoID string) string  { return "add:" + videoID }
