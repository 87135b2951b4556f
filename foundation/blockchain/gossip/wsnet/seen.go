package wsnet

import (
	"sync"
	"time"
)

// pruneSize is the number of ids held before expired ids are dropped.
const pruneSize = 4096

// seenCache remembers message ids so a flooded message is handled once.
type seenCache struct {
	mu  sync.Mutex
	ttl time.Duration
	ids map[string]time.Time
}

func newSeenCache(ttl time.Duration) *seenCache {
	return &seenCache{
		ttl: ttl,
		ids: make(map[string]time.Time),
	}
}

// add records the id and reports whether it's the first time it was seen.
func (s *seenCache) add(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.ids[id]; exists {
		return false
	}

	now := time.Now()
	if len(s.ids) >= pruneSize {
		for k, seen := range s.ids {
			if now.Sub(seen) > s.ttl {
				delete(s.ids, k)
			}
		}
	}

	s.ids[id] = now
	return true
}
