package detector

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/whalewatcher/watcher/internal/model"
)

// DefaultSeenCapacity bounds the number of alerted trade keys kept in memory.
const DefaultSeenCapacity = 10000

// SeenSet remembers which trades have already been alerted. When full, the
// oldest recorded key is evicted.
type SeenSet struct {
	cache *lru.Cache[model.Key, time.Time]
}

// NewSeenSet creates a SeenSet holding at most capacity keys.
func NewSeenSet(capacity int) (*SeenSet, error) {
	if capacity <= 0 {
		capacity = DefaultSeenCapacity
	}
	cache, err := lru.New[model.Key, time.Time](capacity)
	if err != nil {
		return nil, fmt.Errorf("create seen set: %w", err)
	}
	return &SeenSet{cache: cache}, nil
}

// Contains reports whether key was recorded. It does not refresh the key's age.
func (s *SeenSet) Contains(key model.Key) bool {
	return s.cache.Contains(key)
}

// Record stores key with the time it was alerted.
func (s *SeenSet) Record(key model.Key, at time.Time) {
	s.cache.Add(key, at)
}

// Len returns the number of keys held.
func (s *SeenSet) Len() int {
	return s.cache.Len()
}
