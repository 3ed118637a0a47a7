package game

import (
	"sync/atomic"

	"github.com/victornm/songparty/internal/domain"
)

// Cache holds the latest room snapshot a subscriber received. Each snapshot replaces the previous one
// whole; an older revision never overwrites a newer one.
type Cache struct {
	room atomic.Pointer[domain.Room]
}

// Store replaces the cached room and reports whether r was newer than what was cached.
func (c *Cache) Store(r *domain.Room) bool {
	for {
		cur := c.room.Load()
		if cur != nil && cur.Revision >= r.Revision {
			return false
		}
		if c.room.CompareAndSwap(cur, r) {
			return true
		}
	}
}

// Load returns the cached room, nil before the first snapshot.
func (c *Cache) Load() *domain.Room {
	return c.room.Load()
}
