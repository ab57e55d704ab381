package models

import (
	"sort"
	"sync"
)

// SequentialIDGenerator generates session ids. Released ids are handed out
// again, smallest first, before new ones are allocated.
type SequentialIDGenerator struct {
	mutex    sync.Mutex
	lastID   uint32
	released []uint32
}

// New returns the smallest released id, or the next sequential id when none
// was released.
func (g *SequentialIDGenerator) New() uint32 {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if len(g.released) != 0 {
		id := g.released[0]
		g.released = g.released[1:]
		return id
	}

	g.lastID++
	return g.lastID
}

// Reuse releases the given id. Ids that were never allocated or that are
// already released are ignored.
func (g *SequentialIDGenerator) Reuse(id uint32) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if id == 0 || id > g.lastID {
		return
	}

	i := sort.Search(len(g.released), func(i int) bool {
		return g.released[i] >= id
	})
	if i < len(g.released) && g.released[i] == id {
		return
	}

	g.released = append(g.released, 0)
	copy(g.released[i+1:], g.released[i:])
	g.released[i] = id
}
