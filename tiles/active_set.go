package tiles

import (
	"github.com/zyedidia/generic/list"
)

// ActiveSet is the insertion-ordered set of resident tiles. Nodes are indexed
// by tile id so membership, insertion and removal never scan the list.
type ActiveSet struct {
	list  *list.List[ID]
	nodes map[ID]*list.Node[ID]
}

func NewActiveSet() *ActiveSet {
	return &ActiveSet{
		list:  list.New[ID](),
		nodes: make(map[ID]*list.Node[ID]),
	}
}

func (s *ActiveSet) Contains(id ID) bool {
	_, ok := s.nodes[id]
	return ok
}

// Insert appends id at the tail. Inserting a tile that is already present is
// a no-op.
func (s *ActiveSet) Insert(id ID) bool {
	if s.Contains(id) {
		return false
	}

	n := &list.Node[ID]{Value: id}
	s.list.PushBackNode(n)
	s.nodes[id] = n
	return true
}

// Remove unlinks id. Removing a tile that is not present is a no-op.
func (s *ActiveSet) Remove(id ID) bool {
	n, ok := s.nodes[id]
	if !ok {
		return false
	}

	s.list.Remove(n)
	n.Prev, n.Next = nil, nil
	delete(s.nodes, id)
	return true
}

// Sweep removes every tile for which keep returns false and returns the
// removed tiles in list order.
func (s *ActiveSet) Sweep(keep func(ID) bool) []ID {
	var removed []ID

	for n := s.list.Front; n != nil; {
		next := n.Next
		if !keep(n.Value) {
			removed = append(removed, n.Value)
			s.Remove(n.Value)
		}
		n = next
	}

	return removed
}

// Head returns the oldest tile of the set.
func (s *ActiveSet) Head() (ID, bool) {
	if s.list.Front == nil {
		return ID{}, false
	}
	return s.list.Front.Value, true
}

// Tail returns the most recently inserted tile of the set.
func (s *ActiveSet) Tail() (ID, bool) {
	if s.list.Back == nil {
		return ID{}, false
	}
	return s.list.Back.Value, true
}

func (s *ActiveSet) Len() int {
	return len(s.nodes)
}

// IDs returns the tiles from head to tail.
func (s *ActiveSet) IDs() []ID {
	ids := make([]ID, 0, len(s.nodes))
	if s.list.Front != nil {
		s.list.Front.Each(func(id ID) {
			ids = append(ids, id)
		})
	}
	return ids
}
