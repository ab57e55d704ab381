package tiles

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestActiveSetInsert(t *testing.T) {
	s := NewActiveSet()

	require.True(t, s.Insert(ID{Col: 1, Row: 1}))
	require.True(t, s.Insert(ID{Col: 0, Row: 1}))
	require.False(t, s.Insert(ID{Col: 1, Row: 1}))
	require.True(t, s.Insert(ID{Col: 2, Row: 2}))
	require.False(t, s.Insert(ID{Col: 0, Row: 1}))

	require.Equal(t, 3, s.Len())
	require.Equal(t, []ID{{Col: 1, Row: 1}, {Col: 0, Row: 1}, {Col: 2, Row: 2}}, s.IDs())

	head, ok := s.Head()
	require.True(t, ok)
	require.Equal(t, ID{Col: 1, Row: 1}, head)

	tail, ok := s.Tail()
	require.True(t, ok)
	require.Equal(t, ID{Col: 2, Row: 2}, tail)
}

func TestActiveSetNoDuplicates(t *testing.T) {
	s := NewActiveSet()
	for i := 0; i < 100; i++ {
		s.Insert(ID{Col: i % 7, Row: i % 3})
	}

	seen := make(map[ID]int)
	for _, id := range s.IDs() {
		seen[id]++
	}
	for id, count := range seen {
		require.Equal(t, 1, count, id.Name())
	}
	require.Equal(t, len(seen), s.Len())
}

func TestActiveSetRemove(t *testing.T) {
	newSet := func() *ActiveSet {
		s := NewActiveSet()
		s.Insert(ID{Col: 0, Row: 0})
		s.Insert(ID{Col: 1, Row: 0})
		s.Insert(ID{Col: 2, Row: 0})
		return s
	}

	t.Run("remove head", func(t *testing.T) {
		s := newSet()
		require.True(t, s.Remove(ID{Col: 0, Row: 0}))

		head, _ := s.Head()
		require.Equal(t, ID{Col: 1, Row: 0}, head)
		require.Equal(t, []ID{{Col: 1, Row: 0}, {Col: 2, Row: 0}}, s.IDs())
	})

	t.Run("remove tail", func(t *testing.T) {
		s := newSet()
		require.True(t, s.Remove(ID{Col: 2, Row: 0}))

		tail, _ := s.Tail()
		require.Equal(t, ID{Col: 1, Row: 0}, tail)
		require.Equal(t, []ID{{Col: 0, Row: 0}, {Col: 1, Row: 0}}, s.IDs())

		require.True(t, s.Insert(ID{Col: 5, Row: 5}))
		require.Equal(t, []ID{{Col: 0, Row: 0}, {Col: 1, Row: 0}, {Col: 5, Row: 5}}, s.IDs())
	})

	t.Run("remove interior", func(t *testing.T) {
		s := newSet()
		require.True(t, s.Remove(ID{Col: 1, Row: 0}))
		require.Equal(t, []ID{{Col: 0, Row: 0}, {Col: 2, Row: 0}}, s.IDs())
	})

	t.Run("remove absent tile is a no-op", func(t *testing.T) {
		s := newSet()
		require.False(t, s.Remove(ID{Col: 9, Row: 9}))
		require.Equal(t, 3, s.Len())
	})

	t.Run("remove only element clears head and tail", func(t *testing.T) {
		s := NewActiveSet()
		s.Insert(ID{Col: 4, Row: 4})
		require.True(t, s.Remove(ID{Col: 4, Row: 4}))

		_, ok := s.Head()
		require.False(t, ok)
		_, ok = s.Tail()
		require.False(t, ok)
		require.Empty(t, s.IDs())
		require.Zero(t, s.Len())
	})
}

func TestActiveSetSweep(t *testing.T) {
	t.Run("removes every rejected tile including head and tail", func(t *testing.T) {
		s := NewActiveSet()
		for col := 0; col < 6; col++ {
			s.Insert(ID{Col: col, Row: 0})
		}

		removed := s.Sweep(func(id ID) bool {
			return id.Col%2 == 1
		})

		require.Equal(t, []ID{{Col: 0, Row: 0}, {Col: 2, Row: 0}, {Col: 4, Row: 0}}, removed)
		require.Equal(t, []ID{{Col: 1, Row: 0}, {Col: 3, Row: 0}, {Col: 5, Row: 0}}, s.IDs())

		head, _ := s.Head()
		require.Equal(t, ID{Col: 1, Row: 0}, head)
		tail, _ := s.Tail()
		require.Equal(t, ID{Col: 5, Row: 0}, tail)
	})

	t.Run("keep everything", func(t *testing.T) {
		s := NewActiveSet()
		s.Insert(ID{Col: 0, Row: 0})
		s.Insert(ID{Col: 1, Row: 0})

		removed := s.Sweep(func(ID) bool { return true })
		require.Empty(t, removed)
		require.Equal(t, 2, s.Len())
	})

	t.Run("remove everything", func(t *testing.T) {
		s := NewActiveSet()
		s.Insert(ID{Col: 0, Row: 0})
		s.Insert(ID{Col: 1, Row: 0})

		removed := s.Sweep(func(ID) bool { return false })
		require.Len(t, removed, 2)
		require.Zero(t, s.Len())

		_, ok := s.Head()
		require.False(t, ok)
		_, ok = s.Tail()
		require.False(t, ok)

		require.True(t, s.Insert(ID{Col: 3, Row: 3}))
		head, _ := s.Head()
		tail, _ := s.Tail()
		require.Equal(t, head, tail)
	})

	t.Run("empty set", func(t *testing.T) {
		s := NewActiveSet()
		require.Empty(t, s.Sweep(func(ID) bool { return false }))
	})
}
