package tiles

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGraphCreation(t *testing.T) {
	t.Run("empty grid", func(t *testing.T) {
		g := NewGraph(0, 0)
		require.Zero(t, g.Len())
		require.Empty(t, g.NeighborsOf(ID{}))

		_, ok := g.Center()
		require.False(t, ok)
	})

	t.Run("zero rows yields an empty grid", func(t *testing.T) {
		g := NewGraph(4, 0)
		require.Zero(t, g.Len())
		require.Zero(t, g.Cols())
		require.False(t, g.Contains(ID{Col: 0, Row: 0}))
	})

	t.Run("single tile has no neighbors", func(t *testing.T) {
		g := NewGraph(1, 1)
		require.Equal(t, 1, g.Len())
		require.Empty(t, g.NeighborsOf(ID{Col: 0, Row: 0}))

		center, ok := g.Center()
		require.True(t, ok)
		require.Equal(t, ID{Col: 0, Row: 0}, center)
	})
}

func TestGraphNeighborsOf(t *testing.T) {
	g := NewGraph(3, 3)

	t.Run("center tile is linked to the whole grid", func(t *testing.T) {
		require.Equal(t, []ID{
			{Col: 0, Row: 0}, {Col: 1, Row: 0}, {Col: 2, Row: 0},
			{Col: 0, Row: 1}, {Col: 2, Row: 1},
			{Col: 0, Row: 2}, {Col: 1, Row: 2}, {Col: 2, Row: 2},
		}, g.NeighborsOf(ID{Col: 1, Row: 1}))
	})

	t.Run("corner tile", func(t *testing.T) {
		require.Equal(t, []ID{
			{Col: 1, Row: 0},
			{Col: 0, Row: 1}, {Col: 1, Row: 1},
		}, g.NeighborsOf(ID{Col: 0, Row: 0}))
	})

	t.Run("edge tile", func(t *testing.T) {
		require.Equal(t, []ID{
			{Col: 1, Row: 0}, {Col: 2, Row: 0},
			{Col: 1, Row: 1},
			{Col: 1, Row: 2}, {Col: 2, Row: 2},
		}, g.NeighborsOf(ID{Col: 2, Row: 1}))
	})

	t.Run("out of grid tile has no neighbors", func(t *testing.T) {
		require.Empty(t, g.NeighborsOf(ID{Col: 3, Row: 1}))
		require.Empty(t, g.NeighborsOf(ID{Col: -1, Row: 0}))
		require.False(t, g.IsNeighbor(ID{Col: 3, Row: 1}, ID{Col: 2, Row: 1}))
	})

	t.Run("tile is not its own neighbor", func(t *testing.T) {
		require.False(t, g.IsNeighbor(ID{Col: 1, Row: 1}, ID{Col: 1, Row: 1}))
	})
}

func TestGraphSymmetry(t *testing.T) {
	for _, dims := range [][2]int{{1, 1}, {1, 5}, {5, 1}, {3, 3}, {4, 7}, {9, 6}} {
		g := NewGraph(dims[0], dims[1])

		g.Each(func(a ID) {
			g.Each(func(b ID) {
				require.Equal(t, g.IsNeighbor(a, b), g.IsNeighbor(b, a),
					"grid %dx%d: %s <-> %s", dims[0], dims[1], a, b)
			})

			for _, n := range g.NeighborsOf(a) {
				require.True(t, g.Contains(n))
				dc, dr := n.Col-a.Col, n.Row-a.Row
				require.True(t, dc >= -1 && dc <= 1 && dr >= -1 && dr <= 1)
			}
		})
	}
}

func TestGraphInteriorCellHasEightNeighbors(t *testing.T) {
	g := NewGraph(5, 5)
	require.Len(t, g.NeighborsOf(ID{Col: 2, Row: 2}), 8)
	require.Len(t, g.NeighborsOf(ID{Col: 0, Row: 2}), 5)
	require.Len(t, g.NeighborsOf(ID{Col: 4, Row: 4}), 3)
}

func TestGraphEach(t *testing.T) {
	g := NewGraph(2, 2)

	var visited []ID
	g.Each(func(id ID) {
		visited = append(visited, id)
	})

	require.Equal(t, []ID{
		{Col: 0, Row: 0}, {Col: 1, Row: 0},
		{Col: 0, Row: 1}, {Col: 1, Row: 1},
	}, visited)
}
