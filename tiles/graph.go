package tiles

import (
	"cmp"
	"slices"

	"github.com/zyedidia/generic/mapset"
)

// Graph holds the static neighbor adjacency of a tile grid.
//
// Cells are visited in row-major order. Each cell is linked to the already
// visited cells to its west, north, northwest and northeast, and the reverse
// edge is recorded in the neighbor's own set. The result is the symmetric
// 8-neighborhood of every cell.
type Graph struct {
	cols      int
	rows      int
	neighbors map[ID]mapset.Set[ID]
}

// NewGraph builds the adjacency of a cols x rows grid. Zero or negative
// dimensions yield an empty graph.
func NewGraph(cols, rows int) *Graph {
	if cols < 0 {
		cols = 0
	}
	if rows < 0 {
		rows = 0
	}
	if cols == 0 || rows == 0 {
		cols, rows = 0, 0
	}

	g := &Graph{
		cols:      cols,
		rows:      rows,
		neighbors: make(map[ID]mapset.Set[ID], cols*rows),
	}

	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			id := ID{Col: col, Row: row}
			g.neighbors[id] = mapset.New[ID]()

			for _, n := range [...]ID{
				{Col: col - 1, Row: row},     // west
				{Col: col, Row: row - 1},     // north
				{Col: col - 1, Row: row - 1}, // northwest
				{Col: col + 1, Row: row - 1}, // northeast
			} {
				if !g.Contains(n) {
					continue
				}
				g.neighbors[id].Put(n)
				g.neighbors[n].Put(id)
			}
		}
	}

	return g
}

// Contains reports whether id lies inside the grid.
func (g *Graph) Contains(id ID) bool {
	return id.Col >= 0 && id.Col < g.cols &&
		id.Row >= 0 && id.Row < g.rows
}

func (g *Graph) Cols() int {
	return g.cols
}

func (g *Graph) Rows() int {
	return g.rows
}

// Len returns the number of tiles in the grid.
func (g *Graph) Len() int {
	return g.cols * g.rows
}

// Center returns the center tile of the grid. It returns false for an empty
// grid.
func (g *Graph) Center() (ID, bool) {
	if g.Len() == 0 {
		return ID{}, false
	}
	return ID{Col: g.cols / 2, Row: g.rows / 2}, true
}

// NeighborsOf returns the neighbors of id in row-major order. Ids outside the
// grid have no neighbors.
func (g *Graph) NeighborsOf(id ID) []ID {
	set, ok := g.neighbors[id]
	if !ok {
		return nil
	}

	neighbors := make([]ID, 0, set.Size())
	set.Each(func(n ID) {
		neighbors = append(neighbors, n)
	})
	sortIDs(neighbors)
	return neighbors
}

// IsNeighbor reports whether b belongs to the neighbor set of a.
func (g *Graph) IsNeighbor(a, b ID) bool {
	set, ok := g.neighbors[a]
	if !ok {
		return false
	}
	return set.Has(b)
}

// Each calls fn for every tile of the grid in row-major order.
func (g *Graph) Each(fn func(ID)) {
	for row := 0; row < g.rows; row++ {
		for col := 0; col < g.cols; col++ {
			fn(ID{Col: col, Row: row})
		}
	}
}

func sortIDs(ids []ID) {
	slices.SortFunc(ids, func(a, b ID) int {
		if c := cmp.Compare(a.Row, b.Row); c != 0 {
			return c
		}
		return cmp.Compare(a.Col, b.Col)
	})
}
