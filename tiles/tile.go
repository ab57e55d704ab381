package tiles

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/aukilabs/go-tooling/pkg/errors"
)

const (
	namePrefix = "Terrain_"

	// ErrTypeInvalidName is the error type returned when a surface name does
	// not follow the tile naming convention.
	ErrTypeInvalidName = "tile-invalid-name"
)

// ID identifies a tile by its grid coordinates.
type ID struct {
	Col int `json:"col"`
	Row int `json:"row"`
}

// Name returns the tile name used for cache files and on the wire.
func (id ID) Name() string {
	return fmt.Sprintf("%s%d_%d", namePrefix, id.Col, id.Row)
}

func (id ID) String() string {
	return id.Name()
}

// ParseName resolves a tile name such as "Terrain_3_7" back to its ID.
func ParseName(name string) (ID, error) {
	coords, ok := strings.CutPrefix(name, namePrefix)
	if !ok {
		return ID{}, errors.New("missing tile name prefix").
			WithType(ErrTypeInvalidName).
			WithTag("name", name)
	}

	col, row, ok := strings.Cut(coords, "_")
	if !ok {
		return ID{}, errors.New("missing tile row").
			WithType(ErrTypeInvalidName).
			WithTag("name", name)
	}

	c, err := strconv.Atoi(col)
	if err != nil {
		return ID{}, errors.New("parsing tile column failed").
			WithType(ErrTypeInvalidName).
			WithTag("name", name).
			Wrap(err)
	}

	r, err := strconv.Atoi(row)
	if err != nil {
		return ID{}, errors.New("parsing tile row failed").
			WithType(ErrTypeInvalidName).
			WithTag("name", name).
			Wrap(err)
	}

	return ID{Col: c, Row: r}, nil
}

// State is the lifecycle state of a tile.
type State int

const (
	Ungenerated State = iota
	Generating
	Generated
	Active
	Inactive
)

func (s State) String() string {
	switch s {
	case Ungenerated:
		return "ungenerated"
	case Generating:
		return "generating"
	case Generated:
		return "generated"
	case Active:
		return "active"
	case Inactive:
		return "inactive"
	default:
		return "unknown"
	}
}

// Resident reports whether a tile in this state holds a produced resource.
func (s State) Resident() bool {
	return s == Generated || s == Active || s == Inactive
}

// Tile is a grid cell of the terrain. Tiles are never destroyed during a
// session, deactivation only changes their state.
type Tile struct {
	ID       ID
	State    State
	Position Vector3
}

// Vector3 is a world-space position.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (a Vector3) Sub(b Vector3) Vector3 {
	return Vector3{a.X - b.X, a.Y - b.Y, a.Z - b.Z}
}

func (a Vector3) Length() float64 {
	return math.Sqrt(a.X*a.X + a.Y*a.Y + a.Z*a.Z)
}

// Distance returns the Euclidean distance between a and b.
func (a Vector3) Distance(b Vector3) float64 {
	return a.Sub(b).Length()
}

// Size is a tile size expressed in raster samples.
type Size struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Rect is a region of a raster expressed in samples.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Layout maps tile ids to raster regions and world-space positions.
type Layout struct {
	Size  Size
	Scale float64
}

// GridSize returns the number of whole tiles that fit in a raster of the
// given dimensions.
func (l Layout) GridSize(width, height int) (cols, rows int) {
	if l.Size.X <= 0 || l.Size.Y <= 0 || width <= 0 || height <= 0 {
		return 0, 0
	}
	return width / l.Size.X, height / l.Size.Y
}

// CropRegion returns the raster region covered by a tile.
func (l Layout) CropRegion(id ID) Rect {
	return Rect{
		X:      id.Col * l.Size.X,
		Y:      id.Row * l.Size.Y,
		Width:  l.Size.X,
		Height: l.Size.Y,
	}
}

// Origin returns the world-space placement of a tile.
//
// NOTE: the column is multiplied by the Y tile size and the row by the X tile
// size, the opposite of CropRegion. Both agree for square tiles only.
func (l Layout) Origin(id ID) Vector3 {
	return Vector3{
		X: float64(id.Col*l.Size.Y) * l.Scale,
		Y: 0,
		Z: float64(id.Row*l.Size.X) * l.Scale,
	}
}
