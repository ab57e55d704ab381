package tiles

import (
	"testing"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestIDName(t *testing.T) {
	require.Equal(t, "Terrain_3_7", ID{Col: 3, Row: 7}.Name())
	require.Equal(t, "Terrain_0_0", ID{}.String())
}

func TestParseName(t *testing.T) {
	t.Run("valid name", func(t *testing.T) {
		id, err := ParseName("Terrain_12_4")
		require.NoError(t, err)
		require.Equal(t, ID{Col: 12, Row: 4}, id)
	})

	t.Run("round trip", func(t *testing.T) {
		id := ID{Col: 21, Row: 9}
		parsed, err := ParseName(id.Name())
		require.NoError(t, err)
		require.Equal(t, id, parsed)
	})

	for _, name := range []string{
		"",
		"Terrain",
		"Rock_1_2",
		"Terrain_1",
		"Terrain_a_2",
		"Terrain_1_b",
		"Terrain_1_2_3",
	} {
		t.Run("invalid "+name, func(t *testing.T) {
			_, err := ParseName(name)
			require.Error(t, err)
			require.True(t, errors.IsType(err, ErrTypeInvalidName))
		})
	}
}

func TestStateString(t *testing.T) {
	require.Equal(t, "ungenerated", Ungenerated.String())
	require.Equal(t, "generating", Generating.String())
	require.Equal(t, "generated", Generated.String())
	require.Equal(t, "active", Active.String())
	require.Equal(t, "inactive", Inactive.String())
	require.Equal(t, "unknown", State(42).String())

	require.False(t, Ungenerated.Resident())
	require.False(t, Generating.Resident())
	require.True(t, Generated.Resident())
	require.True(t, Active.Resident())
	require.True(t, Inactive.Resident())
}

func TestLayoutGridSize(t *testing.T) {
	l := Layout{Size: Size{X: 512, Y: 256}, Scale: 1}

	cols, rows := l.GridSize(2049, 1000)
	require.Equal(t, 4, cols)
	require.Equal(t, 3, rows)

	cols, rows = l.GridSize(100, 100)
	require.Zero(t, cols)
	require.Zero(t, rows)

	cols, rows = Layout{}.GridSize(100, 100)
	require.Zero(t, cols)
	require.Zero(t, rows)
}

func TestLayoutCropRegion(t *testing.T) {
	l := Layout{Size: Size{X: 512, Y: 256}, Scale: 2}

	require.Equal(t, Rect{X: 1024, Y: 256, Width: 512, Height: 256}, l.CropRegion(ID{Col: 2, Row: 1}))
	require.Equal(t, Rect{X: 0, Y: 0, Width: 512, Height: 256}, l.CropRegion(ID{}))
}

func TestLayoutOrigin(t *testing.T) {
	t.Run("square tiles", func(t *testing.T) {
		l := Layout{Size: Size{X: 512, Y: 512}, Scale: 0.5}
		require.Equal(t, Vector3{X: 512, Y: 0, Z: 256}, l.Origin(ID{Col: 2, Row: 1}))

		crop := l.CropRegion(ID{Col: 2, Row: 1})
		require.Equal(t, float64(crop.X)*l.Scale, l.Origin(ID{Col: 2, Row: 1}).X)
		require.Equal(t, float64(crop.Y)*l.Scale, l.Origin(ID{Col: 2, Row: 1}).Z)
	})

	t.Run("non square tiles swap axes relative to the crop", func(t *testing.T) {
		l := Layout{Size: Size{X: 512, Y: 256}, Scale: 1}
		id := ID{Col: 2, Row: 1}

		require.Equal(t, Vector3{X: 512, Y: 0, Z: 512}, l.Origin(id))

		crop := l.CropRegion(id)
		require.NotEqual(t, float64(crop.X), l.Origin(id).X)
		require.NotEqual(t, float64(crop.Y), l.Origin(id).Z)
	})
}

func TestVector3Distance(t *testing.T) {
	require.Equal(t, 5.0, Vector3{X: 3, Z: 4}.Distance(Vector3{}))
	require.Zero(t, Vector3{X: 1, Y: 2, Z: 3}.Distance(Vector3{X: 1, Y: 2, Z: 3}))
}
