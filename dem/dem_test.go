package dem

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/tilestream/tiles"
	"github.com/stretchr/testify/require"
)

func TestLoadMetadata(t *testing.T) {
	dir := t.TempDir()

	t.Run("valid metadata", func(t *testing.T) {
		path := filepath.Join(dir, "valid.yaml")
		err := os.WriteFile(path, []byte(`
width: 1024
height: 512
format: uint16be
elevation:
  min: -12.5
  max: 830
`), 0o644)
		require.NoError(t, err)

		m, err := LoadMetadata(path)
		require.NoError(t, err)
		require.Equal(t, Metadata{
			Width:     1024,
			Height:    512,
			Format:    FormatUint16BE,
			Elevation: Elevation{Min: -12.5, Max: 830},
		}, m)
		require.Equal(t, int64(1024*512*2), m.Size())
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadMetadata(filepath.Join(dir, "nope.yaml"))
		require.Error(t, err)
		require.True(t, errors.IsType(err, ErrTypeMissingSource))
	})

	t.Run("unknown format", func(t *testing.T) {
		path := filepath.Join(dir, "format.yaml")
		err := os.WriteFile(path, []byte("width: 2\nheight: 2\nformat: int8\n"), 0o644)
		require.NoError(t, err)

		_, err = LoadMetadata(path)
		require.Error(t, err)
		require.True(t, errors.IsType(err, ErrTypeInvalidMetadata))
	})

	t.Run("invalid dimensions", func(t *testing.T) {
		path := filepath.Join(dir, "dims.yaml")
		err := os.WriteFile(path, []byte("width: 0\nheight: 2\nformat: uint16le\n"), 0o644)
		require.NoError(t, err)

		_, err = LoadMetadata(path)
		require.Error(t, err)
		require.True(t, errors.IsType(err, ErrTypeInvalidMetadata))
	})
}

func TestOpen(t *testing.T) {
	t.Run("matching raster", func(t *testing.T) {
		src := NewTestingSource(t, 8, 4)

		opened, err := Open(src.Path, "")
		require.NoError(t, err)
		require.Equal(t, src.Metadata, opened.Metadata)
		require.Equal(t, tiles.Rect{Width: 8, Height: 4}, opened.Bounds())
	})

	t.Run("missing raster", func(t *testing.T) {
		src := NewTestingSource(t, 8, 4)
		require.NoError(t, os.Remove(src.Path))

		_, err := Open(src.Path, "")
		require.Error(t, err)
		require.True(t, errors.IsType(err, ErrTypeMissingSource))
	})

	t.Run("missing metadata", func(t *testing.T) {
		src := NewTestingSource(t, 8, 4)

		_, err := Open(src.Path, filepath.Join(t.TempDir(), "missing.yaml"))
		require.Error(t, err)
		require.True(t, errors.IsType(err, ErrTypeMissingSource))
	})

	t.Run("raster size mismatch", func(t *testing.T) {
		src := NewTestingSource(t, 8, 4)
		require.NoError(t, os.Truncate(src.Path, 10))

		_, err := Open(src.Path, "")
		require.Error(t, err)
		require.True(t, errors.IsType(err, ErrTypeInvalidMetadata))
	})
}

func TestSourceCrop(t *testing.T) {
	src := NewTestingSource(t, 12, 6)

	t.Run("crop region matches the source", func(t *testing.T) {
		dst := filepath.Join(t.TempDir(), "tiles", "Terrain_1_1.raw.zst")
		region := tiles.Rect{X: 4, Y: 3, Width: 4, Height: 3}

		err := src.Crop(region, dst)
		require.NoError(t, err)

		r, err := ReadRaster(dst)
		require.NoError(t, err)
		require.Equal(t, 4, r.Width)
		require.Equal(t, 3, r.Height)
		require.Equal(t, FormatUint16LE, r.Format)
		require.Equal(t, src.Metadata.Elevation, r.Elevation)
		require.Len(t, r.Samples, 12)

		for y := 0; y < region.Height; y++ {
			for x := 0; x < region.Width; x++ {
				require.Equal(t, TestingSample(region.X+x, region.Y+y), r.At(x, y))
			}
		}

		_, err = os.Stat(dst + ".tmp")
		require.True(t, os.IsNotExist(err))
	})

	t.Run("out of bounds regions are rejected", func(t *testing.T) {
		for _, region := range []tiles.Rect{
			{X: 10, Y: 0, Width: 4, Height: 3},
			{X: 0, Y: 4, Width: 4, Height: 3},
			{X: -1, Y: 0, Width: 4, Height: 3},
			{X: 0, Y: 0, Width: 0, Height: 3},
		} {
			dst := filepath.Join(t.TempDir(), "crop.raw.zst")

			err := src.Crop(region, dst)
			require.Error(t, err)
			require.True(t, errors.IsType(err, ErrTypeCropOutOfBounds))

			_, err = os.Stat(dst)
			require.True(t, os.IsNotExist(err))
		}
	})
}

func TestRasterElevation(t *testing.T) {
	r := Raster{
		Header: Header{
			Width:     2,
			Height:    1,
			Format:    FormatUint16LE,
			Elevation: Elevation{Min: 10, Max: 20},
		},
		Samples: []float64{0, 0.5},
	}
	require.Equal(t, 10.0, r.ElevationAt(0, 0))
	require.Equal(t, 15.0, r.ElevationAt(1, 0))

	min, max := r.Range()
	require.Equal(t, 0.0, min)
	require.Equal(t, 0.5, max)

	r.Format = FormatFloat32LE
	require.Equal(t, 0.5, r.ElevationAt(1, 0))
}

func TestFloatRaster(t *testing.T) {
	src, err := Create(filepath.Join(t.TempDir(), "float.raw"), Metadata{
		Width:     4,
		Height:    4,
		Format:    FormatFloat32LE,
		Elevation: Elevation{Min: 0, Max: 64},
	}, func(x, y int) float64 {
		return float64(x * y)
	})
	require.NoError(t, err)

	dst := filepath.Join(t.TempDir(), "crop.raw.zst")
	require.NoError(t, src.Crop(tiles.Rect{X: 2, Y: 2, Width: 2, Height: 2}, dst))

	r, err := ReadRaster(dst)
	require.NoError(t, err)
	require.Equal(t, []float64{4, 6, 6, 9}, r.Samples)
}

func TestReadRasterInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.raw.zst")
	require.NoError(t, os.WriteFile(path, []byte("not zstd"), 0o644))

	_, err := ReadRaster(path)
	require.Error(t, err)
	require.True(t, errors.IsType(err, ErrTypeInvalidRaster))
}

func TestFetch(t *testing.T) {
	src := NewTestingSource(t, 8, 4)
	dst := filepath.Join(t.TempDir(), "fetched", "dem.raw")

	err := Fetch(context.Background(), src.Path, dst, nil)
	require.NoError(t, err)

	fetched, err := Open(dst, "")
	require.NoError(t, err)
	require.Equal(t, src.Metadata, fetched.Metadata)
}

func TestTestingSource(t *testing.T) {
	src := NewTestingSource(t, TestingMaxSize, TestingMaxSize)

	dst := filepath.Join(t.TempDir(), "corner.raw.zst")
	region := tiles.Rect{X: TestingMaxSize - 4, Y: TestingMaxSize - 4, Width: 4, Height: 4}
	require.NoError(t, src.Crop(region, dst))

	r, err := ReadRaster(dst)
	require.NoError(t, err)

	seen := make(map[float64]bool)
	for y := 0; y < region.Height; y++ {
		for x := 0; x < region.Width; x++ {
			v := r.At(x, y)
			require.Equal(t, TestingSample(region.X+x, region.Y+y), v)
			require.False(t, seen[v], "sample at %d,%d is not unique", x, y)
			seen[v] = true
		}
	}
	require.Equal(t, float64(1), r.At(3, 3))
}
