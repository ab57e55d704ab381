package dem

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestingMaxSize is the largest width and height of a testing source. Larger
// rasters would not fit the sample coordinates in 16 bits.
const TestingMaxSize = 256

// NewTestingSource creates a uint16 raster of the given size in a temporary
// directory. Each sample encodes its own coordinates so crops can be checked
// against their source region.
func NewTestingSource(t *testing.T, width, height int) *Source {
	require.LessOrEqual(t, width, TestingMaxSize, "testing source width")
	require.LessOrEqual(t, height, TestingMaxSize, "testing source height")

	src, err := Create(filepath.Join(t.TempDir(), "dem.raw"), Metadata{
		Width:     width,
		Height:    height,
		Format:    FormatUint16LE,
		Elevation: Elevation{Min: 0, Max: 100},
	}, func(x, y int) float64 {
		return TestingSample(x, y)
	})
	require.NoError(t, err)
	return src
}

// TestingSample returns the normalized sample written at x, y by
// NewTestingSource.
func TestingSample(x, y int) float64 {
	return float64(y*TestingMaxSize+x) / 65535
}
