package producer

import (
	"context"
	"math"

	"github.com/aukilabs/tilestream/dem"
)

// Heightfield summarizes a built terrain resource.
type Heightfield struct {
	Width        int     `json:"width"`
	Height       int     `json:"height"`
	MinElevation float64 `json:"min_elevation"`
	MaxElevation float64 `json:"max_elevation"`
}

// Generator builds a terrain resource from a cropped raster.
type Generator interface {
	GenerateTerrain(ctx context.Context, rasterPath string, elevation dem.Elevation) (Heightfield, error)
}

// GeneratorFunc is a function that implements Generator.
type GeneratorFunc func(ctx context.Context, rasterPath string, elevation dem.Elevation) (Heightfield, error)

func (f GeneratorFunc) GenerateTerrain(ctx context.Context, rasterPath string, elevation dem.Elevation) (Heightfield, error) {
	return f(ctx, rasterPath, elevation)
}

// HeightfieldGenerator decodes cropped rasters and reports their size and
// observed elevation range. Mesh building is left to the clients.
type HeightfieldGenerator struct{}

func (HeightfieldGenerator) GenerateTerrain(ctx context.Context, rasterPath string, elevation dem.Elevation) (Heightfield, error) {
	r, err := dem.ReadRaster(rasterPath)
	if err != nil {
		return Heightfield{}, err
	}
	r.Elevation = elevation

	h := Heightfield{
		Width:        r.Width,
		Height:       r.Height,
		MinElevation: math.Inf(1),
		MaxElevation: math.Inf(-1),
	}

	for y := 0; y < r.Height; y++ {
		if err := ctx.Err(); err != nil {
			return Heightfield{}, err
		}

		for x := 0; x < r.Width; x++ {
			e := r.ElevationAt(x, y)
			h.MinElevation = math.Min(h.MinElevation, e)
			h.MaxElevation = math.Max(h.MaxElevation, e)
		}
	}
	return h, nil
}
