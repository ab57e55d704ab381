package dem

import (
	"os"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	// ErrTypeMissingSource is the error type returned when the DEM raster or
	// its metadata cannot be read.
	ErrTypeMissingSource = "dem-missing-source"

	// ErrTypeInvalidMetadata is the error type returned when the DEM metadata
	// does not describe the raster it is attached to.
	ErrTypeInvalidMetadata = "dem-invalid-metadata"

	// ErrTypeCropOutOfBounds is the error type returned when a crop region
	// exceeds the raster bounds.
	ErrTypeCropOutOfBounds = "dem-crop-out-of-bounds"

	// ErrTypeInvalidRaster is the error type returned when a cropped raster
	// file cannot be decoded.
	ErrTypeInvalidRaster = "dem-invalid-raster"
)

// Format is the encoding of a single raster sample.
type Format string

const (
	FormatUint16LE  Format = "uint16le"
	FormatUint16BE  Format = "uint16be"
	FormatFloat32LE Format = "float32le"
)

// BytesPerSample returns the size of one sample, or 0 for an unknown format.
func (f Format) BytesPerSample() int {
	switch f {
	case FormatUint16LE, FormatUint16BE:
		return 2
	case FormatFloat32LE:
		return 4
	default:
		return 0
	}
}

// Elevation is the world-space height range a raster maps to.
type Elevation struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
}

// Metadata describes a flat sample raster.
type Metadata struct {
	Width     int       `yaml:"width"`
	Height    int       `yaml:"height"`
	Format    Format    `yaml:"format"`
	Elevation Elevation `yaml:"elevation"`
}

// Validate checks that the metadata is self-consistent.
func (m Metadata) Validate() error {
	if m.Width <= 0 || m.Height <= 0 {
		return errors.New("invalid raster dimensions").
			WithType(ErrTypeInvalidMetadata).
			WithTag("width", m.Width).
			WithTag("height", m.Height)
	}

	if m.Format.BytesPerSample() == 0 {
		return errors.New("unknown sample format").
			WithType(ErrTypeInvalidMetadata).
			WithTag("format", m.Format)
	}

	if m.Elevation.Max < m.Elevation.Min {
		return errors.New("invalid elevation range").
			WithType(ErrTypeInvalidMetadata).
			WithTag("min", m.Elevation.Min).
			WithTag("max", m.Elevation.Max)
	}
	return nil
}

// Size returns the expected size in bytes of the raster.
func (m Metadata) Size() int64 {
	return int64(m.Width) * int64(m.Height) * int64(m.Format.BytesPerSample())
}

// LoadMetadata reads a YAML metadata sidecar.
func LoadMetadata(path string) (Metadata, error) {
	var m Metadata

	b, err := os.ReadFile(path)
	if err != nil {
		return m, errors.New("reading dem metadata failed").
			WithType(ErrTypeMissingSource).
			WithTag("path", path).
			Wrap(err)
	}

	if err := yaml.Unmarshal(b, &m); err != nil {
		return m, errors.New("decoding dem metadata failed").
			WithType(ErrTypeInvalidMetadata).
			WithTag("path", path).
			Wrap(err)
	}

	if err := m.Validate(); err != nil {
		return m, errors.New("validating dem metadata failed").
			WithType(errors.Type(err)).
			WithTag("path", path).
			Wrap(err)
	}
	return m, nil
}

// SaveMetadata writes m as a YAML sidecar.
func SaveMetadata(path string, m Metadata) error {
	b, err := yaml.Marshal(m)
	if err != nil {
		return errors.New("encoding dem metadata failed").Wrap(err)
	}

	if err := os.WriteFile(path, b, 0o644); err != nil {
		return errors.New("writing dem metadata failed").
			WithTag("path", path).
			Wrap(err)
	}
	return nil
}
