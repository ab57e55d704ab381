package dem

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/klauspost/compress/zstd"
	"github.com/segmentio/encoding/json"
)

// Header is the first line of a cropped raster file.
type Header struct {
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Format    Format    `json:"format"`
	Elevation Elevation `json:"elevation"`
}

// Raster is a decoded cropped raster. Integer samples are normalized to
// [0, 1], float samples are kept as is.
type Raster struct {
	Header
	Samples []float64
}

// At returns the sample at x, y.
func (r Raster) At(x, y int) float64 {
	return r.Samples[y*r.Width+x]
}

// ElevationAt returns the world-space height at x, y.
func (r Raster) ElevationAt(x, y int) float64 {
	v := r.At(x, y)
	if r.Format == FormatFloat32LE {
		return v
	}
	return r.Elevation.Min + v*(r.Elevation.Max-r.Elevation.Min)
}

// Range returns the lowest and highest sample of the raster.
func (r Raster) Range() (min, max float64) {
	if len(r.Samples) == 0 {
		return 0, 0
	}

	min, max = r.Samples[0], r.Samples[0]
	for _, v := range r.Samples[1:] {
		min = math.Min(min, v)
		max = math.Max(max, v)
	}
	return min, max
}

// ReadRaster decodes a cropped raster file.
func ReadRaster(path string) (Raster, error) {
	var r Raster

	f, err := os.Open(path)
	if err != nil {
		return r, errors.New("opening cropped raster failed").
			WithType(ErrTypeMissingSource).
			WithTag("path", path).
			Wrap(err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return r, errors.New("creating zstd decoder failed").
			WithType(ErrTypeInvalidRaster).
			Wrap(err)
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	line, err := br.ReadBytes('\n')
	if err != nil {
		return r, errors.New("reading cropped raster header failed").
			WithType(ErrTypeInvalidRaster).
			WithTag("path", path).
			Wrap(err)
	}

	if err := json.Unmarshal(line, &r.Header); err != nil {
		return r, errors.New("decoding cropped raster header failed").
			WithType(ErrTypeInvalidRaster).
			WithTag("path", path).
			Wrap(err)
	}

	bps := r.Format.BytesPerSample()
	if bps == 0 || r.Width <= 0 || r.Height <= 0 {
		return r, errors.New("invalid cropped raster header").
			WithType(ErrTypeInvalidRaster).
			WithTag("path", path).
			WithTag("header", r.Header)
	}

	raw := make([]byte, r.Width*r.Height*bps)
	if _, err := io.ReadFull(br, raw); err != nil {
		return r, errors.New("reading cropped raster samples failed").
			WithType(ErrTypeInvalidRaster).
			WithTag("path", path).
			Wrap(err)
	}

	r.Samples = decodeSamples(r.Format, raw)
	return r, nil
}

func decodeSamples(f Format, raw []byte) []float64 {
	bps := f.BytesPerSample()
	samples := make([]float64, len(raw)/bps)

	for i := range samples {
		b := raw[i*bps : (i+1)*bps]

		switch f {
		case FormatUint16LE:
			samples[i] = float64(binary.LittleEndian.Uint16(b)) / math.MaxUint16
		case FormatUint16BE:
			samples[i] = float64(binary.BigEndian.Uint16(b)) / math.MaxUint16
		case FormatFloat32LE:
			samples[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
		}
	}
	return samples
}

func encodeSample(f Format, v float64, b []byte) {
	switch f {
	case FormatUint16LE:
		binary.LittleEndian.PutUint16(b, uint16(math.Round(clamp01(v)*math.MaxUint16)))
	case FormatUint16BE:
		binary.BigEndian.PutUint16(b, uint16(math.Round(clamp01(v)*math.MaxUint16)))
	case FormatFloat32LE:
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
	}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// Create writes a raster and its metadata sidecar, sampling every cell with
// fn. Integer formats expect fn to return values in [0, 1].
func Create(rasterPath string, m Metadata, fn func(x, y int) float64) (*Source, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(rasterPath), 0o755); err != nil {
		return nil, errors.New("creating dem directory failed").
			WithTag("path", rasterPath).
			Wrap(err)
	}

	f, err := os.OpenFile(rasterPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, errors.New("creating dem raster failed").
			WithTag("path", rasterPath).
			Wrap(err)
	}
	defer f.Close()

	bw := bufio.NewWriterSize(f, 256*1024)
	sample := make([]byte, m.Format.BytesPerSample())

	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			encodeSample(m.Format, fn(x, y), sample)
			bw.Write(sample)
		}
	}

	if err := bw.Flush(); err != nil {
		return nil, errors.New("writing dem raster failed").
			WithTag("path", rasterPath).
			Wrap(err)
	}

	if err := SaveMetadata(MetadataPath(rasterPath), m); err != nil {
		return nil, err
	}

	return &Source{
		Path:     rasterPath,
		Metadata: m,
	}, nil
}
