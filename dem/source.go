package dem

import (
	"bufio"
	"os"
	"path/filepath"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/tilestream/tiles"
	"github.com/klauspost/compress/zstd"
	"github.com/segmentio/encoding/json"
)

// MetadataPath returns the default metadata sidecar path of a raster.
func MetadataPath(rasterPath string) string {
	return rasterPath + ".yaml"
}

// Source is a DEM raster on disk with its metadata.
type Source struct {
	Path     string
	Metadata Metadata
}

// Open loads the metadata of a raster and checks that the raster matches it.
// An empty metadataPath defaults to the raster sidecar.
func Open(rasterPath, metadataPath string) (*Source, error) {
	if metadataPath == "" {
		metadataPath = MetadataPath(rasterPath)
	}

	m, err := LoadMetadata(metadataPath)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(rasterPath)
	if err != nil {
		return nil, errors.New("reading dem raster failed").
			WithType(ErrTypeMissingSource).
			WithTag("path", rasterPath).
			Wrap(err)
	}

	if info.Size() != m.Size() {
		return nil, errors.New("dem raster size does not match its metadata").
			WithType(ErrTypeInvalidMetadata).
			WithTag("path", rasterPath).
			WithTag("size", info.Size()).
			WithTag("expected_size", m.Size())
	}

	return &Source{
		Path:     rasterPath,
		Metadata: m,
	}, nil
}

// Bounds returns the full raster region.
func (s *Source) Bounds() tiles.Rect {
	return tiles.Rect{
		Width:  s.Metadata.Width,
		Height: s.Metadata.Height,
	}
}

// Contains reports whether r lies entirely inside the raster.
func (s *Source) Contains(r tiles.Rect) bool {
	return !r.Empty() &&
		r.X >= 0 && r.Y >= 0 &&
		r.X+r.Width <= s.Metadata.Width &&
		r.Y+r.Height <= s.Metadata.Height
}

// Crop writes the r region of the raster to dst as a cropped raster file.
// Regions exceeding the raster bounds are rejected.
func (s *Source) Crop(r tiles.Rect, dst string) error {
	if !s.Contains(r) {
		return errors.New("crop region out of raster bounds").
			WithType(ErrTypeCropOutOfBounds).
			WithTag("region", r).
			WithTag("width", s.Metadata.Width).
			WithTag("height", s.Metadata.Height)
	}

	src, err := os.Open(s.Path)
	if err != nil {
		return errors.New("opening dem raster failed").
			WithType(ErrTypeMissingSource).
			WithTag("path", s.Path).
			Wrap(err)
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errors.New("creating crop directory failed").
			WithTag("path", dst).
			Wrap(err)
	}

	tmp := dst + ".tmp"
	if err := s.writeCrop(src, r, tmp); err != nil {
		os.Remove(tmp)
		return err
	}

	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return errors.New("moving cropped raster failed").
			WithTag("path", dst).
			Wrap(err)
	}
	return nil
}

func (s *Source) writeCrop(src *os.File, r tiles.Rect, path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return errors.New("creating cropped raster failed").
			WithTag("path", path).
			Wrap(err)
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return errors.New("creating zstd encoder failed").Wrap(err)
	}

	bw := bufio.NewWriterSize(enc, 256*1024)

	header, err := json.Marshal(Header{
		Width:     r.Width,
		Height:    r.Height,
		Format:    s.Metadata.Format,
		Elevation: s.Metadata.Elevation,
	})
	if err != nil {
		enc.Close()
		return errors.New("encoding cropped raster header failed").Wrap(err)
	}
	bw.Write(header)
	bw.WriteByte('\n')

	bps := s.Metadata.Format.BytesPerSample()
	row := make([]byte, r.Width*bps)

	for y := r.Y; y < r.Y+r.Height; y++ {
		offset := (int64(y)*int64(s.Metadata.Width) + int64(r.X)) * int64(bps)

		if _, err := src.ReadAt(row, offset); err != nil {
			enc.Close()
			return errors.New("reading dem row failed").
				WithType(ErrTypeMissingSource).
				WithTag("row", y).
				Wrap(err)
		}

		if _, err := bw.Write(row); err != nil {
			enc.Close()
			return errors.New("writing cropped row failed").
				WithTag("row", y).
				Wrap(err)
		}
	}

	if err := bw.Flush(); err != nil {
		enc.Close()
		return errors.New("flushing cropped raster failed").Wrap(err)
	}

	if err := enc.Close(); err != nil {
		return errors.New("closing zstd encoder failed").Wrap(err)
	}
	return f.Sync()
}
