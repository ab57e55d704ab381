// Package producer turns tile ids into terrain resources by cropping the DEM
// and handing the cropped raster to a Generator. Produced tiles are cached for
// the lifetime of the producer, which is shared by every streaming session.
package producer

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/tilestream/catalog"
	"github.com/aukilabs/tilestream/dem"
	"github.com/aukilabs/tilestream/tiles"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	// ErrTypeOutOfGrid is the error type returned when a tile outside of the
	// grid is requested.
	ErrTypeOutOfGrid = "tile-out-of-grid"

	// ErrTypeGenerationFailed is the error type returned when the generator
	// fails to build a tile.
	ErrTypeGenerationFailed = "tile-generation-failed"

	// ErrTypeClosed is the error type returned when a generation is
	// requested from a closed producer.
	ErrTypeClosed = "producer-closed"

	// RasterExt is the extension of cropped tile rasters.
	RasterExt = ".raw.zst"

	defaultQueueSize = 1024
)

// Catalog is the persistent record of cropped tile rasters.
type Catalog interface {
	Record(ctx context.Context, e catalog.Entry) error
	Lookup(ctx context.Context, id tiles.ID) (catalog.Entry, error)
}

// Terrain is a produced tile.
type Terrain struct {
	ID          tiles.ID      `json:"id"`
	Path        string        `json:"path"`
	Position    tiles.Vector3 `json:"position"`
	Heightfield Heightfield   `json:"heightfield"`
	GeneratedAt time.Time     `json:"generated_at"`
}

// Options configures a Producer.
type Options struct {
	Source    *dem.Source
	Layout    tiles.Layout
	CacheDir  string
	Generator Generator

	// The catalog used to reuse rasters cropped by a previous run. Nil
	// disables it.
	Catalog Catalog

	// The number of uncached tiles generated per second by the worker pool.
	// Zero means unlimited.
	Rate  float64
	Burst int

	QueueSize int
}

// Producer produces and caches terrain tiles. It is safe for concurrent use.
type Producer struct {
	source    *dem.Source
	layout    tiles.Layout
	cacheDir  string
	generator Generator
	catalog   Catalog
	graph     *tiles.Graph
	limiter   *rate.Limiter

	mutex sync.RWMutex
	cache map[tiles.ID]*Terrain
	group singleflight.Group

	crops  atomic.Int64
	builds atomic.Int64

	jobs      chan job
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New creates a producer for the grid covered by the source.
func New(o Options) (*Producer, error) {
	if o.Source == nil {
		return nil, errors.New("missing dem source").WithType(dem.ErrTypeMissingSource)
	}
	if o.Generator == nil {
		return nil, errors.New("missing terrain generator")
	}
	if o.CacheDir == "" {
		return nil, errors.New("missing tile cache directory")
	}
	if o.QueueSize <= 0 {
		o.QueueSize = defaultQueueSize
	}

	if err := os.MkdirAll(o.CacheDir, 0o755); err != nil {
		return nil, errors.New("creating tile cache directory failed").
			WithTag("path", o.CacheDir).
			Wrap(err)
	}

	var limiter *rate.Limiter
	if o.Rate > 0 {
		burst := o.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(o.Rate), burst)
	}

	cols, rows := o.Layout.GridSize(o.Source.Metadata.Width, o.Source.Metadata.Height)

	return &Producer{
		source:    o.Source,
		layout:    o.Layout,
		cacheDir:  o.CacheDir,
		generator: o.Generator,
		catalog:   o.Catalog,
		graph:     tiles.NewGraph(cols, rows),
		limiter:   limiter,
		cache:     make(map[tiles.ID]*Terrain),
		jobs:      make(chan job, o.QueueSize),
		done:      make(chan struct{}),
	}, nil
}

// Graph returns the tile graph of the grid covered by the source.
func (p *Producer) Graph() *tiles.Graph {
	return p.graph
}

func (p *Producer) Layout() tiles.Layout {
	return p.layout
}

// RasterPath returns the path of the cropped raster of a tile.
func (p *Producer) RasterPath(id tiles.ID) string {
	return filepath.Join(p.cacheDir, id.Name()+RasterExt)
}

// Cached returns the terrain of an already produced tile.
func (p *Producer) Cached(id tiles.ID) (*Terrain, bool) {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	t, ok := p.cache[id]
	return t, ok
}

// Len returns the number of produced tiles.
func (p *Producer) Len() int {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return len(p.cache)
}

// Crops returns how many times the DEM has been cropped.
func (p *Producer) Crops() int {
	return int(p.crops.Load())
}

// Builds returns how many times the generator has been called.
func (p *Producer) Builds() int {
	return int(p.builds.Load())
}

// Ensure returns the terrain of a tile, producing it if needed. Calling
// Ensure for an already produced tile returns the cached terrain. Concurrent
// calls for the same tile share a single production.
func (p *Producer) Ensure(ctx context.Context, id tiles.ID) (*Terrain, error) {
	if !p.graph.Contains(id) {
		return nil, errors.New("tile out of grid").
			WithType(ErrTypeOutOfGrid).
			WithTag("tile", id.Name()).
			WithTag("cols", p.graph.Cols()).
			WithTag("rows", p.graph.Rows())
	}

	if t, ok := p.Cached(id); ok {
		instrumentCacheHit()
		return t, nil
	}

	// The production outlives the caller that started it: other callers may
	// be waiting on the same tile.
	shared := context.WithoutCancel(ctx)
	ch := p.group.DoChan(id.Name(), func() (any, error) {
		if t, ok := p.Cached(id); ok {
			return t, nil
		}
		return p.produce(shared, id)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Terrain), nil

	case <-ctx.Done():
		return nil, errors.New("waiting for tile failed").
			WithTag("tile", id.Name()).
			Wrap(ctx.Err())
	}
}

func (p *Producer) produce(ctx context.Context, id tiles.ID) (*Terrain, error) {
	start := time.Now()
	path := p.RasterPath(id)
	source := sourceCatalog

	if !p.reusable(ctx, id, path) {
		source = sourceCrop

		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logs.Warn(errors.New("removing stale tile raster failed").
				WithTag("tile", id.Name()).
				Wrap(err))
		}

		p.crops.Add(1)
		if err := p.source.Crop(p.layout.CropRegion(id), path); err != nil {
			instrumentGenerationError(errors.Type(err))
			return nil, errors.New("cropping tile failed").
				WithType(errors.Type(err)).
				WithTag("tile", id.Name()).
				Wrap(err)
		}
	}

	p.builds.Add(1)
	h, err := p.generator.GenerateTerrain(ctx, path, p.source.Metadata.Elevation)
	if err != nil {
		instrumentGenerationError(ErrTypeGenerationFailed)
		return nil, errors.New("generating terrain failed").
			WithType(ErrTypeGenerationFailed).
			WithTag("tile", id.Name()).
			Wrap(err)
	}

	t := &Terrain{
		ID:          id,
		Path:        path,
		Position:    p.layout.Origin(id),
		Heightfield: h,
		GeneratedAt: time.Now(),
	}

	p.mutex.Lock()
	p.cache[id] = t
	p.mutex.Unlock()

	if source == sourceCrop {
		p.record(ctx, t)
	}

	duration := time.Since(start)
	instrumentTileGenerated(source, duration)
	logs.WithTag("tile", id.Name()).
		WithTag("source", source).
		WithTag("duration", duration).
		Debug("tile generated")

	return t, nil
}

func (p *Producer) reusable(ctx context.Context, id tiles.ID, path string) bool {
	if p.catalog == nil {
		return false
	}

	e, err := p.catalog.Lookup(ctx, id)
	if err != nil {
		if !errors.IsType(err, catalog.ErrTypeNotFound) {
			logs.Warn(err)
		}
		return false
	}

	info, err := os.Stat(path)
	return err == nil && e.Path == path && info.Size() == e.Bytes
}

func (p *Producer) record(ctx context.Context, t *Terrain) {
	if p.catalog == nil {
		return
	}

	info, err := os.Stat(t.Path)
	if err != nil {
		logs.Warn(errors.New("reading tile raster info failed").
			WithTag("tile", t.ID.Name()).
			Wrap(err))
		return
	}

	if err := p.catalog.Record(ctx, catalog.Entry{
		ID:          t.ID,
		Path:        t.Path,
		Bytes:       info.Size(),
		GeneratedAt: t.GeneratedAt,
	}); err != nil {
		logs.Warn(err)
	}
}

// Prebake produces every tile of the grid, running at most workers
// productions at a time.
func (p *Producer) Prebake(ctx context.Context, workers int) error {
	if workers <= 0 {
		workers = 1
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	p.graph.Each(func(id tiles.ID) {
		g.Go(func() error {
			_, err := p.Ensure(ctx, id)
			return err
		})
	})

	return g.Wait()
}
