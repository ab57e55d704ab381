package producer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	errTypeLabel = "error_type"
	sourceLabel  = "source"

	sourceCrop    = "crop"
	sourceCatalog = "catalog"
)

var (
	tilesGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tiles_generated",
		Help: "The number of generated tiles.",
	}, []string{sourceLabel})

	tileCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tile_cache_hits",
		Help: "The number of tile requests served from the generated tile cache.",
	})

	tileGenerationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tile_generation_errors",
		Help: "The errors that occured while generating a tile.",
	}, []string{errTypeLabel})

	tileGenerationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tile_generation_latency",
		Help:    "The time it took to generate a tile, in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
	})

	tileGenerationsPending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tile_generations_pending",
		Help: "The number of queued asynchronous tile generations.",
	})
)

func instrumentTileGenerated(source string, d time.Duration) {
	tilesGenerated.
		With(prometheus.Labels{sourceLabel: source}).
		Inc()
	tileGenerationLatency.Observe(d.Seconds())
}

func instrumentCacheHit() {
	tileCacheHits.Inc()
}

func instrumentGenerationError(errType string) {
	tileGenerationErrors.
		With(prometheus.Labels{errTypeLabel: errType}).
		Inc()
}

func instrumentPending(delta float64) {
	tileGenerationsPending.Add(delta)
}
