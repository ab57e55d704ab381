package streaming

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	errTypeLabel = "error_type"
	variantLabel = "variant"
)

var (
	tilesEntered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tiles_entered",
		Help: "The number of tile changes reported by streaming sessions.",
	}, []string{variantLabel})

	tilesShown = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tiles_shown",
		Help: "The number of tiles made visible.",
	}, []string{variantLabel})

	tilesEvicted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tiles_evicted",
		Help: "The number of tiles removed from active sets.",
	}, []string{variantLabel})

	tileActivationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tile_activation_errors",
		Help: "The errors that occured while activating a tile.",
	}, []string{variantLabel, errTypeLabel})

	activeSetSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "active_set_size",
		Help:    "The size of active sets after a tile change.",
		Buckets: prometheus.LinearBuckets(1, 1, 9),
	}, []string{variantLabel})
)

func instrumentEntered(v Variant, activeCount int) {
	labels := prometheus.Labels{variantLabel: v.String()}
	tilesEntered.With(labels).Inc()
	activeSetSize.With(labels).Observe(float64(activeCount))
}

func instrumentShown(v Variant) {
	tilesShown.
		With(prometheus.Labels{variantLabel: v.String()}).
		Inc()
}

func instrumentEvicted(v Variant, count int) {
	tilesEvicted.
		With(prometheus.Labels{variantLabel: v.String()}).
		Add(float64(count))
}

func instrumentActivationError(v Variant, errType string) {
	tileActivationErrors.
		With(prometheus.Labels{
			variantLabel: v.String(),
			errTypeLabel: errType,
		}).
		Inc()
}
