package models

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	variantLabel = "variant"
)

var (
	sessionCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "session_count",
		Help: "The number of streaming sessions.",
	}, []string{variantLabel})

	sessionCountTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_count_total",
		Help: "The total number of streaming sessions.",
	}, []string{variantLabel})
)

func instrumentIncreaseSessionGauge(variant string) {
	sessionCount.
		With(prometheus.Labels{variantLabel: variant}).
		Inc()
}

func instrumentDecreaseSessionGauge(variant string) {
	sessionCount.
		With(prometheus.Labels{variantLabel: variant}).
		Dec()
}

func instrumentCountSession(variant string) {
	sessionCountTotal.
		With(prometheus.Labels{variantLabel: variant}).
		Inc()
}
