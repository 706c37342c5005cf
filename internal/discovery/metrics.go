package discovery

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	resolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "discovery",
			Name:      "resolutions_total",
			Help:      "Total number of service resolutions by result",
		},
		[]string{"service", "result"},
	)

	cacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "discovery",
			Name:      "cache_lookups_total",
			Help:      "Total number of instance cache lookups by result",
		},
		[]string{"result"},
	)
)
