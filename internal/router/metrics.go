package router

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type routerMetrics struct {
	matches  *prometheus.CounterVec
	notFound prometheus.Counter
}

var (
	routerMetricsInstance *routerMetrics
	routerMetricsOnce     sync.Once
)

func getRouterMetrics() *routerMetrics {
	routerMetricsOnce.Do(func() {
		routerMetricsInstance = &routerMetrics{
			matches: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "gateway",
					Subsystem: "router",
					Name:      "route_matches_total",
					Help:      "Total number of requests matched per route",
				},
				[]string{"route"},
			),
			notFound: promauto.NewCounter(
				prometheus.CounterOpts{
					Namespace: "gateway",
					Subsystem: "router",
					Name:      "route_not_found_total",
					Help:      "Total number of requests that matched no route",
				},
			),
		}
	})
	return routerMetricsInstance
}
