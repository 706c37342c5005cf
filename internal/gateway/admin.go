package gateway

import (
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/edgerouter/internal/health"
)

// AdminConfig configures the admin engine.
type AdminConfig struct {
	Checker *health.Checker

	// Metrics is served at MetricsPath when set.
	Metrics     http.Handler
	MetricsPath string
}

// BreakerInfo describes one circuit breaker.
type BreakerInfo struct {
	Name             string    `json:"name"`
	State            string    `json:"state"`
	Failures         int       `json:"failures"`
	Successes        int       `json:"successes"`
	ConsecutiveFails int       `json:"consecutiveFailures"`
	LastStateChange  time.Time `json:"lastStateChange,omitempty"`
}

// NewAdminHandler builds the admin engine: health probes, metrics, the
// compiled routes and the breaker states.
func NewAdminHandler(g *Gateway, cfg AdminConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	if cfg.Checker != nil {
		engine.GET("/health", gin.WrapF(cfg.Checker.HealthHandler()))
		engine.GET("/ready", gin.WrapF(cfg.Checker.ReadinessHandler()))
		engine.GET("/live", gin.WrapF(cfg.Checker.LivenessHandler()))
	}
	if cfg.Metrics != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		engine.GET(path, gin.WrapH(cfg.Metrics))
	}

	admin := engine.Group("/admin")
	admin.GET("/routes", func(c *gin.Context) {
		c.JSON(http.StatusOK, g.Routes())
	})
	admin.GET("/breakers", func(c *gin.Context) {
		c.JSON(http.StatusOK, breakerInfos(g))
	})
	admin.POST("/breakers/reset", func(c *gin.Context) {
		g.Breakers().ResetAll()
		g.logger.Info("circuit breakers reset from admin endpoint")
		c.JSON(http.StatusOK, breakerInfos(g))
	})

	return engine
}

func breakerInfos(g *Gateway) []BreakerInfo {
	stats := g.Breakers().Stats()
	infos := make([]BreakerInfo, 0, len(stats))
	for name, s := range stats {
		infos = append(infos, BreakerInfo{
			Name:             name,
			State:            s.State.String(),
			Failures:         s.Failures,
			Successes:        s.Successes,
			ConsecutiveFails: s.ConsecutiveFails,
			LastStateChange:  s.LastStateChange,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}
