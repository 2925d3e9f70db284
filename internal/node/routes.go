package node

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/roslink/internal/observability"
)

func (n *Node) buildRouter() *gin.Engine {
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(n.name))
	if origins := normalizeOrigins(n.cfg.CorsOrigins); len(origins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: origins,
			AllowMethods: []string{"GET", "POST"},
			AllowHeaders: []string{"Origin", "Content-Type"},
			MaxAge:       12 * time.Hour,
		}))
	}
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"node":   n.name,
			"uptime": time.Since(n.started).String(),
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/topics", func(c *gin.Context) {
		n.mu.Lock()
		subs := make([]gin.H, 0, len(n.topics))
		for _, name := range n.topicNamesLocked() {
			topic := n.topics[name]
			subs = append(subs, gin.H{
				"name":       topic.Name(),
				"type":       topic.TypeName(),
				"publishers": topic.NumPublishers(),
			})
		}
		n.mu.Unlock()
		c.JSON(http.StatusOK, gin.H{"topics": subs})
	})
	r.POST("/rpc", n.handleRPC)
	return r
}

func normalizeOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			out = append(out, origin)
		}
	}
	return out
}
