// Package api exposes the gateway over HTTP with gin.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"interpharma-gateway/internal/common/logger"
	"interpharma-gateway/internal/gateway"
	"interpharma-gateway/internal/models"
)

// Answerer is the slice of the gateway the handlers use.
type Answerer interface {
	Handle(ctx context.Context, req gateway.Request) (gateway.Response, error)
}

// HealthChecker is anything /readyz can ping.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type Config struct {
	Environment string
	BodyLimit   int64
	CORSOrigins []string
}

type Server struct {
	gw     Answerer
	log    logger.Logger
	cfg    Config
	checks map[string]HealthChecker
}

func NewServer(gw Answerer, log logger.Logger, cfg Config, checks map[string]HealthChecker) *Server {
	if cfg.BodyLimit <= 0 {
		cfg.BodyLimit = 1 << 20
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}
	return &Server{gw: gw, log: log, cfg: cfg, checks: checks}
}

func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(
		requestID(),
		accessLog(s.log),
		gin.Recovery(),
		limitBodySize(s.cfg.BodyLimit),
		cors.New(cors.Config{
			AllowOrigins:  s.cfg.CORSOrigins,
			AllowMethods:  []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", headerRequestID},
			ExposeHeaders: []string{headerRequestID, "Retry-After"},
			MaxAge:        12 * time.Hour,
		}),
	)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/readyz", s.ready)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	api.POST("/ai/query", s.plainQuery(models.PersonaPharmaChat))
	api.POST("/drugs/interactions", s.plainQuery(models.PersonaDrugInteraction))
	api.POST("/reports/generate", s.report)
	api.GET("/medical", s.medicalInfo)
	api.POST("/medical/chat", s.medicalChat)

	return router
}

func (s *Server) ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range s.checks {
		if err := check.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			body[name] = "unhealthy: " + err.Error()
			continue
		}
		body[name] = "ok"
	}
	c.JSON(status, body)
}
