package app

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/taskilo/storno-service/internal/auth"
	"github.com/taskilo/storno-service/internal/handlers"
	"github.com/taskilo/storno-service/pkg/health"
	"github.com/taskilo/storno-service/pkg/metrics"
)

type Router struct {
	storno         *handlers.StornoHandler
	auth           *auth.Middleware
	healthRegistry *health.Registry
}

func NewRouter(
	storno *handlers.StornoHandler,
	authMw *auth.Middleware,
	healthRegistry *health.Registry,
) *Router {
	return &Router{
		storno:         storno,
		auth:           authMw,
		healthRegistry: healthRegistry,
	}
}

func (r *Router) SetUp(engine *gin.Engine) {
	// Health checks (Kubernetes-style)
	engine.GET("/health/live", health.LivenessHandler())
	engine.GET("/health/ready", health.ReadinessHandler(r.healthRegistry, health.DefaultTimeout))

	// Prometheus metrics
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))

	// Customer surface
	authed := engine.Group("", r.auth.Required())
	authed.GET("/orders/:order_id/storno-eligibility", r.storno.Eligibility)
	authed.POST("/storno-requests", r.storno.Submit)

	// Admin review queue
	admin := authed.Group("", r.auth.RequireRole(auth.RoleAdmin))
	admin.GET("/storno-requests", r.storno.List)
	admin.POST("/storno-requests/:request_id/review", r.storno.Review)
	admin.POST("/storno-requests/:request_id/decision", r.storno.Decide)
}
