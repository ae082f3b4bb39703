package app

import (
	"github.com/gin-gonic/gin"

	"github.com/taskilo/storno-service/pkg/logger"
	"github.com/taskilo/storno-service/pkg/metrics"
)

func NewGinEngine(l *logger.Logger) *gin.Engine {
	engine := gin.New()
	engine.Use(logger.CorrelationMiddleware(), metrics.GinMiddleware(), l.GinRequestLogger(), gin.Recovery())
	return engine
}
