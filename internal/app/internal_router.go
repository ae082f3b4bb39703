package app

import (
	"github.com/gin-gonic/gin"

	"github.com/taskilo/storno-service/internal/handlers"
)

// InternalRouter sets up routes for operational service-to-service calls.
// The internal server binds on a separate port that is never exposed
// publicly, so these routes carry no bearer auth.
type InternalRouter struct {
	reconcile *handlers.ReconcileHandler
}

func NewInternalRouter(reconcile *handlers.ReconcileHandler) *InternalRouter {
	return &InternalRouter{
		reconcile: reconcile,
	}
}

// SetUp registers internal routes on the Gin engine.
func (r *InternalRouter) SetUp(engine *gin.Engine) {
	internalGroup := engine.Group("/internal")
	{
		internalGroup.POST("/reconcile", r.reconcile.Reconcile)
	}
}
