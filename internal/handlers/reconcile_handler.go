package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/taskilo/storno-service/internal/domain/storno"
)

// ReconcileHandler exposes the repair operation on the internal surface.
// It is triggered by a cron job or by an operator after an incident.
type ReconcileHandler struct {
	service *storno.Service
}

func NewReconcileHandler(s *storno.Service) *ReconcileHandler {
	return &ReconcileHandler{service: s}
}

func (h *ReconcileHandler) Reconcile(c *gin.Context) {
	report, err := h.service.Reconcile(c)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}
