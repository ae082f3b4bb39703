package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/taskilo/storno-service/internal/auth"
	"github.com/taskilo/storno-service/internal/domain/storno"
)

type StornoHandler struct {
	service *storno.Service
}

func NewStornoHandler(s *storno.Service) *StornoHandler {
	return &StornoHandler{service: s}
}

// Eligibility reports whether the actor may cancel the order, and under
// which conditions. Read-only; the verdict is recomputed on submission.
func (h *StornoHandler) Eligibility(c *gin.Context) {
	orderID := c.Param("order_id")
	if orderID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing order_id"})
		return
	}

	elig, err := h.service.CheckEligibility(c, orderID, auth.ActorID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, elig)
}

type submitRequest struct {
	OrderID string `json:"orderId" binding:"required"`
	Reason  string `json:"reason"`
}

// Submit creates a pending storno request for the actor's order.
func (h *StornoHandler) Submit(c *gin.Context) {
	var body submitRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req, err := h.service.Submit(c, storno.Submission{
		OrderID: body.OrderID,
		ActorID: auth.ActorID(c),
		Reason:  body.Reason,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":     req.ID,
		"status": req.Status,
	})
}

// List returns the admin review queue with aggregate statistics.
func (h *StornoHandler) List(c *gin.Context) {
	var query storno.ListQuery

	if raw := c.Query("status"); raw != "" {
		status, err := storno.NewStatus(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		query.Status = &status
	}

	var limitQuery struct {
		Limit int `form:"limit"`
	}
	if err := c.ShouldBindQuery(&limitQuery); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	query.Limit = limitQuery.Limit

	result, err := h.service.List(c, query)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Review moves a pending request under review by the calling admin.
func (h *StornoHandler) Review(c *gin.Context) {
	req, err := h.service.OpenReview(c, c.Param("request_id"), auth.ActorID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, req)
}

type decisionRequest struct {
	Action          string  `json:"action" binding:"required"`
	AdminNotes      *string `json:"adminNotes"`
	RefundAmount    *int64  `json:"refundAmount"`
	RefundReason    *string `json:"refundReason"`
	RejectionReason *string `json:"rejectionReason"`
}

// Decide resolves an open request. Approval triggers the refund and its
// follow-ups; rejection only closes the request.
func (h *StornoHandler) Decide(c *gin.Context) {
	var body decisionRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	action, err := storno.NewAction(body.Action)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.service.Decide(c, storno.Decision{
		RequestID:       c.Param("request_id"),
		Action:          action,
		AdminID:         auth.ActorID(c),
		AdminNotes:      body.AdminNotes,
		RefundAmount:    body.RefundAmount,
		RefundReason:    body.RefundReason,
		RejectionReason: body.RejectionReason,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
