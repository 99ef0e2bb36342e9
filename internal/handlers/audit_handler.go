package handlers

import (
	"net/http"
	"strconv"

	"pulseguard/internal/models"
	"pulseguard/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AuditHandler serves read-only views over the audit trail.
type AuditHandler struct {
	audit  *services.AuditService
	logger *logrus.Logger
}

func NewAuditHandler(audit *services.AuditService, logger *logrus.Logger) *AuditHandler {
	return &AuditHandler{audit: audit, logger: logger}
}

func RegisterAuditRoutes(rg *gin.RouterGroup, h *AuditHandler) {
	rg.GET("/executions/:id/audit", h.ListForExecution)
	rg.GET("/audit", h.List)
}

func parseLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 {
		limit = 100
	}
	return limit
}

// ListForExecution returns the entries for one execution in
// chronological order.
func (h *AuditHandler) ListForExecution(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	entries, err := h.audit.GetForExecution(c.Request.Context(), id, parseLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to load audit log", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

// List filters the audit trail by action type or actor. Exactly one
// filter applies per request; action takes precedence.
func (h *AuditHandler) List(c *gin.Context) {
	limit := parseLimit(c)

	if action := c.Query("action"); action != "" {
		actionType, err := models.ParseActionType(action)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid action type", Message: err.Error()})
			return
		}
		entries, err := h.audit.GetByActionType(c.Request.Context(), actionType, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to load audit log", Message: err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
		return
	}

	if actor := c.Query("actor"); actor != "" {
		entries, err := h.audit.GetByActor(c.Request.Context(), actor, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to load audit log", Message: err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
		return
	}

	c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Missing filter", Message: "provide an action or actor query parameter"})
}
