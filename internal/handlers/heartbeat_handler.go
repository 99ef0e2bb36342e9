package handlers

import (
	"net/http"
	"strconv"

	"pulseguard/internal/metrics"
	"pulseguard/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// HeartbeatHandler exposes heartbeat ingestion and queries.
type HeartbeatHandler struct {
	heartbeats *services.HeartbeatService
	logger     *logrus.Logger
}

func NewHeartbeatHandler(heartbeats *services.HeartbeatService, logger *logrus.Logger) *HeartbeatHandler {
	return &HeartbeatHandler{heartbeats: heartbeats, logger: logger}
}

// RegisterIngestRoutes registers the unauthenticated ingest endpoint.
func RegisterIngestRoutes(rg *gin.RouterGroup, h *HeartbeatHandler) {
	rg.POST("/heartbeats/:name", h.RecordHeartbeat)
}

// RegisterHeartbeatRoutes registers the operator query endpoints.
func RegisterHeartbeatRoutes(rg *gin.RouterGroup, h *HeartbeatHandler) {
	rg.GET("/services/:id/heartbeats", h.ListHeartbeats)
	rg.GET("/services/:id/heartbeats/latest", h.LatestHeartbeat)
}

// RecordHeartbeat ingests one "I'm alive" signal. The body is an
// optional JSON metadata object.
func (h *HeartbeatHandler) RecordHeartbeat(c *gin.Context) {
	name := c.Param("name")

	var metadata map[string]interface{}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&metadata); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid metadata body", Message: err.Error()})
			return
		}
	}

	hb, err := h.heartbeats.RecordHeartbeat(c.Request.Context(), name, c.ClientIP(), metadata)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Failed to record heartbeat", Message: err.Error()})
		return
	}

	metrics.HeartbeatsTotal.WithLabelValues(name).Inc()
	c.JSON(http.StatusAccepted, hb)
}

func (h *HeartbeatHandler) ListHeartbeats(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	beats, err := h.heartbeats.ListHeartbeats(c.Request.Context(), id, limit)
	if err != nil {
		h.logger.Errorf("Failed to list heartbeats for service %d: %v", id, err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to list heartbeats", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, beats)
}

func (h *HeartbeatHandler) LatestHeartbeat(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	hb, err := h.heartbeats.LatestHeartbeat(c.Request.Context(), id)
	if err != nil {
		h.logger.Errorf("Failed to load latest heartbeat for service %d: %v", id, err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to load heartbeat", Message: err.Error()})
		return
	}
	if hb == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "No heartbeat recorded", Message: "service has not sent a heartbeat yet"})
		return
	}
	c.JSON(http.StatusOK, hb)
}
