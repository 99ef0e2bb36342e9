package handlers

import (
	"net/http"
	"strconv"

	"pulseguard/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ServiceHandler exposes the monitored-service registry.
type ServiceHandler struct {
	heartbeats *services.HeartbeatService
	logger     *logrus.Logger
}

func NewServiceHandler(heartbeats *services.HeartbeatService, logger *logrus.Logger) *ServiceHandler {
	return &ServiceHandler{heartbeats: heartbeats, logger: logger}
}

func RegisterServiceRoutes(rg *gin.RouterGroup, h *ServiceHandler) {
	rg.POST("/services", h.CreateService)
	rg.GET("/services", h.ListServices)
	rg.GET("/services/:id", h.GetService)
	rg.PUT("/services/:id", h.UpdateService)
	rg.DELETE("/services/:id", h.DeleteService)
}

func (h *ServiceHandler) CreateService(c *gin.Context) {
	var req services.ServiceCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Message: err.Error()})
		return
	}

	svc, err := h.heartbeats.CreateService(c.Request.Context(), &req)
	if err != nil {
		h.logger.Errorf("Failed to create service: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to create service", Message: err.Error()})
		return
	}
	c.JSON(http.StatusCreated, svc)
}

func (h *ServiceHandler) ListServices(c *gin.Context) {
	svcs, err := h.heartbeats.ListServices(c.Request.Context())
	if err != nil {
		h.logger.Errorf("Failed to list services: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to list services", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, svcs)
}

func (h *ServiceHandler) GetService(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	svc, err := h.heartbeats.GetService(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Service not found", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, svc)
}

func (h *ServiceHandler) UpdateService(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req services.ServiceUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Message: err.Error()})
		return
	}
	svc, err := h.heartbeats.UpdateService(c.Request.Context(), id, &req)
	if err != nil {
		h.logger.Errorf("Failed to update service %d: %v", id, err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to update service", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, svc)
}

func (h *ServiceHandler) DeleteService(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.heartbeats.DeleteService(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Failed to delete service", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "service deleted"})
}

// parseID reads the :id path param, writing the error response itself.
func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid ID", Message: "ID must be a valid number"})
		return 0, false
	}
	return uint(id), true
}
