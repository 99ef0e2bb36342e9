package handlers

import (
	"net/http"
	"strconv"

	"pulseguard/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// PlaybookHandler exposes playbook and trigger-rule management plus
// execution queries.
type PlaybookHandler struct {
	playbooks *services.PlaybookService
	triggers  *services.TriggerService
	execs     *services.ExecutionService
	logger    *logrus.Logger
}

func NewPlaybookHandler(playbooks *services.PlaybookService, triggers *services.TriggerService, execs *services.ExecutionService, logger *logrus.Logger) *PlaybookHandler {
	return &PlaybookHandler{playbooks: playbooks, triggers: triggers, execs: execs, logger: logger}
}

func RegisterPlaybookRoutes(rg *gin.RouterGroup, h *PlaybookHandler) {
	rg.POST("/playbooks", h.CreatePlaybook)
	rg.GET("/playbooks", h.ListPlaybooks)
	rg.GET("/playbooks/:id", h.GetPlaybook)
	rg.DELETE("/playbooks/:id", h.DeletePlaybook)

	rg.POST("/triggers", h.CreateTrigger)
	rg.GET("/triggers", h.ListTriggers)
	rg.DELETE("/triggers/:id", h.DeleteTrigger)

	rg.GET("/executions", h.ListExecutions)
	rg.GET("/executions/:id", h.GetExecution)
}

func (h *PlaybookHandler) CreatePlaybook(c *gin.Context) {
	var req services.PlaybookCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Message: err.Error()})
		return
	}
	playbook, err := h.playbooks.CreatePlaybook(c.Request.Context(), &req)
	if err != nil {
		h.logger.Errorf("Failed to create playbook: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to create playbook", Message: err.Error()})
		return
	}
	c.JSON(http.StatusCreated, playbook)
}

func (h *PlaybookHandler) ListPlaybooks(c *gin.Context) {
	playbooks, err := h.playbooks.ListPlaybooks(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to list playbooks", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, playbooks)
}

func (h *PlaybookHandler) GetPlaybook(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	playbook, err := h.playbooks.GetPlaybook(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Playbook not found", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, playbook)
}

func (h *PlaybookHandler) DeletePlaybook(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.playbooks.DeletePlaybook(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusConflict, ErrorResponse{Error: "Failed to delete playbook", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "playbook deleted"})
}

func (h *PlaybookHandler) CreateTrigger(c *gin.Context) {
	var req services.TriggerCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Message: err.Error()})
		return
	}
	trig, err := h.triggers.CreateTrigger(c.Request.Context(), &req)
	if err != nil {
		h.logger.Errorf("Failed to create trigger: %v", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Failed to create trigger", Message: err.Error()})
		return
	}
	c.JSON(http.StatusCreated, trig)
}

func (h *PlaybookHandler) ListTriggers(c *gin.Context) {
	triggers, err := h.triggers.ListTriggers(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to list triggers", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, triggers)
}

func (h *PlaybookHandler) DeleteTrigger(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.triggers.DeleteTrigger(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Failed to delete trigger", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "trigger deleted"})
}

func (h *PlaybookHandler) ListExecutions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	execs, err := h.execs.ListExecutions(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to list executions", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, execs)
}

func (h *PlaybookHandler) GetExecution(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	exec, err := h.execs.GetExecution(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Execution not found", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, exec)
}
