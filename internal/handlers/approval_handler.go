package handlers

import (
	"encoding/json"
	"net/http"

	"pulseguard/internal/middleware"
	"pulseguard/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ApprovalHandler exposes the Slack interactivity webhook plus operator
// endpoints for inspecting and deciding approval requests out of band.
type ApprovalHandler struct {
	approvals *services.ApprovalService
	logger    *logrus.Logger
}

func NewApprovalHandler(approvals *services.ApprovalService, logger *logrus.Logger) *ApprovalHandler {
	return &ApprovalHandler{approvals: approvals, logger: logger}
}

// RegisterWebhookRoutes mounts the signature-verified Slack callback.
func RegisterWebhookRoutes(r *gin.Engine, h *ApprovalHandler, signingSecret string) {
	r.POST("/webhooks/slack/interactions",
		middleware.SlackSignatureMiddleware(signingSecret),
		h.SlackInteraction)
}

// RegisterApprovalRoutes mounts the operator endpoints.
func RegisterApprovalRoutes(rg *gin.RouterGroup, h *ApprovalHandler) {
	rg.GET("/executions/:id/approval", h.GetApproval)
	rg.POST("/executions/:id/approve", h.Approve)
	rg.POST("/executions/:id/reject", h.Reject)
}

// SlackInteraction handles button clicks. Slack delivers the interaction
// as a form post with the JSON structure in the `payload` field. Every
// malformed input yields a structured result; this endpoint never 500s
// on bad payloads.
func (h *ApprovalHandler) SlackInteraction(c *gin.Context) {
	raw := c.PostForm("payload")
	if raw == "" {
		c.JSON(http.StatusBadRequest, services.ApprovalResult{Success: false, Message: "missing payload field"})
		return
	}

	var payload services.SlackInteractionPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		c.JSON(http.StatusBadRequest, services.ApprovalResult{Success: false, Message: "malformed payload: " + err.Error()})
		return
	}

	result := h.approvals.HandleSlackInteraction(c.Request.Context(), payload)
	if !result.Success {
		h.logger.Warnf("slack interaction rejected: %s", result.Message)
		c.JSON(http.StatusOK, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *ApprovalHandler) GetApproval(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	req, err := h.approvals.GetApprovalRequestByExecution(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to load approval request", Message: err.Error()})
		return
	}
	if req == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "No approval request", Message: "no approval request found for execution"})
		return
	}
	c.JSON(http.StatusOK, req)
}

type decisionRequest struct {
	Reason *string `json:"reason"`
}

// Approve records an approval decision on behalf of the authenticated
// operator.
func (h *ApprovalHandler) Approve(c *gin.Context) {
	h.decide(c, true)
}

// Reject records a rejection decision on behalf of the authenticated
// operator.
func (h *ApprovalHandler) Reject(c *gin.Context) {
	h.decide(c, false)
}

func (h *ApprovalHandler) decide(c *gin.Context, approve bool) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req decisionRequest
	_ = c.ShouldBindJSON(&req)

	decidedBy := c.GetString(middleware.ContextSubjectKey)
	if decidedBy == "" {
		decidedBy = "operator"
	}

	var result services.ApprovalResult
	if approve {
		result = h.approvals.ApproveRequest(c.Request.Context(), id, decidedBy, req.Reason)
	} else {
		result = h.approvals.RejectRequest(c.Request.Context(), id, decidedBy, req.Reason)
	}

	status := http.StatusOK
	if !result.Success {
		status = http.StatusConflict
	}
	c.JSON(status, result)
}
