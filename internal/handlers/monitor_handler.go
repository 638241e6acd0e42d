package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/proctoring-service/internal/repositories"
	"github.com/SAP-F-2025/proctoring-service/internal/services"
	"github.com/SAP-F-2025/proctoring-service/internal/utils"
)

type MonitorHandler struct {
	BaseHandler
	monitorService services.MonitorService
}

func NewMonitorHandler(monitorService services.MonitorService, logger utils.Logger) *MonitorHandler {
	return &MonitorHandler{
		BaseHandler:    NewBaseHandler(logger),
		monitorService: monitorService,
	}
}

// GetOverview returns the proctor dashboard overview card
// @Summary Monitoring overview
// @Description Returns aggregate session and violation statistics
// @Tags monitor
// @Produce json
// @Success 200 {object} services.MonitorOverview
// @Failure 403 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /monitor/overview [get]
func (h *MonitorHandler) GetOverview(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return
	}

	overview, err := h.monitorService.Overview(c.Request.Context(), userID.(string))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, overview)
}

// GetActiveSessions lists currently running sessions
// @Summary Active sessions
// @Description Lists live sessions with computed time remaining
// @Tags monitor
// @Produce json
// @Success 200 {array} services.SessionResponse
// @Failure 403 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /monitor/active [get]
func (h *MonitorHandler) GetActiveSessions(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return
	}

	sessions, err := h.monitorService.ActiveSessions(c.Request.Context(), userID.(string))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, sessions)
}

// GetFlaggedSessions lists sessions flagged for review
// @Summary Flagged sessions
// @Description Lists flagged sessions for proctor review
// @Tags monitor
// @Produce json
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} services.SessionListResponse
// @Failure 403 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /monitor/flagged [get]
func (h *MonitorHandler) GetFlaggedSessions(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return
	}

	filters := repositories.SessionFilters{}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filters.Limit = limit
	}
	if offset, err := strconv.Atoi(c.DefaultQuery("offset", "0")); err == nil {
		filters.Offset = offset
	}

	sessions, err := h.monitorService.FlaggedSessions(c.Request.Context(), filters, userID.(string))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, sessions)
}

func (h *MonitorHandler) handleServiceError(c *gin.Context, err error) {
	var permissionError *services.PermissionError
	if errors.As(err, &permissionError) {
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Access denied",
			Details: map[string]interface{}{
				"resource": permissionError.Resource,
				"action":   permissionError.Action,
				"reason":   permissionError.Reason,
			},
		})
		return
	}

	h.LogError(c, err, "Unhandled monitor error")
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Message: "Internal server error",
	})
}
