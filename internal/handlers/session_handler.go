package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/proctoring-service/internal/services"
	"github.com/SAP-F-2025/proctoring-service/internal/utils"
	"github.com/SAP-F-2025/proctoring-service/internal/validator"
)

type SessionHandler struct {
	BaseHandler
	proctoringService services.ProctoringService
	validator         *validator.Validator
}

func NewSessionHandler(
	proctoringService services.ProctoringService,
	validator *validator.Validator,
	logger utils.Logger,
) *SessionHandler {
	return &SessionHandler{
		BaseHandler:       NewBaseHandler(logger),
		proctoringService: proctoringService,
		validator:         validator,
	}
}

// StartSession opens a proctored exam session
// @Summary Start proctored session
// @Description Starts a new proctored session for an assessment
// @Tags sessions
// @Accept json
// @Produce json
// @Param session body services.StartSessionRequest true "Start session data"
// @Success 201 {object} services.SessionResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /sessions [post]
func (h *SessionHandler) StartSession(c *gin.Context) {
	h.LogRequest(c, "Starting proctored session")

	var req services.StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return
	}

	session, err := h.proctoringService.Start(c.Request.Context(), &req, userID.(string))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, session)
}

// GetSession returns a session with its violation ledger
// @Summary Get proctored session
// @Description Returns a session with computed time remaining and violations
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} services.SessionResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /sessions/{id} [get]
func (h *SessionHandler) GetSession(c *gin.Context) {
	sessionID := c.Param("id")

	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return
	}

	session, err := h.proctoringService.GetByID(c.Request.Context(), sessionID, userID.(string))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// ListSessions lists sessions with filters
// @Summary List proctored sessions
// @Description Lists sessions filtered by status, student, assessment or flag
// @Tags sessions
// @Produce json
// @Param status query string false "Session status"
// @Param student_id query string false "Student ID"
// @Param assessment_id query int false "Assessment ID"
// @Param flagged_only query bool false "Flagged sessions only"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} services.SessionListResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /sessions [get]
func (h *SessionHandler) ListSessions(c *gin.Context) {
	var req services.SessionListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid query parameters",
			Details: err.Error(),
		})
		return
	}

	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return
	}

	sessions, err := h.proctoringService.List(c.Request.Context(), &req, userID.(string))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, sessions)
}

// SubmitSession completes a session by student submit
// @Summary Submit proctored session
// @Description Completes the session and stops the exam clock
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} services.SessionResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /sessions/{id}/submit [post]
func (h *SessionHandler) SubmitSession(c *gin.Context) {
	sessionID := c.Param("id")
	h.LogRequest(c, "Submitting proctored session", "session_id", sessionID)

	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return
	}

	session, err := h.proctoringService.Submit(c.Request.Context(), sessionID, userID.(string))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// TerminateSession force-ends a session for cause
// @Summary Terminate proctored session
// @Description Terminates a session with a required reason, recorded for audit
// @Tags sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param termination body services.TerminateSessionRequest true "Termination reason"
// @Success 200 {object} services.SessionResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /sessions/{id}/terminate [post]
func (h *SessionHandler) TerminateSession(c *gin.Context) {
	sessionID := c.Param("id")
	h.LogRequest(c, "Terminating proctored session", "session_id", sessionID)

	var req services.TerminateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return
	}

	session, err := h.proctoringService.Terminate(c.Request.Context(), sessionID, &req, userID.(string))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// IngestViolation records a monitoring signal against a session
// @Summary Ingest violation signal
// @Description Appends a violation to the session ledger and applies the flag policy
// @Tags violations
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param violation body services.ViolationSignalRequest true "Violation signal"
// @Success 201 {object} models.Violation
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /sessions/{id}/violations [post]
func (h *SessionHandler) IngestViolation(c *gin.Context) {
	sessionID := c.Param("id")

	var req services.ViolationSignalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	violation, err := h.proctoringService.IngestViolation(c.Request.Context(), sessionID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, violation)
}

// GetViolations returns the session's violation ledger
// @Summary Get session violations
// @Description Returns the violation ledger in arrival order
// @Tags violations
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {array} models.Violation
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /sessions/{id}/violations [get]
func (h *SessionHandler) GetViolations(c *gin.Context) {
	sessionID := c.Param("id")

	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return
	}

	violations, err := h.proctoringService.GetViolations(c.Request.Context(), sessionID, userID.(string))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, violations)
}

// ReviewViolation records a proctor's verdict on a violation
// @Summary Review violation
// @Description Marks a violation reviewed or dismissed with optional notes
// @Tags violations
// @Accept json
// @Produce json
// @Param violation_id path string true "Violation ID"
// @Param review body services.ReviewViolationRequest true "Review verdict"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /violations/{violation_id}/review [post]
func (h *SessionHandler) ReviewViolation(c *gin.Context) {
	violationID := c.Param("violation_id")
	h.LogRequest(c, "Reviewing violation", "violation_id", violationID)

	var req services.ReviewViolationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return
	}

	if err := h.proctoringService.ReviewViolation(c.Request.Context(), violationID, &req, userID.(string)); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Violation review recorded",
	})
}

// FlagSession toggles the review flag on a session
// @Summary Flag session for review
// @Description Sets or clears the review flag, allowed even after the session ends
// @Tags sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param flag body services.FlagSessionRequest true "Flag state"
// @Success 200 {object} services.SessionResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /sessions/{id}/flag [put]
func (h *SessionHandler) FlagSession(c *gin.Context) {
	sessionID := c.Param("id")
	h.LogRequest(c, "Setting session flag", "session_id", sessionID)

	var req services.FlagSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return
	}

	session, err := h.proctoringService.SetFlag(c.Request.Context(), sessionID, req.Flagged, userID.(string))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// UpdateProgress reports answered-question progress from the exam client
// @Summary Update session progress
// @Description Records the percentage of questions answered
// @Tags sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param progress body services.ProgressUpdateRequest true "Progress percentage"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /sessions/{id}/progress [put]
func (h *SessionHandler) UpdateProgress(c *gin.Context) {
	sessionID := c.Param("id")

	var req services.ProgressUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return
	}

	if err := h.proctoringService.SetProgress(c.Request.Context(), sessionID, req.Progress, userID.(string)); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Progress updated",
	})
}

// UpdateDeviceStatus records the exam client's device state
// @Summary Update device status
// @Description Records camera, microphone and screen sharing state
// @Tags sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param devices body services.DeviceStatusRequest true "Device state"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /sessions/{id}/devices [put]
func (h *SessionHandler) UpdateDeviceStatus(c *gin.Context) {
	sessionID := c.Param("id")

	var req services.DeviceStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return
	}

	if err := h.proctoringService.UpdateDeviceStatus(c.Request.Context(), sessionID, &req, userID.(string)); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Device status updated",
	})
}

// GetTimeRemaining returns the seconds left on the exam clock
// @Summary Get time remaining
// @Description Returns the server-computed seconds remaining for a session
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} map[string]int
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /sessions/{id}/time-remaining [get]
func (h *SessionHandler) GetTimeRemaining(c *gin.Context) {
	sessionID := c.Param("id")

	remaining, err := h.proctoringService.TimeRemaining(c.Request.Context(), sessionID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id":             sessionID,
		"time_remaining_seconds": remaining,
	})
}

// handleServiceError maps service errors to HTTP responses
func (h *SessionHandler) handleServiceError(c *gin.Context, err error) {
	// Handle custom error types first
	var validationErrors services.ValidationErrors
	if errors.As(err, &validationErrors) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: validationErrors,
		})
		return
	}

	var businessRuleError *services.BusinessRuleError
	if errors.As(err, &businessRuleError) {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Message: businessRuleError.Message,
			Details: map[string]interface{}{
				"rule": businessRuleError.Rule,
			},
		})
		return
	}

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

	// Handle specific session errors
	switch {
	case errors.Is(err, services.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Session not found",
		})
	case errors.Is(err, services.ErrSessionAlreadyEnded):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Session already ended",
		})
	case errors.Is(err, services.ErrSessionNotActive):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Session is not active",
		})
	case errors.Is(err, services.ErrStudentHasActive):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Student already has an active session",
		})
	case errors.Is(err, services.ErrInvalidTerminate):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Termination requires an actor and a reason",
		})
	case errors.Is(err, services.ErrViolationNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Violation not found",
		})
	case errors.Is(err, services.ErrUserNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "User not found",
		})
	case errors.Is(err, services.ErrReportNotReady):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Report cannot be generated for an active session",
		})
	default:
		h.LogError(c, err, "Unhandled service error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Message: "Internal server error",
		})
	}
}
