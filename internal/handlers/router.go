package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/proctoring-service/internal/config"
	"github.com/SAP-F-2025/proctoring-service/internal/models"
	"github.com/SAP-F-2025/proctoring-service/internal/repositories"
	"github.com/SAP-F-2025/proctoring-service/internal/services"
	"github.com/SAP-F-2025/proctoring-service/internal/utils"
	"github.com/SAP-F-2025/proctoring-service/internal/validator"
)

type HandlerManager struct {
	sessionHandler *SessionHandler
	monitorHandler *MonitorHandler
	reportHandler  *ReportHandler
	authMiddleware *CasdoorAuthMiddleware
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	validator *validator.Validator,
	logger utils.Logger,
	casdoorConfig config.CasdoorConfig,
	userRepo repositories.UserRepository,
) *HandlerManager {
	authMiddleware := NewCasdoorAuthMiddleware(casdoorConfig, userRepo)

	return &HandlerManager{
		sessionHandler: NewSessionHandler(serviceManager.Proctoring(), validator, logger),
		monitorHandler: NewMonitorHandler(serviceManager.Monitor(), logger),
		reportHandler:  NewReportHandler(serviceManager.Report(), logger),
		authMiddleware: authMiddleware,
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	// API v1 routes with authentication
	v1 := router.Group("/api/v1")
	v1.Use(hm.authMiddleware.AuthMiddleware())
	{
		// Session routes
		sessions := v1.Group("/sessions")
		{
			// Lifecycle - exam clients and staff
			sessions.POST("", hm.sessionHandler.StartSession)
			sessions.GET("", hm.sessionHandler.ListSessions)
			sessions.GET("/:id", hm.sessionHandler.GetSession)
			sessions.POST("/:id/submit", hm.sessionHandler.SubmitSession)
			sessions.GET("/:id/time-remaining", hm.sessionHandler.GetTimeRemaining)

			// Exam client telemetry
			sessions.PUT("/:id/progress", hm.sessionHandler.UpdateProgress)
			sessions.PUT("/:id/devices", hm.sessionHandler.UpdateDeviceStatus)

			// Monitoring signal ingest
			sessions.POST("/:id/violations", hm.sessionHandler.IngestViolation)
			sessions.GET("/:id/violations", hm.sessionHandler.GetViolations)

			// Proctor interventions - Proctors, Teachers and Admins only
			sessions.POST("/:id/terminate", hm.authMiddleware.RequireRoleMiddleware(models.RoleProctor, models.RoleTeacher, models.RoleAdmin), hm.sessionHandler.TerminateSession)
			sessions.PUT("/:id/flag", hm.authMiddleware.RequireRoleMiddleware(models.RoleProctor, models.RoleTeacher, models.RoleAdmin), hm.sessionHandler.FlagSession)
		}

		// Violation review routes - Proctors, Teachers and Admins only
		violations := v1.Group("/violations")
		violations.Use(hm.authMiddleware.RequireRoleMiddleware(models.RoleProctor, models.RoleTeacher, models.RoleAdmin))
		{
			violations.POST("/:violation_id/review", hm.sessionHandler.ReviewViolation)
		}

		// Monitoring dashboard routes - Proctors, Teachers and Admins only
		monitor := v1.Group("/monitor")
		monitor.Use(hm.authMiddleware.RequireRoleMiddleware(models.RoleProctor, models.RoleTeacher, models.RoleAdmin))
		{
			monitor.GET("/overview", hm.monitorHandler.GetOverview)
			monitor.GET("/active", hm.monitorHandler.GetActiveSessions)
			monitor.GET("/flagged", hm.monitorHandler.GetFlaggedSessions)
		}

		// Report routes - Proctors, Teachers and Admins only
		reports := v1.Group("/reports")
		reports.Use(hm.authMiddleware.RequireRoleMiddleware(models.RoleProctor, models.RoleTeacher, models.RoleAdmin))
		{
			reports.GET("/sessions/:id/audit", hm.reportHandler.DownloadSessionAudit)
		}
	}

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"service": "proctoring-service",
		})
	})
}
