package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/SAP-F-2025/proctoring-service/internal/events"
	"github.com/SAP-F-2025/proctoring-service/internal/repositories"
	"github.com/SAP-F-2025/proctoring-service/internal/session"
	"github.com/SAP-F-2025/proctoring-service/internal/validator"
)

// ServiceManagerConfig holds configuration for the service manager
type ServiceManagerConfig struct {
	EnableDebugLogging bool
	LogLevel           slog.Level

	// Service-specific configurations
	Proctoring ServiceConfig
	Monitor    ServiceConfig
	Report     ServiceConfig

	// Proctoring collaborators
	Publisher  events.EventPublisher
	Redis      *redis.Client
	QueueKey   string
	FlagPolicy session.FlagPolicy

	DefaultTimeout time.Duration
}

type ServiceConfig struct {
	Enabled      bool
	CacheEnabled bool
	CacheTTL     time.Duration
}

// serviceManager implements ServiceManager interface
type serviceManager struct {
	// Dependencies
	db        *gorm.DB
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
	config    ServiceManagerConfig

	// Shared live-session registry
	registry *session.Registry

	// Service instances
	proctoringService ProctoringService
	monitorService    MonitorService
	reportService     ReportService

	// Lifecycle management
	initialized bool
	shutdown    bool
	mu          sync.RWMutex
}

// NewServiceManager creates a new service manager with all dependencies
func NewServiceManager(db *gorm.DB, repo repositories.Repository, logger *slog.Logger, validator *validator.Validator, config ServiceManagerConfig) ServiceManager {
	return &serviceManager{
		db:        db,
		repo:      repo,
		logger:    logger,
		validator: validator,
		config:    config,
		registry:  session.NewRegistry(),
	}
}

// NewDefaultServiceManager creates a service manager with default configuration
func NewDefaultServiceManager(db *gorm.DB, repo repositories.Repository, logger *slog.Logger, validator *validator.Validator, publisher events.EventPublisher, redisClient *redis.Client, queueKey string, policy session.FlagPolicy) ServiceManager {
	config := ServiceManagerConfig{
		EnableDebugLogging: false,
		LogLevel:           slog.LevelInfo,

		Proctoring: ServiceConfig{
			Enabled: true,
		},
		Monitor: ServiceConfig{
			Enabled:      true,
			CacheEnabled: true,
			CacheTTL:     1 * time.Minute,
		},
		Report: ServiceConfig{
			Enabled: true,
		},

		Publisher:  publisher,
		Redis:      redisClient,
		QueueKey:   queueKey,
		FlagPolicy: policy,

		DefaultTimeout: 30 * time.Second,
	}

	return NewServiceManager(db, repo, logger, validator, config)
}

// Initialize sets up all services and their dependencies
func (sm *serviceManager) Initialize(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.initialized {
		return nil
	}

	sm.logger.Info("Initializing service manager")

	if sm.config.Proctoring.Enabled {
		sm.proctoringService = NewProctoringService(sm.repo, sm.db, sm.logger, sm.validator, ProctoringServiceDeps{
			Registry:  sm.registry,
			Publisher: sm.config.Publisher,
			Redis:     sm.config.Redis,
			QueueKey:  sm.config.QueueKey,
			Policy:    sm.config.FlagPolicy,
		})
		sm.logger.Info("Proctoring service initialized")
	}

	if sm.config.Monitor.Enabled {
		sm.monitorService = NewMonitorService(sm.repo, sm.db, sm.logger, sm.registry)
		sm.logger.Info("Monitor service initialized")
	}

	if sm.config.Report.Enabled {
		sm.reportService = NewReportService(sm.repo, sm.db, sm.logger)
		sm.logger.Info("Report service initialized")
	}

	// Reload sessions that were live before a restart so the expiry
	// sweeper keeps ticking them
	if sm.proctoringService != nil {
		count, err := sm.proctoringService.Rehydrate(ctx)
		if err != nil {
			return fmt.Errorf("failed to rehydrate live sessions: %w", err)
		}
		if count > 0 {
			sm.logger.Info("Live sessions rehydrated", "count", count)
		}
	}

	sm.initialized = true
	sm.logger.Info("Service manager initialized successfully")

	return nil
}

// Registry exposes the shared live-session registry for the expiry sweeper.
func (sm *serviceManager) Registry() *session.Registry {
	return sm.registry
}

// Service getters
func (sm *serviceManager) Proctoring() ProctoringService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		panic("service manager not initialized")
	}
	if sm.proctoringService == nil {
		panic("proctoring service not enabled")
	}
	return sm.proctoringService
}

func (sm *serviceManager) Monitor() MonitorService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		panic("service manager not initialized")
	}
	if sm.monitorService == nil {
		panic("monitor service not enabled")
	}
	return sm.monitorService
}

func (sm *serviceManager) Report() ReportService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		panic("service manager not initialized")
	}
	if sm.reportService == nil {
		panic("report service not enabled")
	}
	return sm.reportService
}

// HealthCheck verifies the manager and its storage dependencies are healthy
func (sm *serviceManager) HealthCheck(ctx context.Context) error {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		return fmt.Errorf("service manager not initialized")
	}
	if sm.shutdown {
		return fmt.Errorf("service manager is shut down")
	}

	return sm.repo.Ping(ctx)
}

// Shutdown stops all services gracefully
func (sm *serviceManager) Shutdown(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.shutdown {
		return nil
	}

	sm.logger.Info("Shutting down service manager")

	if sm.config.Publisher != nil {
		if err := sm.config.Publisher.Close(); err != nil {
			sm.logger.Error("Failed to close event publisher", "error", err)
		}
	}

	sm.shutdown = true
	sm.logger.Info("Service manager shut down")
	return nil
}
