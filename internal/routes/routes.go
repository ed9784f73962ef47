// internal/routes/routes.go
package routes

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"serial-commander/internal/config"
	"serial-commander/internal/handler"
	"serial-commander/internal/middleware"
	"serial-commander/internal/utils"
)

// Router holds all dependencies for routing
type Router struct {
	config  *config.Config
	logger  *zap.Logger
	runner  handler.CommandRunner
	version string
}

// NewRouter creates a new router instance
func NewRouter(config *config.Config, logger *zap.Logger, runner handler.CommandRunner, version string) *Router {
	return &Router{
		config:  config,
		logger:  logger,
		runner:  runner,
		version: version,
	}
}

// SetupRouter creates and configures the Gin router
func (r *Router) SetupRouter() *gin.Engine {
	if r.config.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	r.addMiddleware(router)
	r.addRoutes(router)
	return router
}

// addMiddleware adds middleware to the router
func (r *Router) addMiddleware(router *gin.Engine) {
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.RecoveryMiddleware(r.logger))

	serviceLogger := utils.NewServiceLogger(r.logger, "http-server")
	router.Use(middleware.LoggingMiddleware(serviceLogger))

	router.Use(middleware.CORSMiddleware(&r.config.Server))

	r.logger.Debug("Middleware configured")
}

// addRoutes sets up all application routes
func (r *Router) addRoutes(router *gin.Engine) {
	healthHandler := handler.NewHealthHandler(r.runner, "serial-commander", r.version)
	commandHandler := handler.NewCommandHandler(r.runner, r.logger)

	router.GET("/health", healthHandler.HealthCheck)
	router.GET("/live", healthHandler.LivenessCheck)

	apiV1 := router.Group("/api/v1")
	{
		apiV1.POST("/commands", commandHandler.ExecuteCommand)
	}

	r.logger.Debug("All routes configured successfully")
}
