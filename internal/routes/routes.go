// internal/routes/routes.go
package routes

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"boardtester/internal/config"
	"boardtester/internal/handler"
	"boardtester/internal/middleware"
	"boardtester/internal/utils"
)

// Router holds all dependencies for routing
type Router struct {
	config       *config.Config
	logger       *zap.Logger
	panelHandler *handler.PanelHandler
	socketHub    *handler.PanelSocketHandler
}

// NewRouter creates a new router instance
func NewRouter(
	config *config.Config,
	logger *zap.Logger,
	panelHandler *handler.PanelHandler,
	socketHub *handler.PanelSocketHandler,
) *Router {
	return &Router{
		config:       config,
		logger:       logger,
		panelHandler: panelHandler,
		socketHub:    socketHub,
	}
}

// SetupRouter creates and configures the Gin router
func (r *Router) SetupRouter() *gin.Engine {
	if r.config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	r.addMiddleware(router)
	r.addRoutes(router)

	return router
}

// addMiddleware adds middleware to the router
func (r *Router) addMiddleware(router *gin.Engine) {
	router.Use(middleware.RecoveryMiddleware(r.logger))
	router.Use(middleware.RequestIDMiddleware())

	serviceLogger := utils.NewServiceLogger(r.logger, "http-server")
	router.Use(middleware.LoggingMiddleware(serviceLogger))

	router.Use(middleware.CORSMiddleware(&r.config.Panel))

	r.logger.Info("Middleware configured")
}

// addRoutes sets up all application routes
func (r *Router) addRoutes(router *gin.Engine) {
	router.GET("/", handler.ServePanelPage)
	router.GET("/health", r.panelHandler.HealthCheck)

	apiV1 := router.Group("/api/v1")
	{
		test := apiV1.Group("/test")
		{
			test.POST("/start", r.panelHandler.StartTest)
			test.POST("/reset", r.panelHandler.ResetTest)
			test.GET("/status", r.panelHandler.GetStatus)
		}
	}

	ws := router.Group("/ws")
	{
		ws.GET("/panel", r.socketHub.HandlePanelConnection)
	}

	r.logger.Info("All routes configured successfully")
}
