package router

import (
	"net/http"

	"library_pos_backend/internal/decode"
	"library_pos_backend/internal/handlers"
	"library_pos_backend/internal/middleware"
	"library_pos_backend/internal/services"
	"library_pos_backend/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies are the services the HTTP layer is built on.
type Dependencies struct {
	Tokens    *utils.TokenManager
	Auth      services.AuthService
	Inventory services.InventoryService
	Bills     services.BillService
	Scans     services.ScanService
	Decoder   decode.Gateway
	// Gatherer backs /metrics; nil serves the default registry.
	Gatherer prometheus.Gatherer
	// Roles allowed on authenticated routes.
	Roles []string
}

// Setup initializes the routing for the application.
func Setup(engine *gin.Engine, deps Dependencies) {
	handlers.RegisterValidators()

	if len(deps.Roles) == 0 {
		deps.Roles = []string{"Admin", "Staff"}
	}

	// Initialize Handlers
	authHandler := handlers.NewAuthHandler(deps.Auth, deps.Scans)
	inventoryHandler := handlers.NewInventoryHandler(deps.Inventory)
	transactionHandler := handlers.NewTransactionHandler(deps.Inventory)
	billHandler := handlers.NewBillHandler(deps.Bills)
	scanHandler := handlers.NewScanHandler(deps.Scans, deps.Decoder)

	engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	metricsHandler := promhttp.Handler()
	if deps.Gatherer != nil {
		metricsHandler = promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})
	}
	engine.GET("/metrics", gin.WrapH(metricsHandler))

	apiV1 := engine.Group("/api/v1")

	// Public authentication routes
	SetupPublicAuthRoutes(apiV1.Group("/auth"), authHandler)

	authenticated := apiV1.Group("")
	authenticated.Use(middleware.AuthMiddleware(deps.Tokens), middleware.RoleAuthMiddleware(deps.Roles...))
	{
		SetupAuthenticatedAuthRoutes(authenticated.Group("/auth"), authHandler)
		SetupBookRoutes(authenticated, inventoryHandler)
		SetupTransactionRoutes(authenticated, transactionHandler, inventoryHandler)
		SetupBillRoutes(authenticated, billHandler)
		SetupScanRoutes(authenticated, scanHandler)
	}
}

func SetupPublicAuthRoutes(group *gin.RouterGroup, authHandler *handlers.AuthHandler) {
	group.POST("/login", authHandler.LoginUser)
}

func SetupAuthenticatedAuthRoutes(group *gin.RouterGroup, authHandler *handlers.AuthHandler) {
	group.POST("/logout", authHandler.LogoutUser)
	group.GET("/me", authHandler.GetCurrentUser)
}
