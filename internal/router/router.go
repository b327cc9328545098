package router

import (
	"net/http"

	"dinein_backend/internal/handlers"
	"dinein_backend/internal/middleware"
	"dinein_backend/internal/models"
	"dinein_backend/internal/services"
	"dinein_backend/pkg/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Handlers groups everything the router dispatches to.
type Handlers struct {
	Visits    *handlers.VisitHandler
	Orders    *handlers.OrderHandler
	Payments  *handlers.PaymentHandler
	Callbacks *handlers.CallbackHandler
	Accounts  *handlers.AccountHandler
}

// Options carries the cross-cutting middleware dependencies.
type Options struct {
	Tokens         *utils.TokenManager
	AllowedOrigins []string
	RateLimiter    *middleware.RateLimiter
	Observer       middleware.HTTPObserver
	PaymentLogs    services.PaymentLogService
}

// defaultAllowedOrigins is used when no CORS origins are configured.
var defaultAllowedOrigins = []string{"http://localhost:3000", "http://localhost:3001"}

// Setup initializes the routing for the application.
func Setup(engine *gin.Engine, h Handlers, opts Options) {
	engine.Use(utils.GinLogger())
	if opts.Observer != nil {
		engine.Use(middleware.MetricsMiddleware(opts.Observer))
	}

	allowedOrigins := opts.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = defaultAllowedOrigins
	}
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = allowedOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	corsConfig.AllowCredentials = true
	engine.Use(cors.New(corsConfig))

	engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	auth := middleware.AuthMiddleware(opts.Tokens)

	webapp := engine.Group("/webapp/v1")
	webapp.Use(auth, middleware.RoleAuthMiddleware(models.RoleHost))
	{
		SetupHostVisitRoutes(webapp, h.Visits)
		SetupHostOrderRoutes(webapp, h.Orders)
		SetupHostPaymentRoutes(webapp, h.Payments)
	}

	mobile := engine.Group("/mobile/v1")
	mobile.Use(auth, middleware.RoleAuthMiddleware(models.RoleUser))
	{
		SetupGuestVisitRoutes(mobile, h.Visits)
		SetupGuestPaymentRoutes(mobile, h.Payments)
	}

	shared := engine.Group("/shared/v1")
	{
		SetupAccountRoutes(shared, auth, h.Accounts)
		shared.POST("/eskiz-callback/", h.Callbacks.Eskiz)
	}

	SetupProviderCallbackRoutes(engine.Group("/api/v1"), h.Callbacks, opts.PaymentLogs, opts.RateLimiter)
}
