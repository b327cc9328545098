package router

import (
	"dinein_backend/internal/handlers"
	"dinein_backend/internal/middleware"
	"dinein_backend/internal/models"
	"dinein_backend/internal/services"

	"github.com/gin-gonic/gin"
)

// SetupHostVisitRoutes sets up the visit lifecycle routes for venue staff.
func SetupHostVisitRoutes(hostGroup *gin.RouterGroup, visitHandler *handlers.VisitHandler) {
	visitRoutes := hostGroup.Group("/visits")
	{
		visitRoutes.POST("/book/", visitHandler.BookByHost)
		visitRoutes.GET("/", visitHandler.ListVisits)
		visitRoutes.GET("/:id/", visitHandler.GetVisit)
		visitRoutes.POST("/:id/start/", visitHandler.Start)
		visitRoutes.POST("/:id/finish/", visitHandler.Finish)
		visitRoutes.POST("/:id/open-bill/", visitHandler.OpenBill)
		visitRoutes.POST("/:id/cancel/", visitHandler.Cancel)
	}
}

// SetupHostOrderRoutes sets up the order routes nested under a visit.
func SetupHostOrderRoutes(hostGroup *gin.RouterGroup, orderHandler *handlers.OrderHandler) {
	orderRoutes := hostGroup.Group("/visits/:id/order")
	{
		orderRoutes.GET("/", orderHandler.GetOrder)
		orderRoutes.PATCH("/", orderHandler.UpdateOrder)
		orderRoutes.POST("/items/", orderHandler.AddItem)
		orderRoutes.POST("/items/:item_id/serve/", orderHandler.ServeItem)
		orderRoutes.POST("/items/:item_id/cancel/", orderHandler.CancelItem)
	}
}

func SetupHostPaymentRoutes(hostGroup *gin.RouterGroup, paymentHandler *handlers.PaymentHandler) {
	hostGroup.POST("/visits/:id/payments/manual/", paymentHandler.RecordManualPayment)
}

// SetupGuestVisitRoutes sets up the self-service visit routes for the mobile app.
func SetupGuestVisitRoutes(mobileGroup *gin.RouterGroup, visitHandler *handlers.VisitHandler) {
	visitRoutes := mobileGroup.Group("/visits")
	{
		visitRoutes.POST("/book/", visitHandler.BookByUser)
		visitRoutes.GET("/:id/", visitHandler.GetVisit)
		visitRoutes.POST("/:id/guests/", visitHandler.InviteGuest)
		visitRoutes.POST("/:id/join/", visitHandler.JoinVisit)
	}
}

func SetupGuestPaymentRoutes(mobileGroup *gin.RouterGroup, paymentHandler *handlers.PaymentHandler) {
	mobileGroup.POST("/transaction-create/", paymentHandler.CreateTransaction)
	mobileGroup.GET("/transaction-detail/:id/", paymentHandler.GetTransaction)
}

// SetupAccountRoutes sets up the authenticated account routes shared by both apps.
func SetupAccountRoutes(sharedGroup *gin.RouterGroup, auth gin.HandlerFunc, accountHandler *handlers.AccountHandler) {
	meRoutes := sharedGroup.Group("/users/me")
	meRoutes.Use(auth)
	{
		meRoutes.GET("/", accountHandler.GetMe)
		meRoutes.DELETE("/", accountHandler.DeleteMe)
	}
}

// SetupProviderCallbackRoutes registers the payment provider webhooks. Each
// route runs the payment log first, then the rate limiter, then the handler,
// so throttled calls are logged too. Throttled calls get a 429 in the
// provider's own format.
func SetupProviderCallbackRoutes(apiGroup *gin.RouterGroup, callbackHandler *handlers.CallbackHandler, logs services.PaymentLogService, limiter *middleware.RateLimiter) {
	chain := func(provider models.Provider, method string, throttled, h gin.HandlerFunc) []gin.HandlerFunc {
		out := make([]gin.HandlerFunc, 0, 3)
		if logs != nil {
			out = append(out, middleware.PaymentLogMiddleware(logs, provider, method))
		}
		if limiter != nil {
			out = append(out, limiter.Middleware(throttled))
		}
		return append(out, h)
	}

	apiGroup.POST("/click-prepare/", chain(models.ProviderClick, "prepare", callbackHandler.ClickThrottled, callbackHandler.ClickPrepare)...)
	apiGroup.POST("/click-complete/", chain(models.ProviderClick, "complete", callbackHandler.ClickThrottled, callbackHandler.ClickComplete)...)
	apiGroup.POST("/payme/", chain(models.ProviderPayme, "", callbackHandler.PaymeThrottled, callbackHandler.Payme)...)
	apiGroup.POST("/paylov/", chain(models.ProviderPaylov, "", callbackHandler.PaylovThrottled, callbackHandler.Paylov)...)
}
