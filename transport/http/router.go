package http

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/promox/paygate"
	"github.com/layer-3/promox/service"
)

// Dependencies are the services the router exposes
type Dependencies struct {
	Auth          *service.AuthService
	Authenticator service.Authenticator
	Coupons       *service.CouponService
	Gate          *paygate.Gate
	Cookies       CookieConfig
	Logger        *slog.Logger
}

// SetupRouter sets up the Gin router
func SetupRouter(deps Dependencies) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(deps.Logger))

	authHandlers := NewAuthHandlers(deps.Auth, deps.Cookies, deps.Logger)
	couponHandlers := NewCouponHandlers(deps.Coupons, deps.Logger)
	requireAuth := AuthMiddleware(deps.Authenticator, deps.Logger)

	session := router.Group("/session")
	{
		session.POST("/nonce", authHandlers.Nonce)
		session.POST("/verify", authHandlers.Verify)
		session.POST("/logout", authHandlers.Logout)
	}

	router.GET("/me", requireAuth, authHandlers.Me)

	coupons := router.Group("/coupons")
	{
		coupons.GET("", couponHandlers.List)
		coupons.GET("/:id", couponHandlers.Get)
		coupons.POST("", requireAuth, couponHandlers.Create)
		coupons.PUT("/:id", requireAuth, couponHandlers.Update)
		coupons.DELETE("/:id", requireAuth, couponHandlers.Delete)
	}

	router.GET("/user/coupons", requireAuth, couponHandlers.UserCoupons)

	// Paid content
	router.GET("/secret/:id", deps.Gate.Middleware(), couponHandlers.Secret)

	return router
}
