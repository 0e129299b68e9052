package httpapi

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/casefunnel/lead-intake/internal/config"
	"github.com/casefunnel/lead-intake/internal/ratelimit"
	"github.com/casefunnel/lead-intake/pkg/logger"
)

// RouterDeps carries everything the router wires together.
type RouterDeps struct {
	Webhook        *WebhookHandler
	PaymentWebhook *PaymentWebhookHandler
	Claim          *ClaimHandler
	Notifications  *NotificationHandler
	Extract        *ExtractHandler
	Health         *HealthHandler

	PublicLimiter        *ratelimit.Limiter
	AuthenticatedLimiter *ratelimit.Limiter
	SensitiveLimiter     *ratelimit.Limiter
}

// NewRouter builds the gin engine with all routes and middleware.
func NewRouter(cfg *config.Config, deps RouterDeps) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestID())
	router.Use(RequestLogger())

	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		logger.Log.Warn("Failed to set trusted proxies", zap.Error(err))
	}

	if len(cfg.Server.CORSOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.Server.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
			AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With", "X-Request-ID"},
			AllowCredentials: true,
		}))
	}

	// Operational endpoints, never rate limited.
	router.GET("/health", deps.Health.HandleHealth)
	router.GET("/ready", deps.Health.HandleReady)
	if cfg.Metrics.Enabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	// Vendor webhooks. The payments webhook shares the public limiter:
	// signature verification is the real gate, the limiter only caps abuse.
	webhooks := router.Group("/webhooks")
	webhooks.Use(RateLimit(deps.PublicLimiter))
	{
		webhooks.POST("/conversation", deps.Webhook.HandleConversationWebhook)
		webhooks.POST("/payments", deps.PaymentWebhook.HandlePaymentWebhook)
	}

	// Dashboard API, token required.
	api := router.Group("/api")
	api.Use(Auth(cfg.Auth.JWTSecret))
	api.Use(RateLimit(deps.AuthenticatedLimiter))
	{
		api.GET("/notifications", deps.Notifications.HandleList)
		api.POST("/notifications/:id/read", deps.Notifications.HandleMarkRead)

		claims := api.Group("/leads")
		claims.Use(RateLimit(deps.SensitiveLimiter))
		claims.POST("/:id/claim", deps.Claim.HandleClaim)
	}

	// Operations endpoints behind the shared internal token.
	internal := router.Group("/internal")
	internal.Use(InternalAuth(cfg.Auth.InternalToken))
	internal.Use(RateLimit(deps.SensitiveLimiter))
	{
		internal.POST("/extract", deps.Extract.HandleExtract)
	}

	return router
}
