package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"fintherapy-backend/internal/delivery/http/middleware"
	"fintherapy-backend/internal/delivery/http/response"
	"fintherapy-backend/internal/domain"
	"fintherapy-backend/internal/usecase"
)

type RouterDeps struct {
	AuthUC         domain.AuthUsecase
	OrphanUC       domain.OrphanUsecase
	HealthUC       usecase.HealthUsecase
	Webhook        WebhookDeps
	Sessions       middleware.SessionParser
	AdminRateLimit *middleware.RateLimiter
	Metrics        http.Handler
}

func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()

	// Global Middlewares
	r.Use(gin.Recovery())
	r.Use(gin.Logger())
	r.Use(middleware.RequestID())
	r.Use(middleware.SecurityHeadersMiddleware())
	r.Use(middleware.ErrorHandler())

	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	v1 := r.Group("/v1")

	v1.GET("/health", func(c *gin.Context) {
		if deps.HealthUC == nil {
			response.Success(c, http.StatusOK, "System operational", nil)
			return
		}
		status, healthy := deps.HealthUC.Check(c.Request.Context())
		if !healthy {
			response.Error(c, http.StatusServiceUnavailable, "System degraded", status)
			return
		}
		response.Success(c, http.StatusOK, "System operational", status)
	})

	v1.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Server-to-server, authenticated by signature
	NewWebhookHandler(v1, deps.Webhook)

	// Protected routes
	protected := v1.Group("")
	protected.Use(middleware.AuthMiddleware(deps.Sessions, deps.AuthUC, deps.Webhook.Audit))
	{
		NewAuthHandler(protected, deps.AuthUC)

		admin := protected.Group("/admin")
		admin.Use(middleware.RequireRole(deps.Webhook.Audit, domain.RoleSuperAdmin))
		if deps.AdminRateLimit != nil {
			admin.Use(deps.AdminRateLimit.Middleware())
		}
		NewAdminHandler(admin, deps.OrphanUC)
	}

	return r
}
