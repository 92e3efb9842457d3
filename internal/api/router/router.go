package router

import (
	"log/slog"
	"net/http"

	"github.com/cuongbtq/invoice-notifier/internal/api/handler"
	"github.com/gin-gonic/gin"
)

const (
	serviceName = "invoice-api-service"
	adminRealm  = "Job Admin"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	r.GET("/health", func(c *gin.Context) {
		if deps.HealthCheck != nil {
			if err := deps.HealthCheck(c.Request.Context()); err != nil {
				deps.Logger.Error("Health check failed", slog.String("error", err.Error()))
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":  "unhealthy",
					"service": serviceName,
				})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": serviceName,
		})
	})

	jobHandler := handler.NewJobHandler(deps)
	providerHandler := handler.NewProviderHandler(deps)

	api := r.Group("", BearerAuthMiddleware(deps.APIToken))
	{
		api.GET("/providers", providerHandler.ListProviders)
		api.POST("/add-job", jobHandler.AddJob)
		api.GET("/job/:jobId", jobHandler.GetJob)
	}

	admin := r.Group("/admin", gin.BasicAuthForRealm(gin.Accounts{
		deps.AdminUsername: deps.AdminPassword,
	}, adminRealm))
	{
		admin.GET("/jobs", jobHandler.ListJobs)
	}

	return r
}
