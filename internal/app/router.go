package app

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/mnemos-app/mnemos-backend/internal/http/handlers"
	"github.com/mnemos-app/mnemos-backend/internal/http/middleware"
	"github.com/mnemos-app/mnemos-backend/internal/platform/logger"
)

type routerDeps struct {
	auth   *handlers.AuthHandler
	entry  *handlers.EntryHandler
	sweep  *handlers.SweepHandler
	sse    *handlers.SSEHandler
	health *handlers.HealthHandler
	parser middleware.TokenParser
}

func buildRouter(cfg Config, log *logger.Logger, deps routerDeps) *gin.Engine {
	if cfg.Mode == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(log))
	r.Use(otelgin.Middleware(serviceName))

	corsCfg := cors.DefaultConfig()
	if len(cfg.CORSOrigins) > 0 {
		corsCfg.AllowOrigins = cfg.CORSOrigins
	} else {
		corsCfg.AllowAllOrigins = true
	}
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization")
	corsCfg.MaxAge = 12 * time.Hour
	r.Use(cors.New(corsCfg))

	r.GET("/healthcheck", deps.health.Check)

	api := r.Group("/api")
	{
		api.POST("/register", deps.auth.Register)
		api.POST("/login", deps.auth.Login)

		authed := api.Group("", middleware.RequireAuth(deps.parser))
		{
			authed.POST("/entries", deps.entry.Create)
			authed.GET("/entries", deps.entry.List)
			authed.GET("/entries/search", deps.entry.Search)
			authed.GET("/entries/:id", deps.entry.Get)
			authed.PUT("/entries/:id", deps.entry.Update)
			authed.PATCH("/entries/:id", deps.entry.Update)
			authed.DELETE("/entries/:id", deps.entry.Delete)
			authed.POST("/entries/:id/relink", deps.entry.Relink)

			authed.GET("/graph", deps.entry.Graph)
			authed.GET("/sse/stream", deps.sse.Stream)
		}
	}

	internal := r.Group("/internal/jobs", middleware.RequireCronSecret(cfg.CronSecret))
	{
		internal.POST("/orphan-sweep", deps.sweep.Run)
	}

	return r
}
