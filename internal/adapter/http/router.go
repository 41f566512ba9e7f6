package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	. "todolist/internal/adapter/http/helper"
	"todolist/internal/adapter/http/middleware"
	"todolist/internal/core/telemetry"
	"todolist/pkg/config"
	"todolist/pkg/logger"
)

type RouterConfig struct {
	App      *config.AppConfig
	Logger   *logger.Logger
	Metrics  *telemetry.AppMetrics
	Gatherer prometheus.Gatherer
}

func SetupRouter(container *Container, rc RouterConfig) *gin.Engine {
	cfg := rc.App

	if cfg == nil {
		cfg = config.GetDefaultConfig()
	}

	log := rc.Logger

	if log == nil {
		log = logger.NewNop()
	}

	router := gin.New()
	router.HandleMethodNotAllowed = false

	// forwarding headers count only when they come from a listed proxy
	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		log.Error("Invalid trusted proxies, trusting none", zap.Error(err))
		router.SetTrustedProxies(nil)
	}

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.NewHTTPSEnforcer(cfg.EnforceHTTPS, log,
		cfg.APIPrefix+"/health",
		cfg.APIPrefix+"/ready",
	).HTTPSMiddleware())
	router.Use(otelgin.Middleware(cfg.Telemetry.ServiceName))
	router.Use(middleware.Logging(log))

	if cfg.RateLimit.Enabled {
		router.Use(middleware.NewRateLimiter(cfg.RateLimit, cfg.APIPrefix, log, rc.Metrics).RateLimitMiddleware())
	}

	if rc.Metrics != nil {
		router.Use(middleware.Metrics(rc.Metrics))
	}

	router.Use(middleware.CORS())

	setupRoutes(router.Group(cfg.APIPrefix), container)

	if cfg.Telemetry.MetricsEnabled && rc.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(rc.Gatherer, promhttp.HandlerOpts{})))
	}

	if cfg.StaticDir != "" {
		router.NoRoute(middleware.SPA(cfg.StaticDir, cfg.APIPrefix))
	} else {
		router.NoRoute(func(c *gin.Context) {
			SendNotFoundError(c, "Route not found")
		})
	}

	return router
}

func setupRoutes(api *gin.RouterGroup, container *Container) {
	api.GET("/health", container.HealthHandler.Health)
	api.GET("/ready", container.HealthHandler.Ready)

	todos := api.Group("/todos")
	{
		todos.GET("", container.TodoHandler.ListTodos)
		todos.POST("", container.TodoHandler.CreateTodo)
		todos.GET("/:id", container.TodoHandler.GetTodo)
		todos.PUT("/:id", container.TodoHandler.UpdateTodo)
		todos.PATCH("/:id/toggle", container.TodoHandler.ToggleTodo)
		todos.DELETE("/:id", container.TodoHandler.DeleteTodo)
	}
}
