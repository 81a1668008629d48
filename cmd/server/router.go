package main

import (
	"net/http"
	"slices"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zfogg/listingboard/internal/auth"
	"github.com/zfogg/listingboard/internal/config"
	"github.com/zfogg/listingboard/internal/kernel"
	"github.com/zfogg/listingboard/internal/middleware"
)

// wsPath is served outside gin; the upgrade needs the raw connection
const wsPath = "/api/v1/ws"

// newHandler routes the websocket upgrade straight to the hub and everything
// else through the gin engine
func newHandler(cfg *config.Config, k *kernel.Kernel) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET "+wsPath, k.WebSocket())
	mux.Handle("/", newRouter(cfg, k))
	return mux
}

// newRouter mounts every route served by the ledger
func newRouter(cfg *config.Config, k *kernel.Kernel) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.TracingMiddleware(cfg.ServiceName)...)
	r.Use(middleware.GinLoggerMiddleware())
	r.Use(middleware.MetricsMiddleware())

	corsConfig := cors.DefaultConfig()
	if slices.Contains(cfg.CORSOrigins, "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.CORSOrigins
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", middleware.RequestIDHeader}
	corsConfig.ExposeHeaders = []string{"ETag", "Retry-After", middleware.RequestIDHeader}
	r.Use(cors.New(corsConfig))

	r.Use(gzip.Gzip(gzip.DefaultCompression))

	h := k.Handlers()
	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		identify := auth.OptionalAuthMiddleware(k.Tokens())
		limiter := middleware.NewRateLimiter(middleware.InteractionRateLimitConfig(cfg.RateLimitPerMinute))
		h.RegisterRoutes(api, identify, limiter.Middleware())

		// The upgrade itself is mounted by newHandler
		api.GET("/ws/metrics", auth.RequireAuthMiddleware(k.Tokens()), k.WebSocket().HandleMetrics)
	}

	return r
}
