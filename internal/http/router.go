// Package httpapi wires the Gin transport to application services: tracing,
// correlation ids, logging, recovery, metrics, rate limiting, CORS, security
// headers, the websocket upgrade endpoint, and the versioned REST API.
//
// Middleware ordering is deliberate: tracing wraps everything, RequestID runs
// before logging so every log and error envelope carries the correlation id,
// and Recovery runs after the logger so panics are captured with context.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/uplift-app/go-support-backend/internal/auth"
	"github.com/uplift-app/go-support-backend/internal/config"
	"github.com/uplift-app/go-support-backend/internal/http/handlers"
	"github.com/uplift-app/go-support-backend/internal/http/middleware"
	"github.com/uplift-app/go-support-backend/internal/ws"
)

// Deps carries everything the router mounts. All fields are required.
type Deps struct {
	Cfg       config.Config
	Validator *auth.Validator
	Handler   *handlers.Handler
	Gateway   *ws.Gateway
}

// RegisterRoutes attaches all middleware and endpoints to the engine.
func RegisterRoutes(r *gin.Engine, d Deps) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(d.Cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured access logging
	r.Use(middleware.Logger())

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Compression; the websocket upgrade and the Prometheus scrape are
	// exempt (the former hijacks the connection).
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/ws", "/metrics"})))

	// 7) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 8) Token-bucket rate limiter per user/IP
	rl := middleware.NewRateLimiter(d.Cfg.RateRPS, d.Cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	// 9) CORS posture (safe defaults: allow all when none configured)
	if len(d.Cfg.CORS.AllowedOrigins) == 0 {
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     d.Cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and the request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   d.Cfg.Security.EnableHSTS,
		HSTSMaxAge:   d.Cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Operational visibility; no auth so dashboards can scrape it.
	r.GET("/circuits/status", d.Handler.GetCircuitStatus)

	// Websocket upgrade; authentication happens inside the session handshake
	// because browsers cannot set headers on websocket connects.
	r.GET("/ws", d.Gateway.Handle)

	// Versioned REST API; every route requires a valid bearer token.
	api := r.Group("/api/v1")
	api.Use(auth.Require(d.Validator))
	{
		api.GET("/dashboard", d.Handler.GetDashboard)
		api.GET("/rooms/:id/messages", d.Handler.ListRoomMessages)
		api.DELETE("/account", d.Handler.DeleteAccount)
	}
}

// limitBody caps the request body for all endpoints via http.MaxBytesReader;
// oversized bodies error on read downstream.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
