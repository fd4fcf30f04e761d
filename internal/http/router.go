// Package httpapi wires the HTTP transport (Gin) to the review services,
// middleware and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, actor resolution, logging, panic recovery,
// metrics, CORS, security headers and rate limiting.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/research-review-backend/internal/config"
	"github.com/tbourn/research-review-backend/internal/http/docs"
	"github.com/tbourn/research-review-backend/internal/http/handlers"
	"github.com/tbourn/research-review-backend/internal/http/middleware"
)

// Services are the application services exposed over HTTP.
type Services struct {
	Research handlers.ResearchService
	Workflow handlers.WorkflowService
	Tracks   handlers.TrackService
	Reviews  handlers.ReviewService
}

// maxFilesPerRequest sizes the body cap for multipart uploads.
const maxFilesPerRequest = 8

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. ActorID: validate X-Actor-ID before it reaches logs
//  4. Logger: structured logs with redacted query
//  5. Recovery: capture panics after logger
//  6. Body size limiter
//  7. Metrics
//  8. Rate limiter (per actor/IP)
//  9. CORS and Security headers
func RegisterRoutes(r *gin.Engine, svc Services, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.ActorID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(limitBody(bodyLimit(cfg.Storage.MaxFileBytes)))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByActorOrIP())
	r.Use(rl.Handler())

	allowHeaders := []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderActorID, "X-Request-ID"}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even without an Origin header.
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	} else {
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS: cfg.Security.EnableHSTS,
		HSTSMaxAge: cfg.Security.HSTSMaxAge,
		NoStore:    true,
	}))

	if cfg.GzipEnabled {
		r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))
	}

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(svc.Research, svc.Workflow, svc.Tracks, svc.Reviews)

	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		// Research
		api.POST("/research", h.SubmitResearch)
		api.GET("/research/:id", h.GetResearch)
		api.PUT("/research/:id", h.UpdateResearch)
		api.DELETE("/research/:id", h.DeleteResearch)

		// Files
		api.DELETE("/files/:id", h.DeleteFile)
		api.PUT("/files/:id/active", h.SetFileActive)

		// Workflow
		api.POST("/research/:id/status", h.ChangeStatus)
		api.GET("/research/:id/history", h.StatusHistory)
		api.POST("/research/:id/track", h.AssignTrack)
		api.GET("/research/:id/track-history", h.TrackHistory)

		// Reviews
		api.POST("/research/:id/reviewers", h.AssignReviewer)
		api.GET("/research/:id/reviews", h.ListReviews)
		api.GET("/research/:id/score", h.Score)
		api.GET("/research/:id/reviewer-suggestions", h.SuggestReviewers)
		api.POST("/reviews/:id/decision", h.SubmitDecision)
		api.GET("/reviews/overdue", h.OverdueReviews)
	}
}

// bodyLimit caps a request at maxFilesPerRequest uploads of maxFileBytes
// plus 1 MiB of form overhead. Zero falls back to 1 MiB.
func bodyLimit(maxFileBytes int64) int64 {
	const overhead = 1 << 20
	if maxFileBytes <= 0 {
		return overhead
	}
	return maxFileBytes*maxFilesPerRequest + overhead
}

// limitBody caps the request body size to maxBytes using
// http.MaxBytesReader. Requests exceeding the cap fail on read.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
