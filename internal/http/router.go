// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
//
// The relay endpoint (/functions/places) is mounted outside the versioned
// API group: its path, CORS posture, and error envelope are fixed by the
// legacy dashboard and must not inherit the API middleware defaults.
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
	"gorm.io/gorm"

	"github.com/saludmaps/go-pharma-backend/internal/config"
	"github.com/saludmaps/go-pharma-backend/internal/http/handlers"
	"github.com/saludmaps/go-pharma-backend/internal/http/middleware"
	"github.com/saludmaps/go-pharma-backend/internal/orders"
	"github.com/saludmaps/go-pharma-backend/internal/places"
	"github.com/saludmaps/go-pharma-backend/internal/services"
)

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine: observability (tracing, metrics), rate limiting, CORS and security
// headers, health and metrics endpoints, the relay façade, and the versioned
// public API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Gzip (skipped for the SSE search stream)
//  7. Metrics
//  8. Rate limiter (per IP)
//  9. CORS and Security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, placesClient *places.Client, wooClient *orders.Client, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{
			"Authorization", // relay bearer token
		},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB). The XLSX import endpoint is exempt
	// and enforces its own larger cap.
	r.Use(limitBody(1<<20, cfg.APIBasePath+"/pharmacies/import"))

	// 6) Compression. SSE responses must not be buffered by gzip.
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{
		cfg.APIBasePath + "/search",
	})))

	// 7) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 8) Token-bucket rate limiter per IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByIP())
	r.Use(rl.Handler())

	// 9) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
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
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
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

	// Swagger UI (off by default)
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← repo/db/clients
	pharmacySvc := &services.PharmacyService{DB: db}
	searchSvc := &services.SearchService{
		DB:        db,
		Gateway:   placesClient,
		Repo:      services.GormProspectRepo{},
		PageDelay: cfg.Places.PageDelay,
		ItemDelay: cfg.Places.ItemDelay,
	}
	revenueSvc := &services.RevenueService{DB: db}
	importSvc := &services.ImportService{DB: db}
	orderSvc := &services.OrderService{DB: db, Feed: wooClient}
	mapSvc := &services.MapService{DB: db}

	h := handlers.New(pharmacySvc, searchSvc, revenueSvc, importSvc, orderSvc, mapSvc)

	// Relay façade (fixed legacy contract, outside the versioned API)
	relay := &handlers.RelayHandler{Places: placesClient, Token: cfg.Places.RelayToken}
	r.POST("/functions/places", relay.Dispatch)
	r.OPTIONS("/functions/places", relay.Preflight)

	// Public API
	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		// Prospecting search (SSE)
		api.POST("/search", h.StartSearch)
		api.DELETE("/search", h.CancelSearch)

		// Record store / Operations workflow
		api.GET("/pharmacies", h.ListPharmacies)
		api.GET("/pharmacies/stats", h.PharmacyStats)
		api.GET("/pharmacies/:id", h.GetPharmacy)
		api.PATCH("/pharmacies/:id", h.UpdatePharmacy)
		api.POST("/pharmacies/save", h.SavePharmacies)
		api.POST("/pharmacies/import", h.ImportPharmacies)

		// Orders and revenue
		api.POST("/orders/refresh", h.RefreshOrders)
		api.GET("/orders", h.ListOrders)
		api.GET("/revenue", h.Revenue)

		// Map feeds
		api.GET("/map/pharmacies", h.PharmaciesGeoJSON)
		api.GET("/map/orders", h.OrdersGeoJSON)
	}
}

// limitBody returns a Gin middleware that caps the request body size to
// maxBytes using http.MaxBytesReader. Requests exceeding the cap will cause
// downstream body reads to error. Paths listed in exempt are skipped (they
// enforce their own cap).
func limitBody(maxBytes int64, exempt ...string) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(exempt))
	for _, p := range exempt {
		skip[p] = struct{}{}
	}
	return func(c *gin.Context) {
		if _, ok := skip[c.Request.URL.Path]; !ok {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
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
