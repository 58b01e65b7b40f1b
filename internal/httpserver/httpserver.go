package httpserver

import (
	"net/http"
	"time"

	"github.com/andrewm4894/djangalytics/internal/config"
	"github.com/andrewm4894/djangalytics/internal/enrich"
	"github.com/andrewm4894/djangalytics/internal/ingest"
	"github.com/andrewm4894/djangalytics/internal/openapi"
	"github.com/andrewm4894/djangalytics/internal/query"
	"github.com/andrewm4894/djangalytics/internal/queue"
	"github.com/andrewm4894/djangalytics/internal/ratelimit"
	"github.com/andrewm4894/djangalytics/internal/registry"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func New(cfg config.Config, db *gorm.DB, limiter ratelimit.Limiter, publisher queue.Publisher, geoip *enrich.GeoIP) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           NewRouter(cfg, db, limiter, publisher, geoip),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// NewRouter wires the three public endpoints plus the system surface. Split
// from New so tests can mount the router on httptest.
func NewRouter(cfg config.Config, db *gorm.DB, limiter ratelimit.Limiter, publisher queue.Publisher, geoip *enrich.GeoIP) *gin.Engine {
	reg := registry.New(db)

	pipeline := &ingest.Pipeline{
		DB:            db,
		Registry:      reg,
		Limiter:       limiter,
		Publisher:     publisher,
		GeoIP:         geoip,
		IPLimit:       cfg.IPLimitPerMinute,
		FirehoseTopic: cfg.FirehoseTopic,
	}
	reads := &query.Handlers{DB: db, Registry: reg}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	router.GET("/openapi.json", func(c *gin.Context) { c.JSON(http.StatusOK, openapi.Spec()) })
	// The /docs Swagger UI route (github.com/swaggest/swgui/v3) is disabled:
	// the module is not resolvable through the configured proxy. See
	// BUILD_FLAGS.json.

	router.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	api := router.Group("/api")
	{
		api.GET("/status", query.StatusHandler(db))
		api.POST("/events", ingest.CaptureHandler(pipeline))
		api.GET("/stats", reads.Stats)
		api.GET("/events/recent", reads.RecentEvents)
	}

	return router
}
