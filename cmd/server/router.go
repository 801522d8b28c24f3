package main

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Skufu/chadsvasc/internal/advisor"
	"github.com/Skufu/chadsvasc/internal/logging"
	"github.com/Skufu/chadsvasc/internal/metrics"
	"github.com/Skufu/chadsvasc/internal/risktable"
	"github.com/Skufu/chadsvasc/internal/store"
)

//go:embed templates/*.html
var templateFiles embed.FS

//go:embed static
var staticFiles embed.FS

// dependencies are the collaborators handlers use. repo and cache are nil
// when the database or Redis is not configured.
type dependencies struct {
	logger         *zap.Logger
	advisor        *advisor.Advisor
	advisorTimeout time.Duration
	table          *risktable.Table
	repo           store.Repository
	cache          HealthChecker
	metrics        *metrics.Metrics
}

func setupRouter(deps *dependencies, corsOrigins []string) *gin.Engine {
	if deps.logger == nil {
		deps.logger = zap.NewNop()
	}
	if deps.table == nil {
		deps.table = risktable.Default()
	}
	if deps.metrics == nil {
		deps.metrics = metrics.New()
	}
	if deps.advisor == nil {
		deps.advisor = advisor.New(nil)
	}
	if deps.advisorTimeout <= 0 {
		deps.advisorTimeout = 30 * time.Second
	}
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	router := gin.New()
	router.Use(
		logging.RequestID(),
		logging.GinLogger(deps.logger),
		gin.Recovery(),
		limitBodySize(1<<20), // 1MB max body
		cors.New(cors.Config{
			AllowOrigins: corsOrigins,
			AllowMethods: []string{"GET", "POST", "OPTIONS"},
			AllowHeaders: []string{"Origin", "Content-Type", "Accept", logging.RequestIDHeader},
			MaxAge:       12 * time.Hour,
		}),
	)

	router.SetHTMLTemplate(template.Must(template.New("").Funcs(templateFuncs).ParseFS(templateFiles, "templates/*.html")))
	static, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(fmt.Sprintf("static assets: %v", err))
	}
	router.StaticFS("/static", http.FS(static))

	router.GET("/", deps.showForm)
	router.POST("/", deps.submitForm)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/readyz", deps.readyz)
	router.GET("/metrics", gin.WrapH(deps.metrics.Handler()))

	api := router.Group("/api")
	api.GET("/score", deps.scoreQuery)
	api.POST("/score", deps.scoreBody)
	api.POST("/recommendation", deps.recommendation)
	api.GET("/risk", deps.riskLookup)
	api.POST("/risk/ask", deps.riskAsk)
	api.GET("/risk-table", deps.riskTable)
	api.GET("/risk-table.xlsx", deps.riskTableXLSX)
	api.GET("/assessments", deps.recentAssessments)

	return router
}

func (d *dependencies) readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	body := gin.H{"status": "ok", "db": "disabled", "cache": "disabled"}
	healthy := true

	if d.repo != nil {
		body["db"] = "ok"
		if err := d.repo.Ping(ctx); err != nil {
			body["db"] = fmt.Sprintf("unhealthy: %v", err)
			healthy = false
		}
	}
	if d.cache != nil {
		body["cache"] = "ok"
		if err := d.cache.Ping(ctx); err != nil {
			body["cache"] = fmt.Sprintf("unhealthy: %v", err)
			healthy = false
		}
	}

	if !healthy {
		body["status"] = "degraded"
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	c.JSON(http.StatusOK, body)
}

func limitBodySize(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
