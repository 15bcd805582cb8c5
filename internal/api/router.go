package api

import (
	"github.com/gin-gonic/gin"

	"wpauditd/internal/api/handlers"
	"wpauditd/internal/api/middleware"
	"wpauditd/internal/audit"
	"wpauditd/internal/config"
	"wpauditd/internal/db/repository"
	"wpauditd/internal/telemetry"
)

// Server represents the HTTP server
type Server struct {
	router *gin.Engine
	config *config.Config
}

// NewServer creates a new API server
func NewServer(
	cfg *config.Config,
	orchestrator *audit.Orchestrator,
	siteRepo *repository.SiteRepository,
	issueRepo *repository.IssueRepository,
	purger telemetry.CachePurger,
) *Server {
	// Set Gin mode
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())

	// Create handlers
	siteHandler := handlers.NewSiteHandler(siteRepo, issueRepo, purger)
	auditHandler := handlers.NewAuditHandler(orchestrator)

	// API v1 routes, all behind the admin token
	v1 := router.Group("/v1")
	v1.Use(middleware.AdminAuth(cfg.Server.AdminToken))
	{
		sites := v1.Group("/sites")
		{
			sites.POST("", siteHandler.CreateSite)
			sites.GET("", siteHandler.ListSites)
			sites.GET("/:id", siteHandler.GetSite)
			sites.PUT("/:id", siteHandler.UpdateSite)
			sites.DELETE("/:id", siteHandler.DeleteSite)
			sites.GET("/:id/issues", siteHandler.ListIssues)
			sites.POST("/:id/cache/purge", siteHandler.PurgeCache)
			sites.POST("/:id/audits", auditHandler.StartAudit)
		}

		audits := v1.Group("/audits")
		{
			audits.GET("/:id", auditHandler.GetAudit)
			audits.POST("/:id/cancel", auditHandler.CancelAudit)
			audits.POST("/cleanup", auditHandler.CleanupStale)
			audits.POST("/sweep", auditHandler.Sweep)
		}
	}

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})

	return &Server{
		router: router,
		config: cfg,
	}
}

// Run starts the HTTP server
func (s *Server) Run() error {
	return s.router.Run(s.config.Server.ListenAddr)
}

// Router returns the underlying Gin router
func (s *Server) Router() *gin.Engine {
	return s.router
}
