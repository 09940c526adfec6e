// Package server exposes the HTTP API: scrape kickoff and refresh
// endpoints, plus thin read endpoints that always return the
// best-known (possibly stale) data and trigger background refreshes
// inline. Crawl errors never surface through these handlers.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/marcusbell/bookcat/config"
	"github.com/marcusbell/bookcat/refresh"
	"github.com/marcusbell/bookcat/store"
)

// Server bundles the API dependencies.
type Server struct {
	cfg         *config.Config
	store       *store.Store
	coordinator *refresh.Coordinator
}

// New builds the API server.
func New(cfg *config.Config, st *store.Store, coordinator *refresh.Coordinator) *Server {
	return &Server{cfg: cfg, store: st, coordinator: coordinator}
}

// Router configures all routes.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/scrape/start", s.startScrape)
	router.POST("/scrape/refresh", s.refreshTarget)
	router.GET("/scrape/jobs", s.listJobs)

	router.GET("/navigation", s.listNavigation)
	router.GET("/categories", s.listCategories)
	router.GET("/categories/:slug", s.getCategory)
	router.GET("/products", s.listProducts)
	router.GET("/products/*id", s.getProduct)

	router.GET("/export", s.exportListings)

	return router
}
