package api

import (
	"net/http"

	_ "edgevision-worker-go/docs"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (s *Server) setupSwagger() {
	s.router.GET("/api/info", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"title":       "EdgeVision Worker API",
			"version":     s.cfg.Version,
			"description": "Privacy-preserving surveillance pipeline: blurred public streams plus encrypted forensic evidence",
			"swagger_ui":  "/docs/index.html",
			"endpoints": gin.H{
				"health":     "/health",
				"status":     "/status",
				"stream":     "/stream/{idx}",
				"recordings": "/recordings",
				"evidence":   "/evidence",
				"decrypt":    "/decrypt",
			},
			"worker_id": s.cfg.WorkerID,
			"port":      s.cfg.Port,
		})
	})

	s.router.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	s.router.GET("/docs", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/docs/index.html")
	})
}
