package api

import (
	"keepsake/internal/server/config"
	"keepsake/web"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// SetupRouter creates and configures the echo router with all routes and middleware.
func SetupRouter(handler *Handler, cfg *config.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Global middleware
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}))
	e.Use(RequestLogger())

	// Rate limiter on the endpoints that create server-side state
	uploadLimiter := NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	// Health & gallery
	e.GET("/health", handler.HandleHealth)
	e.GET("/api/gallery", handler.HandleGallery)
	e.GET("/api/gallery/download", handler.HandleDownloadAll)

	// Whole-file upload (rate-limited)
	e.POST("/upload", handler.HandleUpload, uploadLimiter.Middleware())

	// Chunked upload
	e.POST("/api/upload/init", handler.HandleUploadInit, uploadLimiter.Middleware())
	e.POST("/api/upload/chunk/:uploadId/:chunkIndex", handler.HandleUploadChunk)
	e.POST("/api/upload/complete", handler.HandleUploadComplete)

	// Media files under their public prefix, web UI at the root
	e.Static("/gallery", cfg.MediaDir)
	e.StaticFS("/", echo.MustSubFS(web.Assets, "static"))

	return e
}
