package api

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/mossy-p/storefront-realtime/config"
	"github.com/mossy-p/storefront-realtime/internal/dispatch"
	"github.com/mossy-p/storefront-realtime/internal/gateway"
)

// NewRouter assembles the HTTP surface.
func NewRouter(cfg *config.Config, gw *gateway.Gateway, d *dispatch.Dispatcher, logger zerolog.Logger) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(OriginFilter(cfg.AllowedOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	apiGroup := router.Group("/api")
	{
		apiGroup.POST("/notify", ServiceAuth(cfg.ServiceSecret), Notify(d, logger))
	}

	wsGroup := router.Group("/ws")
	{
		wsGroup.GET("", gw.Handle)
	}

	return router
}
