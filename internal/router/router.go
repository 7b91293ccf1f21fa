package router

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/mark3labs/mcp-go/server"

	"github.com/opendeepwiki/deepresearch/config"
	"github.com/opendeepwiki/deepresearch/internal/handler"
	"github.com/opendeepwiki/deepresearch/internal/mcpserver"
)

func Setup(
	cfg *config.Config,
	chatHandler *handler.ChatHandler,
	researchHandler *handler.ResearchHandler,
	threatModelHandler *handler.ThreatModelHandler,
	sseServer *server.SSEServer,
) *gin.Engine {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))
	// websocket 与 SSE 需要直接写底层连接，不参与压缩
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/ws", "/mcp"})))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ws/chat", chatHandler.Serve)

	if sseServer != nil {
		r.GET("/mcp/sse", mcpserver.Adapt(sseServer.SSEHandler))
		r.POST("/mcp/sse", mcpserver.Adapt(sseServer.SSEHandler))
		r.POST("/mcp/message", mcpserver.Adapt(sseServer.MessageHandler))
	}

	api := r.Group("/api")
	{
		research := api.Group("/research")
		{
			research.POST("", researchHandler.Create)
			research.GET("", researchHandler.List)
			research.GET("/status", researchHandler.Status)
			research.GET("/:id", researchHandler.Get)
			research.POST("/:id/cancel", researchHandler.Cancel)
		}

		threatModels := api.Group("/threat-models")
		{
			threatModels.POST("/validate", threatModelHandler.Validate)
			threatModels.GET("", threatModelHandler.List)
			threatModels.GET("/:id", threatModelHandler.Get)
		}
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return r
}
