package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"Go_Drop/config"
	"Go_Drop/internal/handler"
	"Go_Drop/internal/metrics"
	"Go_Drop/utils"
)

// Handlers groups the route handlers wired by main.
type Handlers struct {
	Auth     *handler.AuthHandler
	Uploads  *handler.UploadHandler
	Files    *handler.FileHandler
	Messages *handler.MessageHandler
	Realtime *handler.RealtimeHandler
}

// InitRouter builds API routes.
func InitRouter(h Handlers) *gin.Engine {
	r := gin.New()
	r.MaxMultipartMemory = config.AppConfig.MaxMultipartMemory
	r.Use(gin.Recovery())
	r.Use(utils.RequestLogger())
	r.Use(metrics.Middleware())
	r.Use(utils.CORSMiddleware(config.AppConfig.CORSAllowedOrigins))
	r.Use(limitBody(config.AppConfig.MaxRequestBytes))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		api.POST("/register", h.Auth.Register)
		api.GET("/activate", h.Auth.Activate)
		api.POST("/login", h.Auth.Login)
		api.GET("/public/files/:id", h.Files.PublicDownload)

		auth := api.Group("")
		auth.Use(utils.AuthMiddleware())

		auth.GET("/me", h.Auth.Me)

		upload := auth.Group("/upload")
		{
			upload.POST("/init", h.Uploads.Init)
			upload.POST("/chunk", h.Uploads.Chunk)
			upload.POST("/complete", h.Uploads.Complete)
			upload.POST("/direct", h.Uploads.Direct)
		}

		files := auth.Group("/files")
		{
			files.GET("", h.Files.List)
			files.GET("/:id", h.Files.Get)
			files.PATCH("/:id", h.Files.Update)
			files.DELETE("/:id", h.Files.Delete)
			files.GET("/:id/download", h.Files.Download)
			files.GET("/:id/thumbnail", h.Files.Thumbnail)
		}

		conversations := auth.Group("/conversations")
		{
			conversations.GET("", h.Messages.ListConversations)
			conversations.POST("", h.Messages.CreateConversation)
			conversations.DELETE("/:id", h.Messages.DeleteConversation)
			conversations.GET("/:id/messages", h.Messages.ListMessages)
			conversations.POST("/:id/messages", h.Messages.SendMessage)
		}
		auth.DELETE("/messages/:id", h.Messages.DeleteMessage)

		auth.GET("/ws", h.Realtime.Connect)
		auth.GET("/online", h.Realtime.Online)
	}
	return r
}

// limitBody caps request bodies; a zero limit disables the cap.
func limitBody(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}
