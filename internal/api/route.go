package api

import (
	"Huddle/internal/api/config"
	"Huddle/internal/api/middleware"
	"Huddle/internal/metrics"
	"Huddle/internal/pkg/logger"

	"github.com/gin-gonic/gin"
)

func SetupRouter(group *HandlersGroup, cfg *config.Config) *gin.Engine {
	r := gin.New()
	_ = r.SetTrustedProxies([]string{"localhost"})

	r.Use(middleware.TraceMiddleware())
	r.Use(middleware.CORSMiddleware())
	logger.SetupGin(r, cfg.Logstash)

	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/ping", group.ChatHandler.Ping)
		apiGroup.GET("/dm-key", group.ChatHandler.DMKey)

		authGroup := apiGroup.Group("")
		authGroup.Use(middleware.AuthMiddleware())
		{
			authGroup.GET("/ws", group.WsHandler.Connect)
			if group.AttachmentHandler != nil {
				authGroup.POST("/attachments", group.AttachmentHandler.Upload)
			}
		}
	}

	return r
}
