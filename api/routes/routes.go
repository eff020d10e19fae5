package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/arena2036/vec-aas-uploader/api/handlers"
	"github.com/arena2036/vec-aas-uploader/api/middleware"
	"github.com/arena2036/vec-aas-uploader/pkg/logger"
)

// SetupRoutes 配置所有路由
func SetupRoutes(r *gin.Engine, h *handlers.Handlers, allowOrigins []string, log logger.Logger) {
	// 全局中间件
	r.Use(middleware.RequestID())
	r.Use(middleware.AccessLog(log))
	r.Use(middleware.CORS(allowOrigins))

	// 健康检查
	r.GET("/health", h.Upload.Health)

	// API 版本组
	v1 := r.Group("/api/v1")

	sessions := v1.Group("/sessions")
	{
		sessions.POST("", h.Upload.CreateSession)
		sessions.PUT("/:sessionId/file", h.Upload.SelectFile)
		sessions.DELETE("/:sessionId/file", h.Upload.ClearFile)
		sessions.POST("/:sessionId/uploads", h.Upload.Submit)
		sessions.GET("/:sessionId/status", h.Upload.GetStatus)
		sessions.GET("/:sessionId/events", h.Upload.StreamStatus)
	}
}
