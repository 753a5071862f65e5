package httptransport

import (
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	jwtpkg "bizmail/backend/internal/auth/jwt"
	"bizmail/backend/internal/config"
	"bizmail/backend/internal/middleware"
	"bizmail/backend/internal/monitoring"
	"bizmail/backend/internal/service"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config              *config.Config
	MessageService      *service.MessageService
	ConversationService *service.ConversationService
	JWTManager          *jwtpkg.Manager
	Metrics             *monitoring.Metrics
	HealthChecker       *monitoring.HealthChecker
	Logger              *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RecoveryHandler(deps.Logger))
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.BodySizeLimit(middleware.DefaultBodyLimit))
	router.Use(middleware.HTTPMetrics(deps.Metrics))

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins:     deps.Config.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	// 探针与指标
	router.GET("/live", gin.WrapF(deps.HealthChecker.LiveEndpoint))
	router.GET("/ready", gin.WrapF(deps.HealthChecker.ReadyEndpoint))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	messageHandler := NewMessageHandler(deps.MessageService)
	conversationHandler := NewConversationHandler(deps.ConversationService)
	jwtAuth := middleware.NewJWTAuth(deps.JWTManager, deps.Logger)

	api := router.Group("/api/v1")
	api.Use(jwtAuth.RequireAuth())
	{
		messages := api.Group("/messages")
		{
			messages.POST("", messageHandler.Create)
			messages.GET("/inbox", messageHandler.ListInbox)
			messages.GET("/sent", messageHandler.ListSent)
			messages.GET("/drafts", messageHandler.ListDrafts)
			messages.GET("/search", messageHandler.Search)
			messages.GET("/:id", messageHandler.Get)
			messages.PUT("/:id", messageHandler.Update)
			messages.DELETE("/:id", messageHandler.Delete)
			messages.POST("/:id/star", messageHandler.Star)
			messages.DELETE("/:id/star", messageHandler.Unstar)
			messages.POST("/:id/archive", messageHandler.Archive)
			messages.DELETE("/:id/archive", messageHandler.Unarchive)
			messages.POST("/:id/read", messageHandler.MarkRead)
		}

		conversations := api.Group("/conversations")
		{
			conversations.GET("", conversationHandler.List)
			conversations.GET("/unread-count", conversationHandler.UnreadCount)
		}
	}

	return router
}
