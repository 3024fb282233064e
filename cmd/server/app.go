package main

import (
	"os"

	"mindmate/config"
	"mindmate/internal/handler"
	"mindmate/internal/repository"
	"mindmate/internal/service"
	dbPkg "mindmate/pkg/db"
	"mindmate/pkg/logger"
	"mindmate/pkg/metrics"
	redisPkg "mindmate/pkg/redis"
	"mindmate/pkg/websocket"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// app 组装好的服务
type app struct {
	router  *gin.Engine
	bg      *service.Background
	manager *websocket.Manager
	gateway *websocket.Gateway
}

// newApp 组装仓储、缓存、服务、网关与路由
func newApp(cfg *config.Config, gdb *gorm.DB, rc redis.UniversalClient) *app {
	// 持久化与缓存
	messageRepo := repository.NewMessageRepository(gdb)
	userRepo := repository.NewUserRepository(gdb)
	cache := redisPkg.NewMessageCache(rc, cfg.Chat.CacheCapacity)
	offline := redisPkg.NewOfflineQueue(rc, cfg.Chat.OfflineQueueTTL, cfg.Chat.OfflineQueueMax)
	presence := redisPkg.NewPresence(rc)

	// 业务服务
	bg := service.NewBackground(cfg.Chat.DetachedTimeout)
	engagement := service.NewEngagementService(userRepo)
	chat := service.NewChatService(messageRepo, cache, userRepo, offline, presence, engagement, bg, service.NewMonotonicClock(), cfg.Chat)
	history := service.NewHistoryService(messageRepo, cache, bg, cfg.Chat)

	// 实时网关
	manager := websocket.NewManager()
	chat.SetBroadcaster(manager)
	gateway := websocket.NewGateway(manager, chat, offline, presence, cfg.WebSocket)

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(logger.RequestLogger())        // 请求日志
	router.Use(logger.ErrorLoggerMiddleware()) // panic恢复
	router.Use(metrics.Middleware())           // 请求指标

	health := handler.NewHealthHandler(map[string]handler.HealthCheck{
		"database": dbPkg.HealthCheck,
		"redis":    redisPkg.HealthCheck,
	})
	router.GET("/health", health.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handler.NewChatHandler(chat, history).Register(router.Group("/api/chat"))
	router.GET("/ws", gateway.ServeWS)

	return &app{router: router, bg: bg, manager: manager, gateway: gateway}
}
