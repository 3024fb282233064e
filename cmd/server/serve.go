package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mindmate/config"
	dbPkg "mindmate/pkg/db"
	"mindmate/pkg/logger"
	redisPkg "mindmate/pkg/redis"

	"github.com/go-chi/cors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and WebSocket gateway (default)",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	// 1. 加载配置
	cfg := config.LoadConfig(configPath)

	// 2. 初始化日志系统
	log := logger.InitLogger(cfg.Log)
	defer func() { _ = log.Sync() }()

	log.Info("=== MindMate 聊天服务启动 ===")
	log.Info("服务器配置信息",
		zap.String("port", cfg.Server.Port),
		zap.String("database_driver", cfg.Database.Driver),
		zap.String("database_host", cfg.Database.Host),
		zap.String("database_name", cfg.Database.Database),
		zap.String("redis_host", cfg.Redis.Host),
		zap.String("default_room", cfg.Chat.DefaultRoom),
		zap.String("log_level", cfg.Log.Level),
	)

	// 3. 初始化数据库连接并迁移
	gdb, err := dbPkg.InitDB(cfg.Database)
	if err != nil {
		return fmt.Errorf("数据库连接失败: %w", err)
	}
	defer func() {
		if err := dbPkg.CloseDB(); err != nil {
			log.Error("关闭数据库连接失败", zap.Error(err))
		}
	}()
	if err := dbPkg.AutoMigrate(gdb, models...); err != nil {
		return fmt.Errorf("自动迁移失败: %w", err)
	}
	log.Info("数据库连接成功")

	// 4. 初始化Redis
	rc, err := redisPkg.InitRedis(cmd.Context(), cfg.Redis)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisPkg.Close(); err != nil {
			log.Error("关闭Redis连接失败", zap.Error(err))
		}
	}()
	log.Info("Redis连接成功")

	// 5. 组装服务与路由
	a := newApp(cfg, gdb, rc)

	handler := cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	})(a.router)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// 6. 启动HTTP服务器
	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP服务器启动", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 7. 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("HTTP服务器启动失败: %w", err)
	}

	log.Info("正在关闭服务器...", zap.Int("connections", a.manager.Count()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("HTTP服务器关闭失败", zap.Error(err))
	}

	// 已升级的WebSocket连接不受 server.Shutdown 管理，单独关闭并等待处理协程退出
	if err := a.gateway.Shutdown(ctx); err != nil {
		log.Error("WebSocket连接关闭超时", zap.Error(err))
	}

	// 等待后台任务（缓存回填、徽章）结束，之后数据库与Redis才会关闭
	a.bg.Shutdown()

	log.Info("服务器已安全关闭")
	return nil
}
