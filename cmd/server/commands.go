package main

import (
	"fmt"

	"mindmate/config"
	dbPkg "mindmate/pkg/db"
	"mindmate/pkg/logger"
	redisPkg "mindmate/pkg/redis"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the message, user and badge tables",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig(configPath)
		log := logger.InitLogger(cfg.Log)
		defer func() { _ = log.Sync() }()

		gdb, err := dbPkg.InitDB(cfg.Database)
		if err != nil {
			return fmt.Errorf("数据库连接失败: %w", err)
		}
		defer func() { _ = dbPkg.CloseDB() }()

		if err := dbPkg.AutoMigrate(gdb, models...); err != nil {
			return fmt.Errorf("自动迁移失败: %w", err)
		}
		log.Info("自动迁移完成", zap.String("driver", cfg.Database.Driver))
		fmt.Fprintln(cmd.OutOrStdout(), "migration complete")
		return nil
	},
}

var resetRoom string

var resetCacheCmd = &cobra.Command{
	Use:   "reset-cache",
	Short: "Drop cached room windows; the next history read repopulates them from the database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig(configPath)
		log := logger.InitLogger(cfg.Log)
		defer func() { _ = log.Sync() }()

		rc, err := redisPkg.InitRedis(cmd.Context(), cfg.Redis)
		if err != nil {
			return err
		}
		defer func() { _ = redisPkg.Close() }()

		cache := redisPkg.NewMessageCache(rc, cfg.Chat.CacheCapacity)
		if resetRoom != "" {
			if err := cache.Clear(cmd.Context(), resetRoom); err != nil {
				return fmt.Errorf("清空房间缓存失败: %w", err)
			}
			log.Info("房间缓存已清空", zap.String("room", resetRoom))
			fmt.Fprintf(cmd.OutOrStdout(), "cleared room %s\n", resetRoom)
			return nil
		}

		n, err := cache.ClearAll(cmd.Context())
		if err != nil {
			return fmt.Errorf("清空缓存失败: %w", err)
		}
		log.Info("全部房间缓存已清空", zap.Int("rooms", n))
		fmt.Fprintf(cmd.OutOrStdout(), "cleared %d rooms\n", n)
		return nil
	},
}

func init() {
	resetCacheCmd.Flags().StringVarP(&resetRoom, "room", "r", "", "Only clear this room")
}
