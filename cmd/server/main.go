package main

import (
	"fmt"
	"os"

	"mindmate/config"
	"mindmate/internal/model"

	"github.com/spf13/cobra"
)

// 需要迁移的表
var models = []interface{}{
	&model.User{},
	&model.Message{},
	&model.UserBadge{},
}

var configPath string

var rootCmd = &cobra.Command{
	Use:   "mindmate",
	Short: "MindMate chat backend: history API, realtime gateway and offline delivery",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultConfigPath,
		"Path to the YAML config file. Environment variables override its values.")

	rootCmd.AddCommand(serveCmd, migrateCmd, resetCacheCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
