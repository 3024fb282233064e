// bench 对聊天服务做并发压测：历史接口 + WebSocket 广播延迟
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	baseURL      string
	concurrency  int
	perWorker    int
	interval     time.Duration
	waitForEchos time.Duration
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var cmd = &cobra.Command{
	Use:   "bench",
	Short: "Load-test the chat history API and the WebSocket broadcast path",
	Args:  cobra.NoArgs,
}

var httpCmd = &cobra.Command{
	Use:   "http",
	Short: "Concurrent GET /api/chat requests",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("目标: %s 并发: %d 每协程请求: %d\n", baseURL, concurrency, perWorker)
		start := time.Now()
		stats := runHTTPBench(cmd.Context(), baseURL, concurrency, perWorker, interval)
		stats.Summary().Print(cmd.OutOrStdout(), "历史接口测试结果", time.Since(start))
		return nil
	},
}

var wsCmd = &cobra.Command{
	Use:   "ws",
	Short: "Open N connections, send messages and measure broadcast echo latency",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("目标: %s 连接数: %d 每连接消息: %d\n", baseURL, concurrency, perWorker)
		start := time.Now()
		stats, err := runWSBench(cmd.Context(), baseURL, concurrency, perWorker, interval, waitForEchos)
		if err != nil {
			return err
		}
		stats.Summary().Print(cmd.OutOrStdout(), "广播延迟测试结果", time.Since(start))
		return nil
	},
}

func init() {
	cmd.PersistentFlags().StringVarP(&baseURL, "url", "u", "http://localhost:3000", "Server base URL")
	cmd.PersistentFlags().IntVarP(&concurrency, "concurrency", "n", 5, "Concurrent workers or connections")
	cmd.PersistentFlags().IntVarP(&perWorker, "count", "m", 10, "Requests or messages per worker")
	cmd.PersistentFlags().DurationVarP(&interval, "interval", "i", 5*time.Millisecond, "Pause between requests of one worker")
	wsCmd.Flags().DurationVarP(&waitForEchos, "wait", "w", 10*time.Second, "How long to wait for outstanding echoes")

	cmd.AddCommand(httpCmd, wsCmd)
}
