package main

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"
)

// runHTTPBench 并发请求最新历史
func runHTTPBench(ctx context.Context, base string, workers, perWorker int, pause time.Duration) *Stats {
	stats := &Stats{}
	client := &http.Client{Timeout: 8 * time.Second}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				start := time.Now()
				code, err := get(ctx, client, base+"/api/chat")
				stats.Add(err == nil && code == http.StatusOK, time.Since(start))
				time.Sleep(pause)
			}
		}()
	}
	wg.Wait()
	return stats
}

func get(ctx context.Context, client *http.Client, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}
