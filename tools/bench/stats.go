package main

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

// Stats 压测统计
type Stats struct {
	mu        sync.Mutex
	ok        int
	failed    int
	latencies []time.Duration
}

// Add 记录一次请求
func (s *Stats) Add(success bool, latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !success {
		s.failed++
		return
	}
	s.ok++
	s.latencies = append(s.latencies, latency)
}

// Summary 统计结果
type Summary struct {
	Total  int
	OK     int
	Failed int
	Mean   time.Duration
	P50    time.Duration
	P95    time.Duration
	P99    time.Duration
	Max    time.Duration
}

// Summary 计算分位数
func (s *Stats) Summary() Summary {
	s.mu.Lock()
	sorted := make([]time.Duration, len(s.latencies))
	copy(sorted, s.latencies)
	sum := Summary{Total: s.ok + s.failed, OK: s.ok, Failed: s.failed}
	s.mu.Unlock()

	if len(sorted) == 0 {
		return sum
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total time.Duration
	for _, d := range sorted {
		total += d
	}
	sum.Mean = total / time.Duration(len(sorted))
	sum.P50 = percentile(sorted, 50)
	sum.P95 = percentile(sorted, 95)
	sum.P99 = percentile(sorted, 99)
	sum.Max = sorted[len(sorted)-1]
	return sum
}

// percentile 最近秩法，sorted 必须升序
func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	rank := (p*len(sorted) + 99) / 100
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}

// Print 输出报告
func (sum Summary) Print(w io.Writer, title string, took time.Duration) {
	fmt.Fprintf(w, "\n=== %s ===\n", title)
	fmt.Fprintf(w, "耗时: %v\n", took)
	fmt.Fprintf(w, "总数: %d 成功: %d 失败: %d\n", sum.Total, sum.OK, sum.Failed)
	fmt.Fprintf(w, "延迟 平均: %v p50: %v p95: %v p99: %v 最大: %v\n", sum.Mean, sum.P50, sum.P95, sum.P99, sum.Max)
	if took > 0 {
		fmt.Fprintf(w, "吞吐: %.2f/s\n", float64(sum.OK)/took.Seconds())
	}
	if sum.Total > 0 {
		fmt.Fprintf(w, "成功率: %.2f%%\n", float64(sum.OK)/float64(sum.Total)*100)
	}
}
