package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type echo struct {
	Content  string `json:"content"`
	SenderID struct {
		ID string `json:"_id"`
	} `json:"senderId"`
}

// runWSBench 每个连接发送消息，并等待自己的消息被广播回来
// 延迟 = 发送到收到广播回显
func runWSBench(ctx context.Context, base string, conns, perConn int, pause, wait time.Duration) (*Stats, error) {
	wsURL := "ws" + strings.TrimPrefix(base, "http") + "/ws"
	stats := &Stats{}

	clients := make([]*websocket.Conn, 0, conns)
	defer func() {
		for _, c := range clients {
			_ = c.Close()
		}
	}()
	for i := 0; i < conns; i++ {
		c, _, err := websocket.DefaultDialer.DialContext(ctx, fmt.Sprintf("%s?userId=bench-%d", wsURL, i), nil)
		if err != nil {
			return nil, fmt.Errorf("连接 %d 失败: %w", i, err)
		}
		clients = append(clients, c)
	}

	var wg sync.WaitGroup
	for i, c := range clients {
		wg.Add(1)
		go func(id int, conn *websocket.Conn) {
			defer wg.Done()
			benchConn(conn, fmt.Sprintf("bench-%d", id), perConn, pause, wait, stats)
		}(i, c)
	}
	wg.Wait()
	return stats, nil
}

func benchConn(conn *websocket.Conn, userID string, count int, pause, wait time.Duration, stats *Stats) {
	var mu sync.Mutex
	pending := make(map[string]time.Time, count)
	done := make(chan struct{})

	// 读协程：只统计自己消息的回显
	go func() {
		defer close(done)
		received := 0
		for received < count {
			_ = conn.SetReadDeadline(time.Now().Add(wait))
			var env envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			if env.Type != "chat message" {
				continue
			}
			var msg echo
			if err := json.Unmarshal(env.Data, &msg); err != nil || msg.SenderID.ID != userID {
				continue
			}
			mu.Lock()
			sent, ok := pending[msg.Content]
			delete(pending, msg.Content)
			mu.Unlock()
			if ok {
				stats.Add(true, time.Since(sent))
				received++
			}
		}
	}()

	for i := 0; i < count; i++ {
		content := fmt.Sprintf("%s #%d", userID, i)
		mu.Lock()
		pending[content] = time.Now()
		mu.Unlock()
		err := conn.WriteJSON(map[string]interface{}{
			"type": "chat message",
			"data": map[string]string{"senderId": userID, "content": content},
		})
		if err != nil {
			break
		}
		time.Sleep(pause)
	}

	<-done
	mu.Lock()
	for range pending {
		stats.Add(false, 0)
	}
	mu.Unlock()
}
