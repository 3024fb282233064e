package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"mindmate/pkg/logger"
	"mindmate/pkg/metrics"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Envelope 事件信封（入站与出站共用）
type Envelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Client 代表一个WebSocket连接
// ID: 连接ID（同一用户可以有多个连接）
// UserID: 握手时提供的用户ID，匿名连接为空
// Send: 发送缓冲，由写协程消费
type Client struct {
	ID     string
	UserID string
	Conn   *websocket.Conn
	Send   chan []byte
}

// NewClient 创建连接
func NewClient(userID string, conn *websocket.Conn, buffer int) *Client {
	if buffer <= 0 {
		buffer = 256
	}
	return &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		Conn:   conn,
		Send:   make(chan []byte, buffer),
	}
}

// trySend 非阻塞写入发送缓冲，缓冲满时丢弃该帧
func (c *Client) trySend(frame []byte) bool {
	select {
	case c.Send <- frame:
		return true
	default:
		logger.Warn("发送缓冲已满，丢弃消息", zap.String("conn_id", c.ID), zap.String("user_id", c.UserID))
		return false
	}
}

// Manager 管理所有在线连接，并发安全
type Manager struct {
	clients map[string]*Client         // 连接ID -> 连接
	users   map[string]map[string]bool // 用户ID -> 连接ID集合
	closed  bool                       // 关闭后不再接受新连接
	lock    sync.RWMutex
}

// NewManager 创建连接管理器
func NewManager() *Manager {
	return &Manager{
		clients: make(map[string]*Client),
		users:   make(map[string]map[string]bool),
	}
}

// Register 添加新连接，CloseAll 之后返回 false
func (m *Manager) Register(client *Client) bool {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.closed {
		return false
	}
	m.clients[client.ID] = client
	if client.UserID != "" {
		conns, ok := m.users[client.UserID]
		if !ok {
			conns = make(map[string]bool)
			m.users[client.UserID] = conns
		}
		conns[client.ID] = true
	}
	metrics.ActiveConnections.Inc()
	return true
}

// Unregister 移除连接并关闭发送缓冲
// 返回该用户剩余的连接数
func (m *Manager) Unregister(client *Client) int {
	m.lock.Lock()
	defer m.lock.Unlock()

	if _, ok := m.clients[client.ID]; !ok {
		return len(m.users[client.UserID])
	}
	delete(m.clients, client.ID)
	close(client.Send)
	metrics.ActiveConnections.Dec()

	if client.UserID == "" {
		return 0
	}
	conns := m.users[client.UserID]
	delete(conns, client.ID)
	if len(conns) == 0 {
		delete(m.users, client.UserID)
		return 0
	}
	return len(conns)
}

// Broadcast 向所有连接推送事件
func (m *Manager) Broadcast(eventType string, payload interface{}) {
	m.BroadcastOrQueue(eventType, payload, nil, nil)
}

// BroadcastOrQueue 向所有连接推送事件，recipients 中没有任何连接收到的用户交给 queue
// queue 在读锁内执行，期间新连接无法注册：
// 注册早于广播的连接从发送缓冲收到事件，晚于广播的连接在建立后的离线推送中取到
// queue 内不能再调用 Manager 的方法
func (m *Manager) BroadcastOrQueue(eventType string, payload interface{}, recipients []string, queue func(absent []string)) {
	frame, err := encode(eventType, payload)
	if err != nil {
		logger.Error("编码广播事件失败", zap.String("event", eventType), zap.Error(err))
		return
	}

	// 持有读锁期间 Unregister 无法关闭发送缓冲
	m.lock.RLock()
	defer m.lock.RUnlock()

	delivered := make(map[string]bool, len(m.users))
	for _, c := range m.clients {
		if c.trySend(frame) && c.UserID != "" {
			delivered[c.UserID] = true
		}
	}

	if queue == nil {
		return
	}
	absent := make([]string, 0, len(recipients))
	for _, userID := range recipients {
		if !delivered[userID] {
			absent = append(absent, userID)
		}
	}
	if len(absent) > 0 {
		queue(absent)
	}
}

// reply 推送给单个连接，连接已注销时丢弃
func (m *Manager) reply(client *Client, frame []byte) bool {
	m.lock.RLock()
	defer m.lock.RUnlock()
	if m.clients[client.ID] != client {
		return false
	}
	return client.trySend(frame)
}

// CloseAll 向所有连接发送关闭帧并全部移除，返回关闭的连接数
// 之后 Register 一律失败
func (m *Manager) CloseAll(reason string) int {
	m.lock.Lock()
	m.closed = true
	clients := make([]*Client, 0, len(m.clients))
	for _, c := range m.clients {
		clients = append(clients, c)
	}
	m.lock.Unlock()

	// 关闭帧先于写协程的空关闭帧发出
	deadline := time.Now().Add(time.Second)
	for _, c := range clients {
		if c.Conn != nil {
			_ = c.Conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, reason), deadline)
		}
	}

	m.lock.Lock()
	for _, c := range clients {
		if _, ok := m.clients[c.ID]; !ok {
			continue
		}
		delete(m.clients, c.ID)
		close(c.Send)
		metrics.ActiveConnections.Dec()
	}
	m.users = make(map[string]map[string]bool)
	m.lock.Unlock()

	for _, c := range clients {
		if c.Conn != nil {
			_ = c.Conn.Close()
		}
	}
	return len(clients)
}

// Count 当前连接数
func (m *Manager) Count() int {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return len(m.clients)
}

func encode(eventType string, payload interface{}) ([]byte, error) {
	return json.Marshal(Envelope{Type: eventType, Data: payload})
}
