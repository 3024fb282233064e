package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"mindmate/config"
	"mindmate/internal/model"
	"mindmate/internal/service"
	"mindmate/pkg/logger"
	"mindmate/pkg/metrics"
	"mindmate/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ChatHandler 处理入站聊天事件
type ChatHandler interface {
	Send(ctx context.Context, in service.SendInput) (*model.MessageSnapshot, error)
	Delete(ctx context.Context, in service.DeleteInput) error
	Edit(ctx context.Context, in service.EditInput) (*model.MessageSnapshot, error)
	MarkLastSeen(ctx context.Context, in service.LastSeenInput)
	Join(ctx context.Context, roomID, userID string)
	DefaultRoom() string
}

// OfflineDrainer 取出并清空离线队列
type OfflineDrainer interface {
	DrainAndClear(ctx context.Context, userID string) ([]*model.MessageSnapshot, error)
}

// PresenceTracker 在线状态
type PresenceTracker interface {
	SetOnline(ctx context.Context, userID string, online bool) error
}

// inbound 入站事件，data 延迟解析
type inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Gateway 实时网关
type Gateway struct {
	manager  *Manager
	chat     ChatHandler
	offline  OfflineDrainer
	presence PresenceTracker
	cfg      config.WebSocketConfig
	upgrader websocket.Upgrader

	mu      sync.Mutex
	closing bool
	active  sync.WaitGroup // 进行中的连接处理
}

// NewGateway 创建实时网关
func NewGateway(manager *Manager, chat ChatHandler, offline OfflineDrainer, presence PresenceTracker, cfg config.WebSocketConfig) *Gateway {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 3 * cfg.PingInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &Gateway{
		manager:  manager,
		chat:     chat,
		offline:  offline,
		presence: presence,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 跨域由 CORS 中间件处理
			},
		},
	}
}

// ServeWS Gin路由处理函数 GET /ws?userId=
func (g *Gateway) ServeWS(c *gin.Context) {
	userID := c.Query("userId")

	g.mu.Lock()
	if g.closing {
		g.mu.Unlock()
		response.Error(c, http.StatusServiceUnavailable, "server is shutting down")
		return
	}
	g.active.Add(1)
	g.mu.Unlock()
	defer g.active.Done()

	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("WebSocket升级失败", zap.Error(err))
		return
	}

	client := NewClient(userID, conn, g.cfg.SendBuffer)
	// 先注册再取离线队列：注册之前的广播已写入离线队列，之后的广播进入发送缓冲
	if !g.manager.Register(client) {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), time.Now().Add(g.cfg.WriteTimeout))
		_ = conn.Close()
		return
	}
	logger.Info("WebSocket连接建立", zap.String("conn_id", client.ID), zap.String("user_id", userID))

	ctx := c.Request.Context()
	if userID != "" {
		if err := g.presence.SetOnline(ctx, userID, true); err != nil {
			logger.Warn("设置在线状态失败", zap.String("user_id", userID), zap.Error(err))
		}
		g.chat.Join(ctx, g.chat.DefaultRoom(), userID)
	}

	// 离线消息在写协程启动前直接写出，保证先于实时消息到达
	if userID != "" {
		if err := g.deliverOffline(ctx, client); err != nil {
			logger.Warn("推送离线消息失败", zap.String("user_id", userID), zap.Error(err))
			g.disconnect(client)
			_ = conn.Close()
			return
		}
	}

	done := make(chan struct{})
	go g.writePump(client, done)
	g.readPump(ctx, client)

	// 关闭发送缓冲，写协程随后关闭连接
	g.disconnect(client)
	<-done
}

// Shutdown 停止接受新连接，关闭现有连接并等待连接处理全部退出
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	g.closing = true
	g.mu.Unlock()

	closed := g.manager.CloseAll("server shutting down")
	logger.Info("已关闭WebSocket连接", zap.Int("count", closed))

	done := make(chan struct{})
	go func() {
		g.active.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// deliverOffline 取出离线队列并按原顺序推送
func (g *Gateway) deliverOffline(ctx context.Context, client *Client) error {
	queued, err := g.offline.DrainAndClear(ctx, client.UserID)
	if err != nil {
		// 队列保留，下次连接再推送
		logger.Error("读取离线消息失败", zap.String("user_id", client.UserID), zap.Error(err))
		return nil
	}

	for _, snap := range queued {
		frame, err := encode(model.EventChatMessage, snap)
		if err != nil {
			continue
		}
		_ = client.Conn.SetWriteDeadline(time.Now().Add(g.cfg.WriteTimeout))
		if err := client.Conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			return err
		}
		metrics.OfflineMessages.WithLabelValues("delivered").Inc()
	}
	if len(queued) > 0 {
		logger.Info("离线消息已推送", zap.String("user_id", client.UserID), zap.Int("count", len(queued)))
	}
	return nil
}

// writePump 写协程：消费发送缓冲并定时发送ping
func (g *Gateway) writePump(client *Client, done chan struct{}) {
	ticker := time.NewTicker(g.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = client.Conn.Close()
		close(done)
	}()

	for {
		select {
		case frame, ok := <-client.Send:
			_ = client.Conn.SetWriteDeadline(time.Now().Add(g.cfg.WriteTimeout))
			if !ok {
				_ = client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.Conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			if err := client.Conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(g.cfg.WriteTimeout)); err != nil {
				return
			}
		}
	}
}

// readPump 读协程：同一连接的事件按顺序处理。超时未收到任何数据则断开
func (g *Gateway) readPump(ctx context.Context, client *Client) {
	conn := client.Conn
	if g.cfg.MaxMessage > 0 {
		conn.SetReadLimit(g.cfg.MaxMessage)
	}
	_ = conn.SetReadDeadline(time.Now().Add(g.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(g.cfg.ReadTimeout))
	})

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				logger.Warn("WebSocket读取失败", zap.String("conn_id", client.ID), zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(g.cfg.ReadTimeout))

		var ev inbound
		if err := json.Unmarshal(payload, &ev); err != nil || ev.Type == "" {
			g.replyError(client, ev.Type, http.StatusBadRequest, "malformed event")
			continue
		}
		g.dispatch(ctx, client, ev)
	}
}

// dispatch 分发入站事件
func (g *Gateway) dispatch(ctx context.Context, client *Client, ev inbound) {
	switch ev.Type {
	case model.EventChatMessage:
		var in service.SendInput
		if !g.decode(client, ev, &in) {
			return
		}
		if in.SenderID == "" {
			in.SenderID = client.UserID
		}
		if _, err := g.chat.Send(ctx, in); err != nil {
			g.replyServiceError(client, ev.Type, err)
		}

	case model.EventDeleteMessage:
		var in service.DeleteInput
		if !g.decode(client, ev, &in) {
			return
		}
		if in.UserID == "" {
			in.UserID = client.UserID
		}
		if err := g.chat.Delete(ctx, in); err != nil {
			g.replyServiceError(client, ev.Type, err)
		}

	case model.EventEditMessage:
		var in service.EditInput
		if !g.decode(client, ev, &in) {
			return
		}
		if in.UserID == "" {
			in.UserID = client.UserID
		}
		if _, err := g.chat.Edit(ctx, in); err != nil {
			g.replyServiceError(client, ev.Type, err)
		}

	case model.EventLastSeen:
		var in service.LastSeenInput
		if !g.decode(client, ev, &in) {
			return
		}
		if in.UserID == "" {
			in.UserID = client.UserID
		}
		g.chat.MarkLastSeen(ctx, in)

	default:
		g.replyError(client, ev.Type, http.StatusBadRequest, "unknown event")
	}
}

func (g *Gateway) decode(client *Client, ev inbound, dst interface{}) bool {
	if len(ev.Data) == 0 {
		g.replyError(client, ev.Type, http.StatusBadRequest, "missing data")
		return false
	}
	if err := json.Unmarshal(ev.Data, dst); err != nil {
		g.replyError(client, ev.Type, http.StatusBadRequest, "malformed data")
		return false
	}
	return true
}

func (g *Gateway) replyServiceError(client *Client, event string, err error) {
	code, message := response.StatusOf(err)
	if code >= http.StatusInternalServerError {
		logger.Error("处理实时事件失败", zap.String("event", event), zap.String("conn_id", client.ID), zap.Error(err))
	}
	g.replyError(client, event, code, message)
}

// replyError 错误事件只发给请求方
func (g *Gateway) replyError(client *Client, event string, code int, message string) {
	frame, err := encode(model.EventError, &model.ErrorNotice{Event: event, Code: code, Message: message})
	if err != nil {
		return
	}
	g.manager.reply(client, frame)
}

// disconnect 注销连接；用户没有其他连接时标记离线
func (g *Gateway) disconnect(client *Client) {
	remaining := g.manager.Unregister(client)

	if client.UserID != "" && remaining == 0 {
		ctx, cancel := context.WithTimeout(context.Background(), g.cfg.WriteTimeout)
		defer cancel()
		if err := g.presence.SetOnline(ctx, client.UserID, false); err != nil {
			logger.Warn("设置离线状态失败", zap.String("user_id", client.UserID), zap.Error(err))
		}
	}
	logger.Info("WebSocket连接关闭", zap.String("conn_id", client.ID), zap.String("user_id", client.UserID))
}
