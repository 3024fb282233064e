package handler

import (
	"strconv"

	"mindmate/internal/service"
	"mindmate/pkg/response"

	"github.com/gin-gonic/gin"
)

// ChatHandler 聊天历史与消息管理接口
type ChatHandler struct {
	chat    *service.ChatService
	history *service.HistoryService
}

// NewChatHandler 创建ChatHandler实例
func NewChatHandler(chat *service.ChatService, history *service.HistoryService) *ChatHandler {
	return &ChatHandler{chat: chat, history: history}
}

// Register 挂载路由
func (h *ChatHandler) Register(group *gin.RouterGroup) {
	group.GET("", h.GetHistory)
	group.DELETE("/:messageId/:userId", h.DeleteMessage)
	group.PATCH("/:messageId/:userId", h.EditMessage)
}

// GetHistory 获取聊天历史
// GET /api/chat?roomId=&before=&limit=
func (h *ChatHandler) GetHistory(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			response.BadRequest(c, "invalid limit parameter")
			return
		}
		limit = n
	}

	messages, err := h.history.GetHistory(c.Request.Context(), c.Query("roomId"), c.Query("before"), limit)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, messages)
}

// DeleteMessage 删除消息（软删除）
// DELETE /api/chat/:messageId/:userId
func (h *ChatHandler) DeleteMessage(c *gin.Context) {
	err := h.chat.Delete(c.Request.Context(), service.DeleteInput{
		MessageID: c.Param("messageId"),
		UserID:    c.Param("userId"),
		RoomID:    c.Query("roomId"),
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.SuccessWithMessage(c, "Message deleted")
}

// EditMessage 编辑消息
// PATCH /api/chat/:messageId/:userId
func (h *ChatHandler) EditMessage(c *gin.Context) {
	type req struct {
		Content string `json:"content" binding:"required"`
		RoomID  string `json:"roomId"`
	}
	var r req
	if err := c.ShouldBindJSON(&r); err != nil {
		response.BadRequest(c, "content is required")
		return
	}

	snap, err := h.chat.Edit(c.Request.Context(), service.EditInput{
		MessageID: c.Param("messageId"),
		UserID:    c.Param("userId"),
		Content:   r.Content,
		RoomID:    r.RoomID,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, snap)
}
