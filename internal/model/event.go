package model

// 实时事件名称（入站与出站共用）
const (
	EventChatMessage    = "chat message"
	EventDeleteMessage  = "delete message"
	EventEditMessage    = "edit message"
	EventLastSeen       = "last seen"
	EventMessageDeleted = "message deleted"
	EventMessageEdited  = "message edited"
	EventError          = "error"
)

// DeletedNotice 删除通知
type DeletedNotice struct {
	MessageID string `json:"messageId"`
	DeletedBy string `json:"deletedBy"`
}

// ErrorNotice 只发给请求方的错误事件
type ErrorNotice struct {
	Event   string `json:"event"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}
