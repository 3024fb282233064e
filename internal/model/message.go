package model

import (
	"time"

	"gorm.io/datatypes"
)

// 消息类型与状态
const (
	MessageTypeText = "text"

	StatusSent = "sent"
)

// EditRecord 一次编辑前的内容
type EditRecord struct {
	Text     string    `json:"text"`
	EditedAt time.Time `json:"editedAt"`
}

// Message 消息模型（持久化日志，只追加，不物理删除）
// ID 为 ULID；CreatedAt 为排序键，毫秒精度
// Deleted/DeletedBy 为软删除标记，墓碑仍然下发给客户端
type Message struct {
	ID          string                           `gorm:"primaryKey;type:varchar(26)"`
	RoomID      string                           `gorm:"type:varchar(64);not null;default:'global';index:idx_message_room_created,priority:1;comment:房间ID"`
	SenderID    string                           `gorm:"type:varchar(64);not null;index;comment:发送者ID"`
	Content     string                           `gorm:"type:text;not null;comment:消息内容"`
	Type        string                           `gorm:"type:varchar(32);default:'text';comment:消息类型"`
	Status      string                           `gorm:"type:varchar(16);default:'sent';comment:消息状态"`
	Edited      bool                             `gorm:"default:false;comment:是否编辑过"`
	EditHistory datatypes.JSONSlice[EditRecord] `gorm:"comment:编辑历史"`
	Deleted     bool                             `gorm:"default:false;comment:是否已删除"`
	DeletedBy   *string                          `gorm:"type:varchar(64);comment:删除者ID"`
	CreatedAt   time.Time                        `gorm:"precision:3;index:idx_message_room_created,priority:2;comment:创建时间"`
	UpdatedAt   time.Time                        `gorm:"precision:3;comment:更新时间"`

	Sender *User `gorm:"foreignKey:SenderID;references:ID"`
}

func (Message) TableName() string { return "message" }

// SenderProfile 发送者公开资料
type SenderProfile struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
	Fullname string `json:"fullname"`
}

// MessageSnapshot 消息快照：缓存、离线队列、广播、HTTP 返回共用同一结构
type MessageSnapshot struct {
	ID          string         `json:"_id"`
	RoomID      string         `json:"roomId"`
	SenderID    *SenderProfile `json:"senderId"`
	Content     string         `json:"content"`
	Type        string         `json:"type"`
	Status      string         `json:"status"`
	Edited      bool           `json:"edited"`
	EditHistory []EditRecord   `json:"editHistory"`
	Deleted     bool           `json:"deleted"`
	DeletedBy   *string        `json:"deletedBy"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// Snapshot 生成消息快照；未预加载发送者时只带ID
func (m *Message) Snapshot() *MessageSnapshot {
	sender := &SenderProfile{ID: m.SenderID}
	if m.Sender != nil {
		sender.Username = m.Sender.Username
		sender.Fullname = m.Sender.Fullname
	}

	history := make([]EditRecord, len(m.EditHistory))
	copy(history, m.EditHistory)

	return &MessageSnapshot{
		ID:          m.ID,
		RoomID:      m.RoomID,
		SenderID:    sender,
		Content:     m.Content,
		Type:        m.Type,
		Status:      m.Status,
		Edited:      m.Edited,
		EditHistory: history,
		Deleted:     m.Deleted,
		DeletedBy:   m.DeletedBy,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// Snapshots 批量生成快照，保持顺序
func Snapshots(messages []*Message) []*MessageSnapshot {
	out := make([]*MessageSnapshot, 0, len(messages))
	for _, m := range messages {
		out = append(out, m.Snapshot())
	}
	return out
}
