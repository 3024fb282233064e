package model

import (
	"time"
)

// User 用户模型（聊天管道只关心公开资料与计数器）
// 计数器通过原子增减更新，不在进程内缓存
type User struct {
	ID                        string    `gorm:"primaryKey;type:varchar(64)"`
	Username                  string    `gorm:"type:varchar(30);not null;uniqueIndex;comment:用户名"`
	Fullname                  string    `gorm:"type:varchar(30);comment:全名"`
	MoodStreak                int       `gorm:"not null;default:0;comment:心情连续天数"`
	SelfCareStreak            int       `gorm:"not null;default:0;comment:自我关怀连续次数"`
	JournalStreak             int       `gorm:"not null;default:0;comment:日记连续次数"`
	CommunityEngagementStreak int       `gorm:"not null;default:0;comment:社区参与计数"`
	CreatedAt                 time.Time `gorm:"comment:创建时间"`
	UpdatedAt                 time.Time `gorm:"comment:更新时间"`
}

// TableName 使用单数表名
func (User) TableName() string { return "user" }
