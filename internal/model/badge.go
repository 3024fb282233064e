package model

import "time"

// UserBadge 用户已获得的徽章，(UserID, BadgeType) 唯一
type UserBadge struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_user_badge,priority:1"`
	BadgeType string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_user_badge,priority:2"`
	AwardedAt time.Time `gorm:"comment:获得时间"`
}

func (UserBadge) TableName() string { return "user_badge" }
