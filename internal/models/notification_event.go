package models

import (
	"time"
)

// NotificationEvent 通知发件箱事件，与账务事务解耦独立重试
type NotificationEvent struct {
	ID            uint       `gorm:"primarykey" json:"id"`                                     // 主键
	EventType     string     `gorm:"type:varchar(64);not null;index" json:"event_type"`        // 事件类型
	DedupeKey     string     `gorm:"type:varchar(128);not null;uniqueIndex" json:"dedupe_key"` // 去重键
	Recipient     string     `gorm:"type:varchar(255);not null" json:"recipient"`              // 收件人
	Subject       string     `gorm:"type:varchar(255);not null" json:"subject"`                // 主题
	Payload       JSON       `gorm:"type:json" json:"payload"`                                 // 事件数据
	Status        string     `gorm:"type:varchar(20);not null;index" json:"status"`            // 状态
	Attempts      int        `gorm:"not null;default:0" json:"attempts"`                       // 已尝试次数
	LastError     string     `gorm:"type:text" json:"last_error,omitempty"`                    // 最近一次错误
	NextAttemptAt time.Time  `gorm:"index" json:"next_attempt_at"`                             // 下次尝试时间
	SentAt        *time.Time `json:"sent_at,omitempty"`                                        // 发送时间
	CreatedAt     time.Time  `gorm:"index" json:"created_at"`                                  // 创建时间
	UpdatedAt     time.Time  `gorm:"index" json:"updated_at"`                                  // 更新时间
}

// TableName 指定表名
func (NotificationEvent) TableName() string {
	return "notification_events"
}
