package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

const userStatusActive = "active"

// User 平台用户镜像，推荐关系的两端都指向这里
// 账号本身由认证服务维护，本服务只读取邮箱、状态与 Token 失效信息。
type User struct {
	ID                 uint           `gorm:"primarykey" json:"id"`
	Email              string         `gorm:"uniqueIndex;not null" json:"email"`
	DisplayName        string         `gorm:"default:''" json:"display_name"`
	Status             string         `gorm:"default:'active'" json:"status"`
	TokenVersion       uint64         `gorm:"not null;default:0" json:"-"`
	TokenInvalidBefore *time.Time     `gorm:"index" json:"-"` // 早于该时刻签发的推广端 Token 作废
	CreatedAt          time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}

// IsActive 账号是否可用（禁用用户不能开通推广或申请结算）
func (u *User) IsActive() bool {
	return u != nil && IsActiveUserStatus(u.Status)
}

// IsActiveUserStatus 状态值比较忽略大小写与空白
func IsActiveUserStatus(status string) bool {
	return strings.EqualFold(strings.TrimSpace(status), userStatusActive)
}

// NormalizeEmail 邮箱统一去空白并转小写
func NormalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
