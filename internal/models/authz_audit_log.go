package models

import "time"

// AuthzAuditLog 管理员角色变更审计
type AuthzAuditLog struct {
	ID               uint      `gorm:"primarykey" json:"id"`                                           // 主键
	OperatorAdminID  uint      `gorm:"index;not null" json:"operator_admin_id"`                        // 操作人
	OperatorUsername string    `gorm:"type:varchar(100);not null;default:''" json:"operator_username"` // 操作人用户名
	TargetAdminID    uint      `gorm:"index;not null" json:"target_admin_id"`                          // 目标管理员
	TargetUsername   string    `gorm:"type:varchar(100);not null;default:''" json:"target_username"`   // 目标用户名
	Action           string    `gorm:"type:varchar(64);index;not null" json:"action"`                  // 动作
	RolesBefore      JSON      `gorm:"type:json" json:"roles_before"`                                  // 变更前角色
	RolesAfter       JSON      `gorm:"type:json" json:"roles_after"`                                   // 变更后角色
	RequestID        string    `gorm:"type:varchar(64);index;not null;default:''" json:"request_id"`   // 请求 ID
	CreatedAt        time.Time `gorm:"index" json:"created_at"`                                        // 创建时间
}

// TableName 指定表名
func (AuthzAuditLog) TableName() string {
	return "authz_audit_logs"
}
