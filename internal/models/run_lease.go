package models

import "time"

// RunLease 数据库租约，Redis 不可用时用于批量任务互斥
type RunLease struct {
	Name      string    `gorm:"primarykey;type:varchar(64)" json:"name"`
	Holder    string    `gorm:"type:varchar(64);not null" json:"holder"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName 指定表名
func (RunLease) TableName() string {
	return "run_leases"
}
