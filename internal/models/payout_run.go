package models

import (
	"time"
)

// PayoutRun 批量结算运行记录
type PayoutRun struct {
	ID           uint       `gorm:"primarykey" json:"id"`                                           // 主键
	Trigger      string     `gorm:"column:trigger_source;type:varchar(20);not null" json:"trigger"` // 触发方式
	Status       string     `gorm:"type:varchar(20);not null;index" json:"status"`                  // 状态
	Holder       string     `gorm:"type:varchar(64)" json:"holder"`                                 // 执行实例
	Eligible     int        `gorm:"not null;default:0" json:"eligible"`                             // 候选数量
	SuccessCount int        `gorm:"not null;default:0" json:"success_count"`                        // 成功数量
	FailureCount int        `gorm:"not null;default:0" json:"failure_count"`                        // 失败数量
	SkippedCount int        `gorm:"not null;default:0" json:"skipped_count"`                        // 跳过数量
	TotalAmount  Cents      `gorm:"not null;default:0" json:"total_amount"`                         // 成功结算总额
	Simulated    bool       `gorm:"not null;default:false" json:"simulated"`                        // 是否包含模拟结果
	Error        string     `gorm:"type:text" json:"error,omitempty"`                               // 运行级错误
	Detail       JSON       `gorm:"type:json" json:"detail"`                                        // 逐项明细
	StartedAt    time.Time  `gorm:"index" json:"started_at"`                                        // 开始时间
	FinishedAt   *time.Time `json:"finished_at,omitempty"`                                          // 结束时间
	CreatedAt    time.Time  `json:"created_at"`                                                     // 创建时间
	UpdatedAt    time.Time  `json:"updated_at"`                                                     // 更新时间
}

// TableName 指定表名
func (PayoutRun) TableName() string {
	return "payout_runs"
}
