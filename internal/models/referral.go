package models

import (
	"time"
)

// Referral 推荐记录，pending 到 converted 仅发生一次
type Referral struct {
	ID               uint       `gorm:"primarykey" json:"id"`                                // 主键
	AffiliateID      uint       `gorm:"not null;index" json:"affiliate_id"`                  // 推广账户
	ReferredUserID   uint       `gorm:"not null;uniqueIndex" json:"referred_user_id"`        // 被推荐用户
	ReferredEmail    string     `gorm:"type:varchar(255);not null" json:"referred_email"`    // 被推荐邮箱
	Status           string     `gorm:"type:varchar(20);not null;index" json:"status"`       // 状态
	CommissionAmount *Cents     `json:"commission_amount,omitempty"`                         // 转化时冻结的佣金
	ConversionDate   *time.Time `gorm:"index" json:"conversion_date,omitempty"`              // 转化时间
	CommissionPaid   bool       `gorm:"not null;default:false;index" json:"commission_paid"` // 佣金是否已随结算单支付
	PayoutID         *uint      `gorm:"index" json:"payout_id,omitempty"`                    // 绑定的结算单
	CreatedAt        time.Time  `gorm:"index" json:"created_at"`                             // 创建时间
	UpdatedAt        time.Time  `json:"updated_at"`                                          // 更新时间
}

// TableName 指定表名
func (Referral) TableName() string {
	return "referrals"
}
