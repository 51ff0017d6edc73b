package models

import (
	"time"
)

// Affiliate 推广账户（每个用户至多一个，不做删除以保留审计）
type Affiliate struct {
	ID              uint       `gorm:"primarykey" json:"id"`                                                          // 主键
	UserID          uint       `gorm:"not null;uniqueIndex" json:"user_id"`                                           // 所属用户
	AffiliateCode   string     `gorm:"type:varchar(32);not null;uniqueIndex" json:"code"`                             // 推广码
	PayPalEmail     string     `gorm:"column:paypal_email;type:varchar(255);not null;default:''" json:"paypal_email"` // PayPal 收款邮箱
	BankAccount     string     `gorm:"type:varchar(255);not null;default:''" json:"bank_account"`                     // 银行账户
	CommissionRate  Rate       `gorm:"type:decimal(10,4);not null" json:"commission_rate"`                            // 佣金比例
	MinimumPayout   Cents      `gorm:"not null;default:0" json:"minimum_payout"`                                      // 最低结算金额
	TotalEarnings   Cents      `gorm:"not null;default:0" json:"total_earnings"`                                      // 累计收益
	PendingEarnings Cents      `gorm:"not null;default:0;index" json:"pending_earnings"`                              // 待结算收益
	PaidEarnings    Cents      `gorm:"not null;default:0" json:"paid_earnings"`                                       // 已结算收益
	LastPayoutDate  *time.Time `json:"last_payout_date,omitempty"`                                                    // 最近结算时间
	Status          string     `gorm:"type:varchar(20);not null;index" json:"status"`                                 // 状态
	CreatedAt       time.Time  `gorm:"index" json:"created_at"`                                                       // 创建时间
	UpdatedAt       time.Time  `gorm:"index" json:"updated_at"`                                                       // 更新时间

	User User `gorm:"foreignKey:UserID" json:"user,omitempty"` // 用户信息
}

// TableName 指定表名
func (Affiliate) TableName() string {
	return "affiliates"
}

// HasPayPal 是否已配置 PayPal 收款邮箱
func (a *Affiliate) HasPayPal() bool {
	return a != nil && a.PayPalEmail != ""
}

// HasBank 是否已配置银行账户
func (a *Affiliate) HasBank() bool {
	return a != nil && a.BankAccount != ""
}

// Balanced 校验 total == pending + paid
func (a *Affiliate) Balanced() bool {
	return a != nil && a.TotalEarnings == a.PendingEarnings+a.PaidEarnings
}
