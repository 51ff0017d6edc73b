package models

import (
	"time"

	"github.com/botdesk-next/internal/constants"
)

// Payout 结算单，状态只能 pending -> processing -> paid/failed 单向推进
type Payout struct {
	ID            uint       `gorm:"primarykey" json:"id"`                                     // 主键
	AffiliateID   uint       `gorm:"not null;index" json:"affiliate_id"`                       // 推广账户
	RunID         *uint      `gorm:"index" json:"run_id,omitempty"`                            // 批量结算批次
	Amount        Cents      `gorm:"not null" json:"amount"`                                   // 创建时的待结算快照
	Currency      string     `gorm:"type:varchar(8);not null" json:"currency"`                 // 币种
	Method        string     `gorm:"type:varchar(20);not null" json:"method"`                  // 结算方式
	Destination   string     `gorm:"type:varchar(255);not null;default:''" json:"destination"` // 收款目标快照
	Status        string     `gorm:"type:varchar(20);not null;index" json:"status"`            // 状态
	Reserved      bool       `gorm:"not null;default:false" json:"reserved"`                   // 余额是否已在创建时预扣
	BatchID       string     `gorm:"type:varchar(128);index" json:"batch_id,omitempty"`        // 网关批次号
	TransactionID string     `gorm:"type:varchar(128)" json:"transaction_id,omitempty"`        // 网关交易号
	Simulated     bool       `gorm:"not null;default:false" json:"simulated"`                  // 模拟网关结果
	PaidAt        *time.Time `json:"paid_at,omitempty"`                                        // 支付时间
	ProcessedBy   *uint      `json:"processed_by,omitempty"`                                   // 处理管理员
	Notes         string     `gorm:"type:text" json:"notes,omitempty"`                         // 备注
	CreatedAt     time.Time  `gorm:"index" json:"created_at"`                                  // 创建时间
	UpdatedAt     time.Time  `json:"updated_at"`                                               // 更新时间

	Affiliate *Affiliate `gorm:"foreignKey:AffiliateID" json:"affiliate,omitempty"` // 推广账户
}

// TableName 指定表名
func (Payout) TableName() string {
	return "payouts"
}

var payoutTransitions = map[string][]string{
	constants.PayoutStatusPending:    {constants.PayoutStatusProcessing},
	constants.PayoutStatusProcessing: {constants.PayoutStatusPaid, constants.PayoutStatusFailed},
}

// CanTransitPayoutStatus 判断结算单状态流转是否合法
func CanTransitPayoutStatus(from, to string) bool {
	for _, next := range payoutTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsPayoutTerminal 是否终态
func IsPayoutTerminal(status string) bool {
	return status == constants.PayoutStatusPaid || status == constants.PayoutStatusFailed
}
