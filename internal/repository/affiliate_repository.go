package repository

import (
	"strings"
	"time"

	"github.com/botdesk-next/internal/constants"
	"github.com/botdesk-next/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AffiliateRepository 推广账户数据访问接口
type AffiliateRepository interface {
	Transaction(fn func(tx *gorm.DB) error) error
	WithTx(tx *gorm.DB) AffiliateRepository

	GetByID(id uint) (*models.Affiliate, error)
	GetByIDForUpdate(id uint) (*models.Affiliate, error)
	GetByUserID(userID uint) (*models.Affiliate, error)
	GetByUserIDForUpdate(userID uint) (*models.Affiliate, error)
	GetByCode(code string) (*models.Affiliate, error)
	Create(affiliate *models.Affiliate) error
	UpdatePaymentInfo(id uint, paypalEmail, bankAccount string, updatedAt time.Time) error
	UpdateStatus(id uint, status string, updatedAt time.Time) (int64, error)
	List(filter AffiliateListFilter) ([]models.Affiliate, int64, error)
	ListBatchEligible() ([]models.Affiliate, error)

	CreditEarnings(id uint, amount models.Cents, updatedAt time.Time) (int64, error)
	ReservePending(id uint, expectedPending models.Cents, updatedAt time.Time) (int64, error)
	SettlePending(id uint, amount models.Cents, paidAt time.Time) (int64, error)
	RestoreReserved(id uint, amount models.Cents, updatedAt time.Time) (int64, error)
	TouchLastPayout(id uint, paidAt time.Time) error
}

// GormAffiliateRepository GORM 推广账户仓储
type GormAffiliateRepository struct {
	db *gorm.DB
}

// NewAffiliateRepository 创建推广账户仓储
func NewAffiliateRepository(db *gorm.DB) *GormAffiliateRepository {
	return &GormAffiliateRepository{db: db}
}

// WithTx 绑定事务
func (r *GormAffiliateRepository) WithTx(tx *gorm.DB) AffiliateRepository {
	if tx == nil {
		return r
	}
	return &GormAffiliateRepository{db: tx}
}

// Transaction 执行事务
func (r *GormAffiliateRepository) Transaction(fn func(tx *gorm.DB) error) error {
	if fn == nil {
		return nil
	}
	return r.db.Transaction(fn)
}

func (r *GormAffiliateRepository) first(query *gorm.DB) (*models.Affiliate, error) {
	return firstOrNil[models.Affiliate](query)
}

// GetByID 按ID获取推广账户
func (r *GormAffiliateRepository) GetByID(id uint) (*models.Affiliate, error) {
	if id == 0 {
		return nil, nil
	}
	return r.first(r.db.Where("id = ?", id))
}

// GetByIDForUpdate 按ID获取并锁定推广账户
func (r *GormAffiliateRepository) GetByIDForUpdate(id uint) (*models.Affiliate, error) {
	if id == 0 {
		return nil, nil
	}
	return r.first(r.db.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id))
}

// GetByUserID 按用户ID获取推广账户
func (r *GormAffiliateRepository) GetByUserID(userID uint) (*models.Affiliate, error) {
	if userID == 0 {
		return nil, nil
	}
	return r.first(r.db.Where("user_id = ?", userID))
}

// GetByUserIDForUpdate 按用户ID获取并锁定推广账户
func (r *GormAffiliateRepository) GetByUserIDForUpdate(userID uint) (*models.Affiliate, error) {
	if userID == 0 {
		return nil, nil
	}
	return r.first(r.db.Clauses(clause.Locking{Strength: "UPDATE"}).Where("user_id = ?", userID))
}

// GetByCode 按推广码获取推广账户
func (r *GormAffiliateRepository) GetByCode(code string) (*models.Affiliate, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if normalized == "" {
		return nil, nil
	}
	return r.first(r.db.Where("affiliate_code = ?", normalized))
}

// Create 创建推广账户
func (r *GormAffiliateRepository) Create(affiliate *models.Affiliate) error {
	return r.db.Create(affiliate).Error
}

// UpdatePaymentInfo 更新收款信息
func (r *GormAffiliateRepository) UpdatePaymentInfo(id uint, paypalEmail, bankAccount string, updatedAt time.Time) error {
	if id == 0 {
		return nil
	}
	return r.db.Model(&models.Affiliate{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"paypal_email": paypalEmail,
			"bank_account": bankAccount,
			"updated_at":   updatedAt,
		}).Error
}

// UpdateStatus 更新推广账户状态
func (r *GormAffiliateRepository) UpdateStatus(id uint, status string, updatedAt time.Time) (int64, error) {
	if id == 0 {
		return 0, nil
	}
	result := r.db.Model(&models.Affiliate{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     strings.TrimSpace(status),
			"updated_at": updatedAt,
		})
	return result.RowsAffected, result.Error
}

// List 查询推广账户列表
func (r *GormAffiliateRepository) List(filter AffiliateListFilter) ([]models.Affiliate, int64, error) {
	query := r.db.Model(&models.Affiliate{}).Preload("User")
	if status := strings.TrimSpace(filter.Status); status != "" {
		query = query.Where("affiliates.status = ?", status)
	}
	if cond, args := buildKeywordCondition(r.db, []string{
		"affiliates.affiliate_code",
		"affiliates.paypal_email",
		"users.email",
	}, filter.Keyword); cond != "" {
		query = query.
			Joins("LEFT JOIN users ON users.id = affiliates.user_id").
			Where(cond, args...)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	var rows []models.Affiliate
	if err := query.Order("affiliates.id desc").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// ListBatchEligible 查询批量结算候选：启用、达到门槛且已配置 PayPal
func (r *GormAffiliateRepository) ListBatchEligible() ([]models.Affiliate, error) {
	var rows []models.Affiliate
	err := r.db.
		Where("status = ?", constants.AffiliateStatusActive).
		Where("pending_earnings > 0").
		Where("pending_earnings >= minimum_payout").
		Where("paypal_email <> ''").
		Order("id asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// CreditEarnings 入账佣金：累计与待结算同时增加
func (r *GormAffiliateRepository) CreditEarnings(id uint, amount models.Cents, updatedAt time.Time) (int64, error) {
	if id == 0 || amount < 0 {
		return 0, nil
	}
	result := r.db.Model(&models.Affiliate{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"total_earnings":   gorm.Expr("total_earnings + ?", int64(amount)),
			"pending_earnings": gorm.Expr("pending_earnings + ?", int64(amount)),
			"updated_at":       updatedAt,
		})
	return result.RowsAffected, result.Error
}

// ReservePending 预扣待结算余额：仅当余额仍等于预期快照时整体转入已结算
func (r *GormAffiliateRepository) ReservePending(id uint, expectedPending models.Cents, updatedAt time.Time) (int64, error) {
	if id == 0 || expectedPending <= 0 {
		return 0, nil
	}
	result := r.db.Model(&models.Affiliate{}).
		Where("id = ? AND pending_earnings = ?", id, int64(expectedPending)).
		Updates(map[string]interface{}{
			"pending_earnings": 0,
			"paid_earnings":    gorm.Expr("paid_earnings + ?", int64(expectedPending)),
			"updated_at":       updatedAt,
		})
	return result.RowsAffected, result.Error
}

// SettlePending 结算成功后从待结算扣减快照金额
func (r *GormAffiliateRepository) SettlePending(id uint, amount models.Cents, paidAt time.Time) (int64, error) {
	if id == 0 || amount <= 0 {
		return 0, nil
	}
	result := r.db.Model(&models.Affiliate{}).
		Where("id = ? AND pending_earnings >= ?", id, int64(amount)).
		Updates(map[string]interface{}{
			"pending_earnings": gorm.Expr("pending_earnings - ?", int64(amount)),
			"paid_earnings":    gorm.Expr("paid_earnings + ?", int64(amount)),
			"last_payout_date": paidAt,
			"updated_at":       paidAt,
		})
	return result.RowsAffected, result.Error
}

// RestoreReserved 结算单失败时退回预扣金额
func (r *GormAffiliateRepository) RestoreReserved(id uint, amount models.Cents, updatedAt time.Time) (int64, error) {
	if id == 0 || amount <= 0 {
		return 0, nil
	}
	result := r.db.Model(&models.Affiliate{}).
		Where("id = ? AND paid_earnings >= ?", id, int64(amount)).
		Updates(map[string]interface{}{
			"pending_earnings": gorm.Expr("pending_earnings + ?", int64(amount)),
			"paid_earnings":    gorm.Expr("paid_earnings - ?", int64(amount)),
			"updated_at":       updatedAt,
		})
	return result.RowsAffected, result.Error
}

// TouchLastPayout 更新最近结算时间
func (r *GormAffiliateRepository) TouchLastPayout(id uint, paidAt time.Time) error {
	if id == 0 {
		return nil
	}
	return r.db.Model(&models.Affiliate{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_payout_date": paidAt,
			"updated_at":       paidAt,
		}).Error
}
