package repository

import (
	"strings"
	"time"

	"github.com/botdesk-next/internal/constants"
	"github.com/botdesk-next/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReferralRepository 推荐记录数据访问接口
type ReferralRepository interface {
	WithTx(tx *gorm.DB) ReferralRepository

	Create(referral *models.Referral) error
	GetByID(id uint) (*models.Referral, error)
	GetByReferredUserID(userID uint) (*models.Referral, error)
	GetByReferredUserIDForUpdate(userID uint) (*models.Referral, error)
	MarkConverted(id uint, commission models.Cents, convertedAt time.Time) (int64, error)
	CaptureForPayout(affiliateID, payoutID uint) (int64, error)
	MarkPaidByPayout(payoutID uint) (int64, error)
	ReleaseByPayout(payoutID uint) (int64, error)
	ListByPayout(payoutID uint) ([]models.Referral, error)
	List(filter ReferralListFilter) ([]models.Referral, int64, error)
	StatsByAffiliate(affiliateID uint) (ReferralStatsAggregate, error)
}

// GormReferralRepository GORM 推荐记录仓储
type GormReferralRepository struct {
	db *gorm.DB
}

// NewReferralRepository 创建推荐记录仓储
func NewReferralRepository(db *gorm.DB) *GormReferralRepository {
	return &GormReferralRepository{db: db}
}

// WithTx 绑定事务
func (r *GormReferralRepository) WithTx(tx *gorm.DB) ReferralRepository {
	if tx == nil {
		return r
	}
	return &GormReferralRepository{db: tx}
}

func (r *GormReferralRepository) first(query *gorm.DB) (*models.Referral, error) {
	return firstOrNil[models.Referral](query)
}

// Create 创建推荐记录
func (r *GormReferralRepository) Create(referral *models.Referral) error {
	return r.db.Create(referral).Error
}

// GetByID 按ID获取推荐记录
func (r *GormReferralRepository) GetByID(id uint) (*models.Referral, error) {
	if id == 0 {
		return nil, nil
	}
	return r.first(r.db.Where("id = ?", id))
}

// GetByReferredUserID 按被推荐用户获取推荐记录
func (r *GormReferralRepository) GetByReferredUserID(userID uint) (*models.Referral, error) {
	if userID == 0 {
		return nil, nil
	}
	return r.first(r.db.Where("referred_user_id = ?", userID))
}

// GetByReferredUserIDForUpdate 按被推荐用户获取并锁定推荐记录
func (r *GormReferralRepository) GetByReferredUserIDForUpdate(userID uint) (*models.Referral, error) {
	if userID == 0 {
		return nil, nil
	}
	return r.first(r.db.Clauses(clause.Locking{Strength: "UPDATE"}).Where("referred_user_id = ?", userID))
}

// MarkConverted 标记转化，仅 pending 状态可以命中
func (r *GormReferralRepository) MarkConverted(id uint, commission models.Cents, convertedAt time.Time) (int64, error) {
	if id == 0 {
		return 0, nil
	}
	result := r.db.Model(&models.Referral{}).
		Where("id = ? AND status = ?", id, constants.ReferralStatusPending).
		Updates(map[string]interface{}{
			"status":            constants.ReferralStatusConverted,
			"commission_amount": int64(commission),
			"conversion_date":   convertedAt,
			"updated_at":        convertedAt,
		})
	return result.RowsAffected, result.Error
}

// CaptureForPayout 将尚未绑定且未支付的已转化记录绑定到结算单
func (r *GormReferralRepository) CaptureForPayout(affiliateID, payoutID uint) (int64, error) {
	if affiliateID == 0 || payoutID == 0 {
		return 0, nil
	}
	result := r.db.Model(&models.Referral{}).
		Where("affiliate_id = ?", affiliateID).
		Where("status = ?", constants.ReferralStatusConverted).
		Where("commission_paid = ?", false).
		Where("payout_id IS NULL").
		Update("payout_id", payoutID)
	return result.RowsAffected, result.Error
}

// MarkPaidByPayout 结算成功后标记绑定记录已支付
func (r *GormReferralRepository) MarkPaidByPayout(payoutID uint) (int64, error) {
	if payoutID == 0 {
		return 0, nil
	}
	result := r.db.Model(&models.Referral{}).
		Where("payout_id = ? AND commission_paid = ?", payoutID, false).
		Update("commission_paid", true)
	return result.RowsAffected, result.Error
}

// ReleaseByPayout 结算失败后解除绑定，等待下一次结算
func (r *GormReferralRepository) ReleaseByPayout(payoutID uint) (int64, error) {
	if payoutID == 0 {
		return 0, nil
	}
	result := r.db.Model(&models.Referral{}).
		Where("payout_id = ? AND commission_paid = ?", payoutID, false).
		Update("payout_id", nil)
	return result.RowsAffected, result.Error
}

// ListByPayout 查询结算单绑定的推荐记录
func (r *GormReferralRepository) ListByPayout(payoutID uint) ([]models.Referral, error) {
	var rows []models.Referral
	if payoutID == 0 {
		return rows, nil
	}
	if err := r.db.Where("payout_id = ?", payoutID).Order("id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// List 查询推荐记录列表
func (r *GormReferralRepository) List(filter ReferralListFilter) ([]models.Referral, int64, error) {
	query := r.db.Model(&models.Referral{})
	if filter.AffiliateID != 0 {
		query = query.Where("affiliate_id = ?", filter.AffiliateID)
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		query = query.Where("status = ?", status)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	var rows []models.Referral
	if err := query.Order("id desc").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// StatsByAffiliate 统计推荐记录数量
func (r *GormReferralRepository) StatsByAffiliate(affiliateID uint) (ReferralStatsAggregate, error) {
	stats := ReferralStatsAggregate{}
	if affiliateID == 0 {
		return stats, nil
	}
	type row struct {
		Status         string
		CommissionPaid bool
		Total          int64
	}
	var rows []row
	err := r.db.Model(&models.Referral{}).
		Select("status, commission_paid, COUNT(*) AS total").
		Where("affiliate_id = ?", affiliateID).
		Group("status, commission_paid").
		Scan(&rows).Error
	if err != nil {
		return stats, err
	}
	for _, item := range rows {
		stats.TotalCount += item.Total
		switch item.Status {
		case constants.ReferralStatusConverted:
			stats.ConvertedCount += item.Total
			if !item.CommissionPaid {
				stats.UnpaidCount += item.Total
			}
		case constants.ReferralStatusPending:
			stats.PendingCount += item.Total
		}
	}
	return stats, nil
}
