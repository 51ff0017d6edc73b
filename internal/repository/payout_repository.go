package repository

import (
	"strings"

	"github.com/botdesk-next/internal/constants"
	"github.com/botdesk-next/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PayoutRepository 结算单数据访问接口
type PayoutRepository interface {
	WithTx(tx *gorm.DB) PayoutRepository

	Create(payout *models.Payout) error
	GetByID(id uint) (*models.Payout, error)
	GetByIDForUpdate(id uint) (*models.Payout, error)
	Transit(id uint, from, to string, updates map[string]interface{}) (int64, error)
	CountInFlight(affiliateID uint, statuses []string) (int64, error)
	SumReserved(affiliateID uint) (models.Cents, error)
	List(filter PayoutListFilter) ([]models.Payout, int64, error)
}

// GormPayoutRepository GORM 结算单仓储
type GormPayoutRepository struct {
	db *gorm.DB
}

// NewPayoutRepository 创建结算单仓储
func NewPayoutRepository(db *gorm.DB) *GormPayoutRepository {
	return &GormPayoutRepository{db: db}
}

// WithTx 绑定事务
func (r *GormPayoutRepository) WithTx(tx *gorm.DB) PayoutRepository {
	if tx == nil {
		return r
	}
	return &GormPayoutRepository{db: tx}
}

// Create 创建结算单
func (r *GormPayoutRepository) Create(payout *models.Payout) error {
	return r.db.Create(payout).Error
}

// GetByID 按ID获取结算单
func (r *GormPayoutRepository) GetByID(id uint) (*models.Payout, error) {
	if id == 0 {
		return nil, nil
	}
	return firstOrNil[models.Payout](r.db.Preload("Affiliate"), id)
}

// GetByIDForUpdate 按ID获取并锁定结算单
func (r *GormPayoutRepository) GetByIDForUpdate(id uint) (*models.Payout, error) {
	if id == 0 {
		return nil, nil
	}
	return firstOrNil[models.Payout](r.db.Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

// Transit 条件推进结算单状态，当前状态不匹配或流转不合法时影响行数为 0
func (r *GormPayoutRepository) Transit(id uint, from, to string, updates map[string]interface{}) (int64, error) {
	if id == 0 || !models.CanTransitPayoutStatus(from, to) {
		return 0, nil
	}
	values := make(map[string]interface{}, len(updates)+1)
	for key, value := range updates {
		values[key] = value
	}
	values["status"] = to
	result := r.db.Model(&models.Payout{}).
		Where("id = ? AND status = ?", id, from).
		Updates(values)
	return result.RowsAffected, result.Error
}

// CountInFlight 统计指定状态的结算单数量
func (r *GormPayoutRepository) CountInFlight(affiliateID uint, statuses []string) (int64, error) {
	if affiliateID == 0 || len(statuses) == 0 {
		return 0, nil
	}
	var count int64
	err := r.db.Model(&models.Payout{}).
		Where("affiliate_id = ? AND status IN ?", affiliateID, statuses).
		Count(&count).Error
	return count, err
}

// SumReserved 汇总已预扣但尚未完成的结算金额
func (r *GormPayoutRepository) SumReserved(affiliateID uint) (models.Cents, error) {
	if affiliateID == 0 {
		return 0, nil
	}
	var total int64
	err := r.db.Model(&models.Payout{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("affiliate_id = ? AND reserved = ?", affiliateID, true).
		Where("status IN ?", []string{constants.PayoutStatusPending, constants.PayoutStatusProcessing}).
		Scan(&total).Error
	return models.Cents(total), err
}

// List 查询结算单列表
func (r *GormPayoutRepository) List(filter PayoutListFilter) ([]models.Payout, int64, error) {
	query := r.db.Model(&models.Payout{})
	if filter.AffiliateID != 0 {
		query = query.Where("affiliate_id = ?", filter.AffiliateID)
	}
	if filter.RunID != 0 {
		query = query.Where("run_id = ?", filter.RunID)
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		query = query.Where("status = ?", status)
	}
	if method := strings.TrimSpace(filter.Method); method != "" {
		query = query.Where("method = ?", method)
	}
	if filter.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("created_at <= ?", *filter.CreatedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	var rows []models.Payout
	if err := query.Preload("Affiliate").Order("id asc").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}
