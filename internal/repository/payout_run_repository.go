package repository

import (
	"strings"

	"github.com/botdesk-next/internal/models"

	"gorm.io/gorm"
)

// PayoutRunRepository 批量结算运行记录数据访问接口
type PayoutRunRepository interface {
	Create(run *models.PayoutRun) error
	Update(run *models.PayoutRun) error
	GetByID(id uint) (*models.PayoutRun, error)
	GetLatest() (*models.PayoutRun, error)
	List(filter PayoutRunListFilter) ([]models.PayoutRun, int64, error)
}

// GormPayoutRunRepository GORM 实现
type GormPayoutRunRepository struct {
	db *gorm.DB
}

// NewPayoutRunRepository 创建运行记录仓储
func NewPayoutRunRepository(db *gorm.DB) *GormPayoutRunRepository {
	return &GormPayoutRunRepository{db: db}
}

// Create 创建运行记录
func (r *GormPayoutRunRepository) Create(run *models.PayoutRun) error {
	return r.db.Create(run).Error
}

// Update 保存运行记录
func (r *GormPayoutRunRepository) Update(run *models.PayoutRun) error {
	return r.db.Save(run).Error
}

// GetByID 按ID获取运行记录
func (r *GormPayoutRunRepository) GetByID(id uint) (*models.PayoutRun, error) {
	if id == 0 {
		return nil, nil
	}
	return firstOrNil[models.PayoutRun](r.db, id)
}

// GetLatest 获取最近一次运行记录
func (r *GormPayoutRunRepository) GetLatest() (*models.PayoutRun, error) {
	return firstOrNil[models.PayoutRun](r.db.Order("id desc"))
}

// List 查询运行记录列表
func (r *GormPayoutRunRepository) List(filter PayoutRunListFilter) ([]models.PayoutRun, int64, error) {
	query := r.db.Model(&models.PayoutRun{})
	if status := strings.TrimSpace(filter.Status); status != "" {
		query = query.Where("status = ?", status)
	}
	if trigger := strings.TrimSpace(filter.Trigger); trigger != "" {
		query = query.Where("trigger_source = ?", trigger)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	var rows []models.PayoutRun
	if err := query.Order("id desc").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}
