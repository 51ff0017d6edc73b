package repository

import (
	"time"

	"github.com/botdesk-next/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RunLeaseRepository 数据库租约数据访问接口
type RunLeaseRepository interface {
	TryAcquire(name, holder string, ttl time.Duration, now time.Time) (bool, error)
	Refresh(name, holder string, ttl time.Duration, now time.Time) (bool, error)
	Release(name, holder string) error
}

// GormRunLeaseRepository GORM 实现
type GormRunLeaseRepository struct {
	db *gorm.DB
}

// NewRunLeaseRepository 创建租约仓储
func NewRunLeaseRepository(db *gorm.DB) *GormRunLeaseRepository {
	return &GormRunLeaseRepository{db: db}
}

// TryAcquire 获取租约：不存在时插入，已过期时接管
func (r *GormRunLeaseRepository) TryAcquire(name, holder string, ttl time.Duration, now time.Time) (bool, error) {
	acquired := false
	err := r.db.Transaction(func(tx *gorm.DB) error {
		lease := models.RunLease{
			Name:      name,
			Holder:    holder,
			ExpiresAt: now.Add(ttl),
			UpdatedAt: now,
		}
		inserted := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&lease)
		if inserted.Error != nil {
			return inserted.Error
		}
		if inserted.RowsAffected > 0 {
			acquired = true
			return nil
		}
		taken := tx.Model(&models.RunLease{}).
			Where("name = ? AND expires_at < ?", name, now).
			Updates(map[string]interface{}{
				"holder":     holder,
				"expires_at": now.Add(ttl),
				"updated_at": now,
			})
		if taken.Error != nil {
			return taken.Error
		}
		acquired = taken.RowsAffected > 0
		return nil
	})
	return acquired, err
}

// Refresh 续期租约，仅持有者可续期
func (r *GormRunLeaseRepository) Refresh(name, holder string, ttl time.Duration, now time.Time) (bool, error) {
	result := r.db.Model(&models.RunLease{}).
		Where("name = ? AND holder = ?", name, holder).
		Updates(map[string]interface{}{
			"expires_at": now.Add(ttl),
			"updated_at": now,
		})
	return result.RowsAffected > 0, result.Error
}

// Release 释放租约，仅持有者可释放
func (r *GormRunLeaseRepository) Release(name, holder string) error {
	return r.db.Where("name = ? AND holder = ?", name, holder).Delete(&models.RunLease{}).Error
}
