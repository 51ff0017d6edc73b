package repository

import (
	"time"

	"github.com/botdesk-next/internal/constants"
	"github.com/botdesk-next/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NotificationRepository 通知发件箱数据访问接口
type NotificationRepository interface {
	Create(event *models.NotificationEvent) (bool, error)
	GetByID(id uint) (*models.NotificationEvent, error)
	Claim(id uint, now time.Time) (int64, error)
	MarkSent(id uint, sentAt time.Time) error
	MarkSkipped(id uint, reason string, at time.Time) error
	MarkRetry(id uint, lastError string, nextAttemptAt time.Time) error
	MarkFailed(id uint, lastError string, at time.Time) error
	ListDue(now time.Time, limit int) ([]models.NotificationEvent, error)
	ReclaimStale(before, now time.Time) (int64, error)
	CountByStatus() (map[string]int64, error)
}

// GormNotificationRepository GORM 实现
type GormNotificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository 创建通知发件箱仓储
func NewNotificationRepository(db *gorm.DB) *GormNotificationRepository {
	return &GormNotificationRepository{db: db}
}

// Create 写入事件，去重键冲突时忽略并返回 false
func (r *GormNotificationRepository) Create(event *models.NotificationEvent) (bool, error) {
	result := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "dedupe_key"}},
		DoNothing: true,
	}).Create(event)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// GetByID 按ID获取事件
func (r *GormNotificationRepository) GetByID(id uint) (*models.NotificationEvent, error) {
	if id == 0 {
		return nil, nil
	}
	return firstOrNil[models.NotificationEvent](r.db, id)
}

// Claim 抢占待发送事件，成功时影响行数为 1
func (r *GormNotificationRepository) Claim(id uint, now time.Time) (int64, error) {
	result := r.db.Model(&models.NotificationEvent{}).
		Where("id = ? AND status = ? AND next_attempt_at <= ?", id, constants.NotificationStatusPending, now).
		Updates(map[string]interface{}{
			"status":     constants.NotificationStatusSending,
			"attempts":   gorm.Expr("attempts + 1"),
			"updated_at": now,
		})
	return result.RowsAffected, result.Error
}

// MarkSent 标记发送成功
func (r *GormNotificationRepository) MarkSent(id uint, sentAt time.Time) error {
	return r.db.Model(&models.NotificationEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     constants.NotificationStatusSent,
			"sent_at":    sentAt,
			"last_error": "",
			"updated_at": sentAt,
		}).Error
}

// MarkSkipped 标记跳过（如配额耗尽）
func (r *GormNotificationRepository) MarkSkipped(id uint, reason string, at time.Time) error {
	return r.db.Model(&models.NotificationEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     constants.NotificationStatusSkipped,
			"last_error": reason,
			"updated_at": at,
		}).Error
}

// MarkRetry 回退为待发送并设置下次尝试时间
func (r *GormNotificationRepository) MarkRetry(id uint, lastError string, nextAttemptAt time.Time) error {
	return r.db.Model(&models.NotificationEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":          constants.NotificationStatusPending,
			"last_error":      lastError,
			"next_attempt_at": nextAttemptAt,
			"updated_at":      time.Now().UTC(),
		}).Error
}

// MarkFailed 标记最终失败
func (r *GormNotificationRepository) MarkFailed(id uint, lastError string, at time.Time) error {
	return r.db.Model(&models.NotificationEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     constants.NotificationStatusFailed,
			"last_error": lastError,
			"updated_at": at,
		}).Error
}

// ListDue 查询已到期的待发送事件
func (r *GormNotificationRepository) ListDue(now time.Time, limit int) ([]models.NotificationEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []models.NotificationEvent
	err := r.db.
		Where("status = ? AND next_attempt_at <= ?", constants.NotificationStatusPending, now).
		Order("next_attempt_at asc, id asc").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ReclaimStale 回收长时间停留在 sending 的事件（进程崩溃等）
func (r *GormNotificationRepository) ReclaimStale(before, now time.Time) (int64, error) {
	result := r.db.Model(&models.NotificationEvent{}).
		Where("status = ? AND updated_at < ?", constants.NotificationStatusSending, before).
		Updates(map[string]interface{}{
			"status":          constants.NotificationStatusPending,
			"next_attempt_at": now,
			"updated_at":      now,
		})
	return result.RowsAffected, result.Error
}

// CountByStatus 按状态统计事件数量
func (r *GormNotificationRepository) CountByStatus() (map[string]int64, error) {
	type row struct {
		Status string
		Total  int64
	}
	var rows []row
	err := r.db.Model(&models.NotificationEvent{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	result := make(map[string]int64, len(rows))
	for _, item := range rows {
		result[item.Status] = item.Total
	}
	return result, nil
}
