package repository

import (
	"github.com/botdesk-next/internal/models"

	"gorm.io/gorm"
)

// UserRepository 平台用户只读镜像，推荐与结算只需邮箱和状态
type UserRepository interface {
	GetByEmail(email string) (*models.User, error)
	GetByID(id uint) (*models.User, error)
	Create(user *models.User) error
}

// GormUserRepository GORM 实现
type GormUserRepository struct {
	db *gorm.DB
}

// NewUserRepository 创建用户仓库
func NewUserRepository(db *gorm.DB) *GormUserRepository {
	return &GormUserRepository{db: db}
}

// GetByEmail 邮箱统一小写后匹配
func (r *GormUserRepository) GetByEmail(email string) (*models.User, error) {
	normalized := models.NormalizeEmail(email)
	if normalized == "" {
		return nil, nil
	}
	return firstOrNil[models.User](r.db.Where("email = ?", normalized))
}

func (r *GormUserRepository) GetByID(id uint) (*models.User, error) {
	if id == 0 {
		return nil, nil
	}
	return firstOrNil[models.User](r.db, id)
}

// Create 写入用户镜像（仅种子数据与测试使用）
func (r *GormUserRepository) Create(user *models.User) error {
	if user == nil {
		return nil
	}
	user.Email = models.NormalizeEmail(user.Email)
	return r.db.Create(user).Error
}
