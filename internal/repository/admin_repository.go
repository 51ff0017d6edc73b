package repository

import (
	"strings"
	"time"

	"github.com/botdesk-next/internal/models"

	"gorm.io/gorm"
)

// AdminRepository 后台操作员数据访问接口
type AdminRepository interface {
	GetByUsername(username string) (*models.Admin, error)
	GetByID(id uint) (*models.Admin, error)
	Create(admin *models.Admin) error
	TouchLastLogin(id uint, at time.Time) error
}

// GormAdminRepository GORM 实现
type GormAdminRepository struct {
	db *gorm.DB
}

// NewAdminRepository 创建操作员仓库
func NewAdminRepository(db *gorm.DB) *GormAdminRepository {
	return &GormAdminRepository{db: db}
}

// GetByUsername 按登录名查找，名称前后空白忽略
func (r *GormAdminRepository) GetByUsername(username string) (*models.Admin, error) {
	name := strings.TrimSpace(username)
	if name == "" {
		return nil, nil
	}
	return firstOrNil[models.Admin](r.db.Where("username = ?", name))
}

func (r *GormAdminRepository) GetByID(id uint) (*models.Admin, error) {
	if id == 0 {
		return nil, nil
	}
	return firstOrNil[models.Admin](r.db, id)
}

func (r *GormAdminRepository) Create(admin *models.Admin) error {
	return r.db.Create(admin).Error
}

// TouchLastLogin 记录最近一次登录，用于审计台账展示
func (r *GormAdminRepository) TouchLastLogin(id uint, at time.Time) error {
	if id == 0 {
		return nil
	}
	return r.db.Model(&models.Admin{}).Where("id = ?", id).UpdateColumn("last_login_at", at).Error
}
