package models

import (
	"strings"

	"github.com/botdesk-next/internal/logger"

	"golang.org/x/crypto/bcrypt"
)

const (
	defaultAdminUsername = "admin"
	defaultAdminPassword = "admin123"
)

// InitDefaultAdmin 空库时创建超级管理员，用于首次分配财务与运营角色
// 只要已有未删除的管理员就不做修改。
func InitDefaultAdmin(username, password string) error {
	var count int64
	if err := DB.Model(&Admin{}).Count(&count).Error; err != nil || count > 0 {
		return err
	}

	if username = strings.TrimSpace(username); username == "" {
		username = defaultAdminUsername
	}
	if password == "" {
		password = defaultAdminPassword
	}
	weak := password == defaultAdminPassword
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := DB.Create(&Admin{Username: username, PasswordHash: string(hash), IsSuper: true}).Error; err != nil {
		return err
	}

	if weak {
		logger.Warnw("default_admin_password_change_required", "username", username)
		return nil
	}
	logger.Infow("default_admin_created", "username", username)
	return nil
}
