package service

import (
	"strings"
	"time"

	"github.com/botdesk-next/internal/authz"
	"github.com/botdesk-next/internal/logger"
	"github.com/botdesk-next/internal/models"
	"github.com/botdesk-next/internal/repository"
)

const authzActionSetRoles = "admin_roles_set"

// SetAdminRolesInput 角色分配参数
type SetAdminRolesInput struct {
	OperatorAdminID  uint
	OperatorUsername string
	TargetAdminID    uint
	Roles            []string
	RequestID        string
}

// AdminRoleView 管理员及其角色
type AdminRoleView struct {
	AdminID  uint     `json:"admin_id"`
	Username string   `json:"username"`
	IsSuper  bool     `json:"is_super"`
	Roles    []string `json:"roles"`
}

// AdminRoleService 管理员角色分配，每次变更写审计记录
type AdminRoleService struct {
	authz     *authz.Service
	adminRepo repository.AdminRepository
	auditRepo repository.AuthzAuditLogRepository
}

// NewAdminRoleService 创建角色分配服务
func NewAdminRoleService(authzService *authz.Service, adminRepo repository.AdminRepository, auditRepo repository.AuthzAuditLogRepository) *AdminRoleService {
	return &AdminRoleService{authz: authzService, adminRepo: adminRepo, auditRepo: auditRepo}
}

// ListRoles 可分配的角色
func (s *AdminRoleService) ListRoles() ([]string, error) {
	return s.authz.ListRoles()
}

// GetAdminRoles 查询管理员角色
func (s *AdminRoleService) GetAdminRoles(adminID uint) (*AdminRoleView, error) {
	admin, err := s.adminRepo.GetByID(adminID)
	if err != nil {
		return nil, err
	}
	if admin == nil {
		return nil, ErrNotFound
	}
	roles, err := s.authz.GetAdminRoles(admin.ID)
	if err != nil {
		return nil, err
	}
	return &AdminRoleView{AdminID: admin.ID, Username: admin.Username, IsSuper: admin.IsSuper, Roles: roles}, nil
}

// SetAdminRoles 覆盖管理员角色
func (s *AdminRoleService) SetAdminRoles(input SetAdminRolesInput) (*AdminRoleView, error) {
	before, err := s.GetAdminRoles(input.TargetAdminID)
	if err != nil {
		return nil, err
	}
	after, err := s.authz.SetAdminRoles(before.AdminID, input.Roles)
	if err != nil {
		return nil, err
	}

	entry := &models.AuthzAuditLog{
		OperatorAdminID:  input.OperatorAdminID,
		OperatorUsername: strings.TrimSpace(input.OperatorUsername),
		TargetAdminID:    before.AdminID,
		TargetUsername:   before.Username,
		Action:           authzActionSetRoles,
		RolesBefore:      models.JSON{"roles": before.Roles},
		RolesAfter:       models.JSON{"roles": after},
		RequestID:        strings.TrimSpace(input.RequestID),
		CreatedAt:        time.Now().UTC(),
	}
	if err := s.auditRepo.Create(entry); err != nil {
		// 角色已生效，审计失败只记录日志
		logger.Errorw("authz_audit_write_failed", "target_admin_id", before.AdminID, "operator_admin_id", input.OperatorAdminID, "error", err)
	}
	logger.Infow("admin_roles_updated", "target_admin_id", before.AdminID, "operator_admin_id", input.OperatorAdminID, "roles", after)

	before.Roles = after
	return before, nil
}

// ListAuditLogs 角色审计记录
func (s *AdminRoleService) ListAuditLogs(filter repository.AuthzAuditLogListFilter) ([]models.AuthzAuditLog, int64, error) {
	return s.auditRepo.List(filter)
}
