package admin

import (
	"github.com/botdesk-next/internal/authz"
	handlershared "github.com/botdesk-next/internal/http/handlers/shared"
	"github.com/botdesk-next/internal/http/response"
	"github.com/botdesk-next/internal/repository"
	"github.com/botdesk-next/internal/service"

	"github.com/gin-gonic/gin"
)

var authzErrorRules = []handlershared.MappedError{
	{Target: authz.ErrUnknownRole, Code: response.CodeBadRequest, Key: "error.role_unknown"},
	{Target: service.ErrNotFound, Code: response.CodeNotFound, Key: "error.admin_id_invalid"},
}

type roleView struct {
	Role     string         `json:"role"`
	Policies []authz.Policy `json:"policies"`
}

// ListAuthzRoles 可分配角色及其策略
func (h *Handler) ListAuthzRoles(c *gin.Context) {
	roles, err := h.AdminRoleService.ListRoles()
	if err != nil {
		respondError(c, response.CodeInternal, "error.internal", err)
		return
	}
	items := make([]roleView, 0, len(roles))
	for _, role := range roles {
		policies, err := h.AuthzService.RolePolicies(role)
		if err != nil {
			respondError(c, response.CodeInternal, "error.internal", err)
			return
		}
		items = append(items, roleView{Role: role, Policies: policies})
	}
	response.Success(c, items)
}

// GetAdminRoles 查询管理员角色
func (h *Handler) GetAdminRoles(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	view, err := h.AdminRoleService.GetAdminRoles(id)
	if err != nil {
		respondMappedError(c, err, authzErrorRules)
		return
	}
	response.Success(c, view)
}

// SetAdminRolesRequest 覆盖管理员角色请求
type SetAdminRolesRequest struct {
	Roles []string `json:"roles"`
}

// SetAdminRoles 覆盖管理员角色
func (h *Handler) SetAdminRoles(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	operatorID, ok := getAdminID(c)
	if !ok {
		return
	}
	var req SetAdminRolesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	view, err := h.AdminRoleService.SetAdminRoles(service.SetAdminRolesInput{
		OperatorAdminID:  operatorID,
		OperatorUsername: currentUsername(c),
		TargetAdminID:    id,
		Roles:            req.Roles,
		RequestID:        currentRequestID(c),
	})
	if err != nil {
		respondMappedError(c, err, authzErrorRules)
		return
	}
	h.auditLog(c, "admin_roles_updated", "target_admin_id", id, "roles", req.Roles)
	response.Success(c, view)
}

// ListAuthzAuditLogs 角色变更审计
func (h *Handler) ListAuthzAuditLogs(c *gin.Context) {
	page, pageSize := handlershared.QueryPagination(c)
	operatorID, err := handlershared.ParseUintQuery(c, "operator_admin_id")
	if err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	targetID, err := handlershared.ParseUintQuery(c, "target_admin_id")
	if err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	rows, total, err := h.AdminRoleService.ListAuditLogs(repository.AuthzAuditLogListFilter{
		Page:            page,
		PageSize:        pageSize,
		OperatorAdminID: operatorID,
		TargetAdminID:   targetID,
	})
	if err != nil {
		respondError(c, response.CodeInternal, "error.internal", err)
		return
	}
	response.SuccessWithPage(c, rows, response.BuildPagination(page, pageSize, total))
}
