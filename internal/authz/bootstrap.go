package authz

import "fmt"

// 预置角色
const (
	RoleReadonlyAuditor  = "role:readonly_auditor"
	RoleAffiliateManager = "role:affiliate_manager"
	RoleFinance          = "role:finance"
)

// RoleSeed 预置角色定义
type RoleSeed struct {
	Role     string
	Inherits []string
	Policies []Policy
}

// BuiltinRoleSeeds 结算后台角色矩阵
func BuiltinRoleSeeds() []RoleSeed {
	return []RoleSeed{
		{
			Role: RoleReadonlyAuditor,
			Policies: []Policy{
				{Object: "/admin/*", Action: "GET"},
			},
		},
		{
			Role:     RoleAffiliateManager,
			Inherits: []string{RoleReadonlyAuditor},
			Policies: []Policy{
				{Object: "/admin/affiliates/:id/status", Action: "PATCH"},
			},
		},
		{
			// 资金操作只归财务
			Role:     RoleFinance,
			Inherits: []string{RoleReadonlyAuditor},
			Policies: []Policy{
				{Object: "/admin/payouts/:id/process", Action: "POST"},
				{Object: "/admin/payouts/:id/fail", Action: "POST"},
				{Object: "/admin/payout-runs", Action: "POST"},
			},
		},
	}
}

// IsBuiltinRole 是否为预置角色
func IsBuiltinRole(role string) bool {
	for _, seed := range BuiltinRoleSeeds() {
		if seed.Role == role {
			return true
		}
	}
	return false
}

// BootstrapBuiltinRoles 写入预置角色、继承关系与策略，重复执行无副作用
func (s *Service) BootstrapBuiltinRoles() error {
	if s == nil || s.enforcer == nil {
		return errUnavailable
	}
	for _, seed := range BuiltinRoleSeeds() {
		if _, err := s.enforcer.AddNamedGroupingPolicy("g", seed.Role, roleAnchor); err != nil {
			return fmt.Errorf("create builtin role %s failed: %w", seed.Role, err)
		}
		for _, parent := range seed.Inherits {
			if _, err := s.enforcer.AddNamedGroupingPolicy("g", seed.Role, parent); err != nil {
				return fmt.Errorf("link role %s -> %s failed: %w", seed.Role, parent, err)
			}
		}
		for _, policy := range seed.Policies {
			if _, err := s.enforcer.AddPolicy(seed.Role, NormalizeObject(policy.Object), NormalizeAction(policy.Action)); err != nil {
				return fmt.Errorf("add builtin policy for %s failed: %w", seed.Role, err)
			}
		}
	}
	return nil
}
