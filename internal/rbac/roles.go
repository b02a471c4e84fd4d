package rbac

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/odyssey-erp/odyssey-docflow/internal/catalog"
	"github.com/odyssey-erp/odyssey-docflow/internal/shared"
)

// Role is a named bundle of capabilities assigned to actors.
type Role string

// Known roles. Superuser holds every capability implicitly and never appears
// in the stored matrix.
const (
	RoleAdmin                     Role = "admin"
	RoleDirectorGeneral           Role = "director_general"
	RoleFinanceDirector           Role = "finance_director"
	RoleAccountant                Role = "accountant"
	RoleLogisticsLead             Role = "logistics_lead"
	RoleLogisticsAgent            Role = "logistics_agent"
	RoleProcurementLead           Role = "procurement_lead"
	RoleProcurementAgent          Role = "procurement_agent"
	RoleDepartmentLead            Role = "department_lead"
	RoleEmployee                  Role = "employee"
	RoleReadOnly                  Role = "read_only"
	RoleProcurementLogisticsAdmin Role = "procurement_logistics_admin"
)

// Superuser is the role exempt from the matrix.
const Superuser = RoleAdmin

// Roles lists every known role, superuser first.
func Roles() []Role {
	return []Role{
		RoleAdmin,
		RoleDirectorGeneral,
		RoleFinanceDirector,
		RoleAccountant,
		RoleLogisticsLead,
		RoleLogisticsAgent,
		RoleProcurementLead,
		RoleProcurementAgent,
		RoleDepartmentLead,
		RoleEmployee,
		RoleReadOnly,
		RoleProcurementLogisticsAdmin,
	}
}

// IsValid reports whether the role is known.
func (r Role) IsValid() bool {
	for _, known := range Roles() {
		if r == known {
			return true
		}
	}
	return false
}

// RoleSet is a sorted, de-duplicated list of roles.
type RoleSet []Role

// NewRoleSet normalises roles into a RoleSet.
func NewRoleSet(roles ...Role) RoleSet {
	seen := make(map[Role]struct{}, len(roles))
	out := make(RoleSet, 0, len(roles))
	for _, r := range roles {
		r = Role(strings.TrimSpace(strings.ToLower(string(r))))
		if r == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseRoleSet parses a comma separated role list, rejecting unknown roles.
func ParseRoleSet(raw string) (RoleSet, error) {
	parts := strings.Split(raw, ",")
	roles := make([]Role, 0, len(parts))
	for _, part := range parts {
		roles = append(roles, Role(part))
	}
	set := NewRoleSet(roles...)
	for _, r := range set {
		if !r.IsValid() {
			return nil, shared.ValidationError("unknown_role", "roles", fmt.Sprintf("unknown role %q", r))
		}
	}
	return set, nil
}

// Key is the canonical cache key of the set.
func (s RoleSet) Key() string {
	parts := make([]string, len(s))
	for i, r := range s {
		parts[i] = string(r)
	}
	return strings.Join(parts, ",")
}

// Contains reports membership.
func (s RoleSet) Contains(role Role) bool {
	for _, r := range s {
		if r == role {
			return true
		}
	}
	return false
}

// HasSuperuser reports whether the set includes the superuser role.
func (s RoleSet) HasSuperuser() bool {
	return s.Contains(Superuser)
}

// Strings returns the roles as plain strings.
func (s RoleSet) Strings() []string {
	out := make([]string, len(s))
	for i, r := range s {
		out[i] = string(r)
	}
	return out
}

// Grant is one edge of the role-permission matrix.
type Grant struct {
	Role       Role               `json:"role"`
	Capability catalog.Capability `json:"capability"`
}

// Actor is the authenticated caller performing an operation.
type Actor struct {
	ID        string
	Roles     RoleSet
	IP        string
	UserAgent string
	RequestID string
}

// SystemActor is used by bootstrap and CLI operations.
func SystemActor(id string) Actor {
	if id == "" {
		id = "system"
	}
	return Actor{ID: id, Roles: NewRoleSet(Superuser)}
}

type actorKey struct{}

// WithActor stores the actor in the context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the actor stored by the authentication middleware.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(Actor)
	return actor, ok
}
