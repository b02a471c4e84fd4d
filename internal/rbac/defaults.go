package rbac

import "github.com/odyssey-erp/odyssey-docflow/internal/catalog"

func caps(module catalog.Module, actions ...catalog.Action) []catalog.Capability {
	out := make([]catalog.Capability, 0, len(actions))
	for _, a := range actions {
		out = append(out, catalog.Cap(module, a))
	}
	return out
}

func viewRead(modules ...catalog.Module) []catalog.Capability {
	var out []catalog.Capability
	for _, m := range modules {
		out = append(out, caps(m, catalog.ActionView, catalog.ActionRead)...)
	}
	return out
}

func join(groups ...[]catalog.Capability) []catalog.Capability {
	var out []catalog.Capability
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// DefaultGrants is the seed matrix applied to an empty store.
func DefaultGrants() []Grant {
	documents := []catalog.Module{
		catalog.ModuleNeed,
		catalog.ModuleNeedExpression,
		catalog.ModulePurchaseRequest,
		catalog.ModuleDeliveryNote,
		catalog.ModuleExpenseNote,
		catalog.ModuleOperationalReport,
	}

	employee := join(
		caps(catalog.ModuleNeed, "view", "read", "write", "delete", "submit"),
		caps(catalog.ModuleNeedExpression, "view", "read", "write", "delete", "submit"),
		caps(catalog.ModuleExpenseNote, "view", "read", "write", "delete", "submit"),
		caps(catalog.ModulePurchaseRequest, "view"),
	)
	logisticsAgent := join(
		caps(catalog.ModuleNeed, "view", "read", "take-in-charge"),
		caps(catalog.ModuleDeliveryNote, "view", "read", "write", "delete", "submit-validation"),
		caps(catalog.ModuleOperationalReport, "view", "read", "write", "delete", "submit"),
	)
	procurementAgent := caps(catalog.ModulePurchaseRequest, "view", "read", "write", "delete", "submit", "start-analysis", "price")

	matrix := map[Role][]catalog.Capability{
		RoleEmployee: employee,
		RoleDepartmentLead: join(employee,
			caps(catalog.ModuleNeedExpression, "start-review", "validate-department", "reject-department", "send-to-logistics"),
		),
		RoleLogisticsAgent: logisticsAgent,
		RoleLogisticsLead: join(logisticsAgent,
			caps(catalog.ModuleNeed, "accept", "refuse", "unlock"),
			caps(catalog.ModuleDeliveryNote, "validate", "deliver", "partially-deliver", "complete-delivery"),
		),
		RoleProcurementAgent: procurementAgent,
		RoleProcurementLead: join(procurementAgent,
			caps(catalog.ModulePurchaseRequest, "reject", "validate-ops", "reject-ops", "submit-finance-validation"),
		),
		RoleFinanceDirector: join(
			viewRead(catalog.ModulePurchaseRequest, catalog.ModuleExpenseNote),
			caps(catalog.ModulePurchaseRequest, "validate-finance", "refuse-finance"),
			caps(catalog.ModuleExpenseNote, "validate-finance-director", "reject"),
		),
		RoleAccountant: join(
			viewRead(catalog.ModulePurchaseRequest, catalog.ModuleExpenseNote, catalog.ModuleAudit),
			caps(catalog.ModulePurchaseRequest, "mark-paid", "request-revision", "reject-accounting"),
			caps(catalog.ModuleExpenseNote, "mark-paid"),
		),
		RoleDirectorGeneral: join(viewRead(documents...), viewRead(catalog.ModuleAudit, catalog.ModuleRolePermissions)),
		RoleProcurementLogisticsAdmin: join(
			viewRead(catalog.ModuleOperationalReport, catalog.ModuleDeliveryNote, catalog.ModulePurchaseRequest),
			caps(catalog.ModuleOperationalReport, "validate", "reject"),
		),
		RoleReadOnly: viewRead(documents...),
	}

	var grants []Grant
	for _, role := range Roles() {
		for _, capability := range matrix[role] {
			grants = append(grants, Grant{Role: role, Capability: capability})
		}
	}
	return grants
}
