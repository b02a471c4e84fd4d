package catalog

import (
	"errors"
	"sort"
)

// Module identifies a permission-bearing area of the application.
type Module string

// Document and platform modules.
const (
	ModuleNeed              Module = "need"
	ModuleNeedExpression    Module = "need_expression"
	ModulePurchaseRequest   Module = "purchase_request"
	ModuleDeliveryNote      Module = "delivery_note"
	ModuleExpenseNote       Module = "expense_note"
	ModuleOperationalReport Module = "operational_report"
	ModuleRolePermissions   Module = "role_permissions"
	ModuleAudit             Module = "audit"
)

// Action is either a base action or a module-specific business action.
type Action string

// Base action quartet shared by every module.
const (
	ActionView   Action = "view"
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionDelete Action = "delete"
)

// BaseActions returns the fixed quartet.
func BaseActions() []Action {
	return []Action{ActionView, ActionRead, ActionWrite, ActionDelete}
}

// IsBase reports whether the action belongs to the base quartet.
func (a Action) IsBase() bool {
	switch a {
	case ActionView, ActionRead, ActionWrite, ActionDelete:
		return true
	default:
		return false
	}
}

// Capability is the (module, action) pair checked by the evaluator.
type Capability struct {
	Module Module `json:"module"`
	Action Action `json:"action"`
}

// Cap is a shorthand constructor.
func Cap(module Module, action Action) Capability {
	return Capability{Module: module, Action: action}
}

// String renders module.action for logs and display only.
func (c Capability) String() string {
	return string(c.Module) + "." + string(c.Action)
}

func (c Capability) less(other Capability) bool {
	if c.Module != other.Module {
		return c.Module < other.Module
	}
	return c.Action < other.Action
}

// Entry describes a registered capability with human metadata.
type Entry struct {
	Capability  Capability `json:"capability"`
	Label       string     `json:"label"`
	Description string     `json:"description"`
	Business    bool       `json:"business"`
}

// ErrUnknownCapability indicates a capability that was never registered.
var ErrUnknownCapability = errors.New("catalog: unknown capability")

// Set is a capability set with constant-time membership.
type Set map[Capability]struct{}

// NewSet builds a set from the given capabilities.
func NewSet(caps ...Capability) Set {
	set := make(Set, len(caps))
	for _, c := range caps {
		set[c] = struct{}{}
	}
	return set
}

// Has reports membership.
func (s Set) Has(c Capability) bool {
	_, ok := s[c]
	return ok
}

// Add inserts c.
func (s Set) Add(c Capability) {
	s[c] = struct{}{}
}

// Len returns the set size.
func (s Set) Len() int {
	return len(s)
}

// Union adds every member of other to s.
func (s Set) Union(other Set) {
	for c := range other {
		s[c] = struct{}{}
	}
}

// Clone returns an independent copy.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for c := range s {
		out[c] = struct{}{}
	}
	return out
}

// Equal reports whether both sets hold the same members.
func (s Set) Equal(other Set) bool {
	if len(s) != len(other) {
		return false
	}
	for c := range s {
		if !other.Has(c) {
			return false
		}
	}
	return true
}

// Sorted returns members ordered by module then action.
func (s Set) Sorted() []Capability {
	out := make([]Capability, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	SortCapabilities(out)
	return out
}

// SortCapabilities orders caps in place by module then action.
func SortCapabilities(caps []Capability) {
	sort.Slice(caps, func(i, j int) bool { return caps[i].less(caps[j]) })
}
