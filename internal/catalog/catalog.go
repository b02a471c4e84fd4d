package catalog

import (
	"fmt"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ModuleSpec declares a module's base actions and business actions.
type ModuleSpec struct {
	Module      Module
	Description string
	Base        []Action
	Business    []Action
}

// Catalog is the static capability registry populated at bootstrap.
type Catalog struct {
	entries map[Capability]Entry
	order   []Capability
	all     Set
}

// New builds a catalog from module specs. Duplicate registrations are merged.
func New(specs ...ModuleSpec) *Catalog {
	c := &Catalog{entries: make(map[Capability]Entry), all: make(Set)}
	for _, spec := range specs {
		c.register(spec)
	}
	SortCapabilities(c.order)
	return c
}

func (c *Catalog) register(spec ModuleSpec) {
	base := spec.Base
	if base == nil {
		base = BaseActions()
	}
	for _, action := range base {
		c.add(spec, action, false)
	}
	for _, action := range spec.Business {
		c.add(spec, action, true)
	}
}

func (c *Catalog) add(spec ModuleSpec, action Action, business bool) {
	capability := Cap(spec.Module, action)
	if _, ok := c.entries[capability]; ok {
		return
	}
	c.entries[capability] = Entry{
		Capability:  capability,
		Label:       label(spec.Module, action),
		Description: describe(spec, action),
		Business:    business,
	}
	c.order = append(c.order, capability)
	c.all.Add(capability)
}

// ListCapabilities returns a copy of the full capability set.
func (c *Catalog) ListCapabilities() Set {
	return c.all.Clone()
}

// Entries returns every entry ordered by module then action.
func (c *Catalog) Entries() []Entry {
	out := make([]Entry, 0, len(c.order))
	for _, capability := range c.order {
		out = append(out, c.entries[capability])
	}
	return out
}

// Lookup returns the entry for a capability.
func (c *Catalog) Lookup(capability Capability) (Entry, error) {
	entry, ok := c.entries[capability]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrUnknownCapability, capability)
	}
	return entry, nil
}

// Contains reports whether the capability is registered.
func (c *Catalog) Contains(capability Capability) bool {
	_, ok := c.entries[capability]
	return ok
}

// Modules returns the distinct registered modules in order.
func (c *Catalog) Modules() []Module {
	seen := make(map[Module]struct{})
	var out []Module
	for _, capability := range c.order {
		if _, ok := seen[capability.Module]; ok {
			continue
		}
		seen[capability.Module] = struct{}{}
		out = append(out, capability.Module)
	}
	return out
}

func label(module Module, action Action) string {
	return humanize(string(module)) + " · " + humanize(string(action))
}

func humanize(raw string) string {
	raw = strings.NewReplacer("_", " ", "-", " ").Replace(raw)
	// Casers are stateful and not safe for concurrent use.
	return cases.Title(language.English).String(raw)
}

func describe(spec ModuleSpec, action Action) string {
	if spec.Description == "" {
		return humanize(string(action))
	}
	return fmt.Sprintf("%s: %s", spec.Description, strings.ToLower(humanize(string(action))))
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the bootstrap catalog shared by the application.
func Default() *Catalog {
	defaultOnce.Do(func() {
		defaultCatalog = New(DefaultSpecs()...)
	})
	return defaultCatalog
}

// DefaultSpecs lists the modules and business actions registered at bootstrap.
func DefaultSpecs() []ModuleSpec {
	return []ModuleSpec{
		{
			Module:      ModuleNeed,
			Description: "Internal needs",
			Business:    []Action{"submit", "take-in-charge", "accept", "refuse", "unlock"},
		},
		{
			Module:      ModuleNeedExpression,
			Description: "Need expressions",
			Business:    []Action{"submit", "start-review", "validate-department", "reject-department", "send-to-logistics"},
		},
		{
			Module:      ModulePurchaseRequest,
			Description: "Purchase requests",
			Business: []Action{
				"submit", "reject", "start-analysis", "price",
				"validate-ops", "reject-ops",
				"submit-finance-validation", "validate-finance", "refuse-finance",
				"mark-paid", "request-revision", "reject-accounting",
			},
		},
		{
			Module:      ModuleDeliveryNote,
			Description: "Delivery notes",
			Business:    []Action{"submit-validation", "validate", "deliver", "partially-deliver", "complete-delivery"},
		},
		{
			Module:      ModuleExpenseNote,
			Description: "Expense notes",
			Business:    []Action{"submit", "validate-finance-director", "mark-paid", "reject"},
		},
		{
			Module:      ModuleOperationalReport,
			Description: "Operational reports",
			Business:    []Action{"submit", "validate", "reject"},
		},
		{
			Module:      ModuleRolePermissions,
			Description: "Role permission matrix",
		},
		{
			Module:      ModuleAudit,
			Description: "Audit log",
			Base:        []Action{ActionView, ActionRead},
		},
	}
}
