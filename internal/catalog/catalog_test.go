package catalog

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogRegistersBaseQuartetPerDocumentModule(t *testing.T) {
	c := Default()
	for _, module := range []Module{ModuleNeed, ModuleNeedExpression, ModulePurchaseRequest, ModuleDeliveryNote, ModuleExpenseNote, ModuleOperationalReport} {
		for _, action := range BaseActions() {
			require.True(t, c.Contains(Cap(module, action)), "%s.%s missing", module, action)
		}
	}
}

func TestAuditModuleHasNoWriteCapability(t *testing.T) {
	c := Default()
	require.True(t, c.Contains(Cap(ModuleAudit, ActionView)))
	require.False(t, c.Contains(Cap(ModuleAudit, ActionWrite)))
	require.False(t, c.Contains(Cap(ModuleAudit, ActionDelete)))
}

func TestLookupUnknownCapability(t *testing.T) {
	_, err := Default().Lookup(Cap(ModulePurchaseRequest, "teleport"))
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrUnknownCapability))
}

func TestEntriesCarryHumanLabels(t *testing.T) {
	entry, err := Default().Lookup(Cap(ModulePurchaseRequest, "mark-paid"))
	require.NoError(t, err)
	require.True(t, entry.Business)
	require.Equal(t, "Purchase Request · Mark Paid", entry.Label)
}

func TestListCapabilitiesReturnsCopy(t *testing.T) {
	c := New(ModuleSpec{Module: "stock", Business: []Action{"count"}})
	set := c.ListCapabilities()
	require.Equal(t, 5, set.Len())
	set.Add(Cap("stock", "steal"))
	require.Equal(t, 5, c.ListCapabilities().Len())
}

func TestDuplicateRegistrationIsMerged(t *testing.T) {
	c := New(
		ModuleSpec{Module: "stock", Business: []Action{"count"}},
		ModuleSpec{Module: "stock", Business: []Action{"count", "adjust"}},
	)
	require.Equal(t, 6, len(c.Entries()))
	require.Equal(t, []Module{"stock"}, c.Modules())
}

func TestSetOperations(t *testing.T) {
	a := NewSet(Cap(ModuleNeed, ActionRead))
	b := NewSet(Cap(ModuleNeed, ActionWrite), Cap(ModuleNeed, ActionRead))
	a.Union(b)
	require.True(t, a.Equal(b))
	require.Equal(t, []Capability{Cap(ModuleNeed, ActionRead), Cap(ModuleNeed, ActionWrite)}, a.Sorted())
}
