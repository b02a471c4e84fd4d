package registry

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-docflow/internal/catalog"
	"github.com/odyssey-erp/odyssey-docflow/internal/document"
	"github.com/odyssey-erp/odyssey-docflow/internal/shared"
)

func amount(v float64) *float64 { return &v }

func TestEveryStatusReachableFromInitial(t *testing.T) {
	reg := New(Config{})
	for _, typ := range reg.Types() {
		def, err := reg.Definition(typ)
		require.NoError(t, err)

		seen := map[document.Status]bool{def.Initial: true}
		queue := []document.Status{def.Initial}
		for len(queue) > 0 {
			status := queue[0]
			queue = queue[1:]
			for _, tr := range def.Transitions(status) {
				require.True(t, def.HasStatus(tr.To), "%s: %s leads to undeclared %s", typ, tr.Action, tr.To)
				if !seen[tr.To] {
					seen[tr.To] = true
					queue = append(queue, tr.To)
				}
			}
		}
		for _, status := range def.Statuses {
			require.True(t, seen[status], "%s: status %s unreachable", typ, status)
		}
	}
}

func TestTransitionCapabilitiesAreCatalogued(t *testing.T) {
	reg := New(Config{})
	cat := catalog.Default()
	for _, typ := range reg.Types() {
		def, err := reg.Definition(typ)
		require.NoError(t, err)
		for _, tr := range def.AllTransitions() {
			require.True(t, cat.Contains(tr.Capability), "%s: %s not catalogued", typ, tr.Capability)
		}
	}
}

func TestLookupUnknownAction(t *testing.T) {
	reg := New(Config{})
	doc := document.Document{ID: uuid.New(), Type: document.TypeNeed, Status: NeedDraft}

	_, err := reg.Lookup(doc, ActAccept)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	wfErr, ok := shared.AsWorkflowError(err)
	require.True(t, ok)
	require.Equal(t, doc.ID, wfErr.DocumentID)
	require.Equal(t, string(ActAccept), wfErr.Action)
}

func TestLookupUnknownStatus(t *testing.T) {
	reg := New(Config{})
	doc := document.Document{Type: document.TypeNeed, Status: "archived"}
	_, err := reg.Lookup(doc, ActSubmit)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestThresholdRouting(t *testing.T) {
	reg := New(Config{FinanceThreshold: 1000})
	below := document.Document{ID: uuid.New(), Type: document.TypePurchaseRequest, Status: PRValidatedByOps, Amount: amount(1000)}
	above := below.Clone()
	above.Amount = amount(1000.01)

	tr, err := reg.Lookup(below, ActMarkPaid)
	require.NoError(t, err)
	require.Equal(t, PRPaid, tr.To)

	_, err = reg.Lookup(below, ActSubmitFinanceValidation)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	_, err = reg.Lookup(above, ActMarkPaid)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	tr, err = reg.Lookup(above, ActSubmitFinanceValidation)
	require.NoError(t, err)
	require.Equal(t, PRSubmittedForFinance, tr.To)
}

func TestThresholdRoutingWithoutAmount(t *testing.T) {
	reg := New(Config{})
	doc := document.Document{ID: uuid.New(), Type: document.TypePurchaseRequest, Status: PRValidatedByOps}

	_, err := reg.Lookup(doc, ActMarkPaid)
	require.ErrorIs(t, err, shared.ErrThresholdViolation)
	require.False(t, errors.Is(err, shared.ErrInvalidTransition))

	require.Empty(t, reg.Available(doc))
}

func TestAvailableFollowsRoutes(t *testing.T) {
	reg := New(Config{FinanceThreshold: 500})
	doc := document.Document{Type: document.TypePurchaseRequest, Status: PRValidatedByOps, Amount: amount(800)}

	var actions []document.Action
	for _, tr := range reg.Available(doc) {
		actions = append(actions, tr.Action)
	}
	require.Equal(t, []document.Action{ActSubmitFinanceValidation}, actions)
}

func TestFinancePathIsPayable(t *testing.T) {
	reg := New(Config{})
	doc := document.Document{Type: document.TypePurchaseRequest, Status: PRValidatedByFinance, Amount: amount(5_000_000)}
	tr, err := reg.Lookup(doc, ActMarkPaid)
	require.NoError(t, err)
	require.True(t, tr.Has(EffectSetAccounting))
	require.Equal(t, document.MilestonePaidAt, tr.Milestone)
}

func TestDefaultThreshold(t *testing.T) {
	require.Equal(t, float64(DefaultFinanceThreshold), New(Config{}).FinanceThreshold())
	require.Equal(t, 42.0, New(Config{FinanceThreshold: 42}).FinanceThreshold())
}

func TestEditMapsToWrite(t *testing.T) {
	reg := New(Config{})
	doc := document.Document{Type: document.TypeExpenseNote, Status: ExpenseDraft}
	tr, err := reg.Lookup(doc, document.ActionEdit)
	require.NoError(t, err)
	require.Equal(t, catalog.Cap(catalog.ModuleExpenseNote, catalog.ActionWrite), tr.Capability)
	require.Equal(t, ExpenseDraft, tr.To)
}

func TestSubmittedNeedEditKeepsSubmissionGuards(t *testing.T) {
	reg := New(Config{})
	doc := document.Document{Type: document.TypeNeed, Status: NeedSubmitted, Lines: []document.LineItem{{Description: "paper", Quantity: 1}}}
	tr, err := reg.Lookup(doc, document.ActionEdit)
	require.NoError(t, err)

	critical := document.LineItem{Description: "toner", Quantity: 1, Urgency: document.UrgencyCritical}
	err = tr.Check(GuardInput{Document: doc, Payload: document.Payload{Lines: []document.LineItem{critical}}})
	require.ErrorIs(t, err, shared.ErrValidation)

	critical.Justification = "fleet down"
	require.NoError(t, tr.Check(GuardInput{Document: doc, Payload: document.Payload{Lines: []document.LineItem{critical}}}))
}

func TestReleasesParent(t *testing.T) {
	reg := New(Config{})
	pr, err := reg.Definition(document.TypePurchaseRequest)
	require.NoError(t, err)
	for _, status := range []document.Status{PRRejected, PRRejectedByOps, PRRefusedByFinance, PRRejectedByAccounting} {
		require.True(t, pr.ReleasesParent(status), status)
	}
	for _, status := range []document.Status{PRDraft, PRSubmitted, PRPriced, PRPaid} {
		require.False(t, pr.ReleasesParent(status), status)
	}
}

func TestOnlyUnlockIsUnlocking(t *testing.T) {
	reg := New(Config{})
	for _, typ := range reg.Types() {
		def, err := reg.Definition(typ)
		require.NoError(t, err)
		for _, tr := range def.AllTransitions() {
			if tr.Unlocking {
				require.Equal(t, document.TypeNeed, typ)
				require.Equal(t, ActUnlock, tr.Action)
				require.True(t, tr.Has(EffectUnlock))
			}
		}
	}
}

func TestParentRules(t *testing.T) {
	reg := New(Config{})

	pr, err := reg.Definition(document.TypePurchaseRequest)
	require.NoError(t, err)
	require.NotNil(t, pr.Parent)
	require.True(t, pr.Parent.Allows(document.Document{Type: document.TypeNeed, Status: NeedAccepted}))
	require.False(t, pr.Parent.Allows(document.Document{Type: document.TypeNeed, Status: NeedSubmitted}))

	need, err := reg.Definition(document.TypeNeed)
	require.NoError(t, err)
	require.True(t, need.Parent.Spawned)

	report, err := reg.Definition(document.TypeOperationalReport)
	require.NoError(t, err)
	require.Nil(t, report.Parent)
}
