package registry

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-docflow/internal/document"
	"github.com/odyssey-erp/odyssey-docflow/internal/shared"
)

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.ErrorIs(t, err, shared.ErrValidation)
	wfErr, ok := shared.AsWorkflowError(err)
	require.True(t, ok)
	require.Equal(t, code, wfErr.Code)
}

func TestUrgencyRequiresJustification(t *testing.T) {
	doc := document.Document{Lines: []document.LineItem{
		{Description: "paper", Quantity: 10},
		{Description: "toner", Quantity: 2, Urgency: document.UrgencyHigh},
	}}
	err := RequireJustifiedUrgency(GuardInput{Document: doc})
	requireCode(t, err, CodeJustificationRequired)

	wfErr, _ := shared.AsWorkflowError(err)
	require.Equal(t, "lines[1].justification", wfErr.Field)

	doc.Lines[1].Justification = "printer down"
	require.NoError(t, RequireJustifiedUrgency(GuardInput{Document: doc}))

	doc.Lines[0].Urgency = "panic"
	requireCode(t, RequireJustifiedUrgency(GuardInput{Document: doc}), CodeInvalidUrgency)
}

func TestSubmitGuardUsesPayloadLines(t *testing.T) {
	tr, err := New(Config{}).Lookup(document.Document{Type: document.TypeNeed, Status: NeedDraft}, ActSubmit)
	require.NoError(t, err)

	requireCode(t, tr.Check(GuardInput{}), CodeLinesRequired)

	payload := document.Payload{Lines: []document.LineItem{{Description: "chairs", Quantity: 4, Urgency: document.UrgencyCritical}}}
	requireCode(t, tr.Check(GuardInput{Payload: payload}), CodeJustificationRequired)

	payload.Lines[0].Justification = "new hires"
	require.NoError(t, tr.Check(GuardInput{Payload: payload}))
}

func TestWellFormedLines(t *testing.T) {
	require.NoError(t, RequireWellFormedLines(GuardInput{}))

	payload := document.Payload{Lines: []document.LineItem{{Description: "desk", Quantity: 1}, {Description: " ", Quantity: 2}}}
	err := RequireWellFormedLines(GuardInput{Payload: payload})
	requireCode(t, err, CodeInvalidLine)
	wfErr, _ := shared.AsWorkflowError(err)
	require.Equal(t, "lines[1].description", wfErr.Field)

	payload.Lines[1] = document.LineItem{Description: "lamp", Quantity: 0}
	requireCode(t, RequireWellFormedLines(GuardInput{Payload: payload}), CodeInvalidLine)
}

func TestReasonAndAmountGuards(t *testing.T) {
	requireCode(t, RequireReason(GuardInput{Payload: document.Payload{Reason: "  "}}), CodeReasonRequired)
	require.NoError(t, RequireReason(GuardInput{Payload: document.Payload{Reason: "over budget"}}))

	requireCode(t, RequirePositiveAmount(GuardInput{}), CodeAmountRequired)
	requireCode(t, RequirePositiveAmount(GuardInput{Payload: document.Payload{Amount: amount(0)}}), CodeAmountRequired)
	require.NoError(t, RequirePositiveAmount(GuardInput{Payload: document.Payload{Amount: amount(12)}}))

	requireCode(t, RequireRecordedAmount(GuardInput{}), CodeAmountRequired)
	require.NoError(t, RequireRecordedAmount(GuardInput{Document: document.Document{Amount: amount(3)}}))
}

func TestAccountingGuard(t *testing.T) {
	requireCode(t, RequireAccounting(GuardInput{}), CodeAccountingRequired)
	partial := document.Payload{Accounting: &document.AccountingClassification{Class: "6", Account: "6061"}}
	requireCode(t, RequireAccounting(GuardInput{Payload: partial}), CodeAccountingRequired)
	partial.Accounting.CostCenter = "OPS"
	require.NoError(t, RequireAccounting(GuardInput{Payload: partial}))
}

func TestDeliveryGuards(t *testing.T) {
	doc := document.Document{Lines: []document.LineItem{
		{Description: "cement", Quantity: 10},
		{Description: "sand", Quantity: 5},
	}}

	requireCode(t, RequirePartialDelivery(GuardInput{Document: doc}), CodeDeliveryQuantities)

	short := document.Payload{Lines: []document.LineItem{{Delivered: 10}}}
	requireCode(t, RequirePartialDelivery(GuardInput{Document: doc, Payload: short}), CodeDeliveryQuantities)

	over := document.Payload{Lines: []document.LineItem{{Delivered: 11}, {Delivered: 0}}}
	requireCode(t, RequirePartialDelivery(GuardInput{Document: doc, Payload: over}), CodeDeliveryQuantities)

	full := document.Payload{Lines: []document.LineItem{{Delivered: 10}, {Delivered: 5}}}
	requireCode(t, RequirePartialDelivery(GuardInput{Document: doc, Payload: full}), CodeDeliveryQuantities)
	require.NoError(t, RequireCompleteDelivery(GuardInput{Document: doc, Payload: full}))

	partial := document.Payload{Lines: []document.LineItem{{Delivered: 10}, {Delivered: 2}}}
	require.NoError(t, RequirePartialDelivery(GuardInput{Document: doc, Payload: partial}))
	requireCode(t, RequireCompleteDelivery(GuardInput{Document: doc, Payload: partial}), CodeDeliveryIncomplete)

	require.NoError(t, RequireCompleteDelivery(GuardInput{Document: doc}))
}

func TestMergeDeliveredKeepsRecordedLines(t *testing.T) {
	current := []document.LineItem{{Description: "cement", Quantity: 10}}
	reported := []document.LineItem{{Description: "forged", Quantity: 999, Delivered: 4}}

	merged := MergeDelivered(current, reported)
	require.Equal(t, "cement", merged[0].Description)
	require.Equal(t, 10.0, merged[0].Quantity)
	require.Equal(t, 4.0, merged[0].Delivered)
	require.Zero(t, current[0].Delivered)
}
