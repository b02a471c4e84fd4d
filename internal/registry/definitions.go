package registry

import (
	"github.com/odyssey-erp/odyssey-docflow/internal/document"
	"github.com/odyssey-erp/odyssey-docflow/internal/shared"
)

// AboveThreshold holds when the purchase amount exceeds the finance threshold.
var AboveThreshold = &Route{Name: "amount_above_threshold", Fn: func(doc document.Document, threshold float64) (bool, error) {
	if doc.Amount == nil {
		return false, shared.NewError(shared.ErrThresholdViolation, doc.ID, "", "amount is required to route the request")
	}
	return *doc.Amount > threshold, nil
}}

// AtOrBelowThreshold holds when the purchase amount does not exceed the threshold.
var AtOrBelowThreshold = &Route{Name: "amount_at_or_below_threshold", Fn: func(doc document.Document, threshold float64) (bool, error) {
	if doc.Amount == nil {
		return false, shared.NewError(shared.ErrThresholdViolation, doc.ID, "", "amount is required to route the request")
	}
	return *doc.Amount <= threshold, nil
}}

func edge(t document.Type, action document.Action, from, to document.Status) Transition {
	return Transition{Action: action, From: from, To: to, Capability: action.Capability(t)}
}

func (t Transition) at(m document.Milestone) Transition {
	t.Milestone = m
	return t
}

func (t Transition) guarded(guards ...Guard) Transition {
	t.Guards = append(append([]Guard(nil), t.Guards...), guards...)
	return t
}

func (t Transition) with(effects ...Effect) Transition {
	t.Effects = append(append([]Effect(nil), t.Effects...), effects...)
	return t
}

func (t Transition) routed(r *Route) Transition {
	t.Route = r
	return t
}

func (t Transition) unlocking() Transition {
	t.Unlocking = true
	return t
}

// rejection builds a reason-bearing edge.
func rejection(t document.Type, action document.Action, from, to document.Status) Transition {
	return edge(t, action, from, to).at(document.MilestoneRejectedAt).guarded(RequireReason).with(EffectRecordReason)
}

func edit(t document.Type, status document.Status) Transition {
	return edge(t, document.ActionEdit, status, status).guarded(RequireWellFormedLines).with(EffectApplyContent)
}

func submission(t document.Type, from, to document.Status) Transition {
	return edge(t, ActSubmit, from, to).
		at(document.MilestoneSubmittedAt).
		guarded(RequireWellFormedLines, RequireLines, RequireJustifiedUrgency).
		with(EffectApplyContent)
}

func define(t document.Type, initial document.Status, statuses []document.Status, parent *ParentRule, transitions ...Transition) Definition {
	def := Definition{
		Type:        t,
		Initial:     initial,
		Statuses:    statuses,
		Parent:      parent,
		transitions: make(map[document.Status][]Transition),
	}
	for _, tr := range transitions {
		def.transitions[tr.From] = append(def.transitions[tr.From], tr)
	}
	return def
}

func definitions() []Definition {
	return []Definition{
		needDefinition(),
		expressionDefinition(),
		purchaseRequestDefinition(),
		deliveryNoteDefinition(),
		expenseNoteDefinition(),
		operationalReportDefinition(),
	}
}

func needDefinition() Definition {
	t := document.TypeNeed
	return define(t, NeedDraft,
		[]document.Status{NeedDraft, NeedSubmitted, NeedTakenInCharge, NeedAccepted, NeedRefused},
		&ParentRule{Type: document.TypeNeedExpression, Statuses: []document.Status{ExpressionValidated}, Spawned: true},
		edit(t, NeedDraft),
		edit(t, NeedSubmitted).guarded(RequireLines, RequireJustifiedUrgency),
		submission(t, NeedDraft, NeedSubmitted),
		edge(t, ActTakeInCharge, NeedSubmitted, NeedTakenInCharge).at(document.MilestoneTakenInChargeAt),
		edge(t, ActAccept, NeedTakenInCharge, NeedAccepted).at(document.MilestoneAcceptedAt).with(EffectLock),
		rejection(t, ActRefuse, NeedTakenInCharge, NeedRefused).at(document.MilestoneRefusedAt),
		edge(t, ActUnlock, NeedAccepted, NeedAccepted).at(document.MilestoneUnlockedAt).with(EffectUnlock).unlocking(),
	)
}

func expressionDefinition() Definition {
	t := document.TypeNeedExpression
	return define(t, ExpressionDraft,
		[]document.Status{ExpressionDraft, ExpressionSubmitted, ExpressionUnderReview, ExpressionValidated, ExpressionRejected, ExpressionSentToLogistics},
		nil,
		edit(t, ExpressionDraft),
		submission(t, ExpressionDraft, ExpressionSubmitted),
		edge(t, ActStartReview, ExpressionSubmitted, ExpressionUnderReview).at(document.MilestoneReviewedAt),
		edge(t, ActValidateDepartment, ExpressionUnderReview, ExpressionValidated).at(document.MilestoneValidatedAt),
		rejection(t, ActRejectDepartment, ExpressionUnderReview, ExpressionRejected),
		edge(t, ActSendToLogistics, ExpressionValidated, ExpressionSentToLogistics).
			at(document.MilestoneSentAt).
			with(EffectSpawnNeed, EffectLock),
	)
}

func purchaseRequestDefinition() Definition {
	t := document.TypePurchaseRequest
	payment := func(from document.Status, route *Route) []Transition {
		return []Transition{
			edge(t, ActMarkPaid, from, PRPaid).
				at(document.MilestonePaidAt).
				guarded(RequireAccounting).
				with(EffectSetAccounting).
				routed(route),
			edge(t, ActRequestRevision, from, PRUnderRevision).
				at(document.MilestoneRevisionAt).
				guarded(RequireReason).
				with(EffectRecordReason).
				routed(route),
			rejection(t, ActRejectAccounting, from, PRRejectedByAccounting).with(EffectUnlockParent).routed(route),
		}
	}
	transitions := []Transition{
		edit(t, PRDraft),
		submission(t, PRDraft, PRSubmitted),
		rejection(t, ActReject, PRSubmitted, PRRejected).with(EffectUnlockParent),
		edge(t, ActStartAnalysis, PRSubmitted, PRUnderAnalysis).at(document.MilestoneAnalyzedAt),
		edge(t, ActPrice, PRUnderAnalysis, PRPriced).at(document.MilestonePricedAt).guarded(RequirePositiveAmount).with(EffectSetAmount),
		edge(t, ActPrice, PRUnderRevision, PRPriced).at(document.MilestonePricedAt).guarded(RequirePositiveAmount).with(EffectSetAmount),
		edge(t, ActValidateOps, PRPriced, PRValidatedByOps).at(document.MilestoneValidatedAt),
		rejection(t, ActRejectOps, PRPriced, PRRejectedByOps).with(EffectUnlockParent),
		edge(t, ActSubmitFinanceValidation, PRValidatedByOps, PRSubmittedForFinance).
			at(document.MilestoneFinanceAt).
			routed(AboveThreshold),
		edge(t, ActValidateFinance, PRSubmittedForFinance, PRValidatedByFinance).at(document.MilestoneValidatedAt),
		rejection(t, ActRefuseFinance, PRSubmittedForFinance, PRRefusedByFinance).with(EffectUnlockParent),
	}
	transitions = append(transitions, payment(PRValidatedByOps, AtOrBelowThreshold)...)
	transitions = append(transitions, payment(PRValidatedByFinance, nil)...)

	return define(t, PRDraft,
		[]document.Status{
			PRDraft, PRSubmitted, PRRejected, PRUnderAnalysis, PRPriced,
			PRValidatedByOps, PRRejectedByOps, PRSubmittedForFinance,
			PRValidatedByFinance, PRRefusedByFinance, PRUnderRevision,
			PRPaid, PRRejectedByAccounting,
		},
		&ParentRule{Type: document.TypeNeed, Statuses: []document.Status{NeedAccepted}},
		transitions...,
	)
}

func deliveryNoteDefinition() Definition {
	t := document.TypeDeliveryNote
	return define(t, DeliveryPrepared,
		[]document.Status{DeliveryPrepared, DeliveryPendingValidation, DeliveryValidated, DeliveryDelivered, DeliveryPartiallyDelivered},
		&ParentRule{Type: document.TypePurchaseRequest, Statuses: []document.Status{PRPaid}},
		edit(t, DeliveryPrepared),
		edge(t, ActSubmitValidation, DeliveryPrepared, DeliveryPendingValidation).
			at(document.MilestoneSubmittedAt).
			guarded(RequireLines),
		edge(t, ActValidate, DeliveryPendingValidation, DeliveryValidated).at(document.MilestoneValidatedAt),
		edge(t, ActDeliver, DeliveryValidated, DeliveryDelivered).
			at(document.MilestoneDeliveredAt).
			guarded(RequireCompleteDelivery).
			with(EffectDeliverAll),
		edge(t, ActPartiallyDeliver, DeliveryValidated, DeliveryPartiallyDelivered).
			guarded(RequirePartialDelivery).
			with(EffectRecordDelivery),
		edge(t, ActCompleteDelivery, DeliveryPartiallyDelivered, DeliveryDelivered).
			at(document.MilestoneDeliveredAt).
			guarded(RequireCompleteDelivery).
			with(EffectDeliverAll),
	)
}

func expenseNoteDefinition() Definition {
	t := document.TypeExpenseNote
	return define(t, ExpenseDraft,
		[]document.Status{ExpenseDraft, ExpenseSubmitted, ExpenseValidated, ExpensePaid, ExpenseRejected},
		nil,
		edit(t, ExpenseDraft).with(EffectSetAmount),
		edge(t, ActSubmit, ExpenseDraft, ExpenseSubmitted).
			at(document.MilestoneSubmittedAt).
			guarded(RequireWellFormedLines, RequireRecordedAmount).
			with(EffectApplyContent, EffectSetAmount),
		edge(t, ActValidateFinanceDirector, ExpenseSubmitted, ExpenseValidated).at(document.MilestoneValidatedAt),
		rejection(t, ActReject, ExpenseSubmitted, ExpenseRejected),
		rejection(t, ActReject, ExpenseValidated, ExpenseRejected),
		edge(t, ActMarkPaid, ExpenseValidated, ExpensePaid).
			at(document.MilestonePaidAt).
			guarded(RequireAccounting).
			with(EffectSetAccounting),
	)
}

func operationalReportDefinition() Definition {
	t := document.TypeOperationalReport
	return define(t, ReportDraft,
		[]document.Status{ReportDraft, ReportSubmitted, ReportValidated, ReportRejected},
		nil,
		edit(t, ReportDraft),
		edge(t, ActSubmit, ReportDraft, ReportSubmitted).
			at(document.MilestoneSubmittedAt).
			guarded(RequireWellFormedLines).
			with(EffectApplyContent),
		edge(t, ActValidate, ReportSubmitted, ReportValidated).at(document.MilestoneValidatedAt),
		rejection(t, ActReject, ReportSubmitted, ReportRejected),
	)
}
