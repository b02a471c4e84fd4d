package document

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-docflow/internal/catalog"
)

// Type tags a workflow document.
type Type string

// Document types handled by the workflow engine.
const (
	TypeNeed              Type = "need"
	TypeNeedExpression    Type = "need_expression"
	TypePurchaseRequest   Type = "purchase_request"
	TypeDeliveryNote      Type = "delivery_note"
	TypeExpenseNote       Type = "expense_note"
	TypeOperationalReport Type = "operational_report"
)

// Types lists every document type.
func Types() []Type {
	return []Type{TypeNeed, TypeNeedExpression, TypePurchaseRequest, TypeDeliveryNote, TypeExpenseNote, TypeOperationalReport}
}

// IsValid checks the type against the known set.
func (t Type) IsValid() bool {
	switch t {
	case TypeNeed, TypeNeedExpression, TypePurchaseRequest, TypeDeliveryNote, TypeExpenseNote, TypeOperationalReport:
		return true
	default:
		return false
	}
}

// Module returns the permission module guarding this type.
func (t Type) Module() catalog.Module {
	return catalog.Module(t)
}

// Status is scoped to a document type; the registry owns the valid sets.
type Status string

// Action names a transition.
type Action string

// ActionEdit is the self-loop used for content edits.
const ActionEdit Action = "edit"

// Capability returns the capability required for action on t. Edits map to
// the base write action; every other action is a business action of the same name.
func (a Action) Capability(t Type) catalog.Capability {
	if a == ActionEdit {
		return catalog.Cap(t.Module(), catalog.ActionWrite)
	}
	return catalog.Cap(t.Module(), catalog.Action(a))
}

// Milestone names a timestamp field set by a transition.
type Milestone string

// Milestones recorded on documents.
const (
	MilestoneSubmittedAt     Milestone = "submitted_at"
	MilestoneTakenInChargeAt Milestone = "taken_in_charge_at"
	MilestoneAcceptedAt      Milestone = "accepted_at"
	MilestoneRefusedAt       Milestone = "refused_at"
	MilestoneReviewedAt      Milestone = "reviewed_at"
	MilestoneValidatedAt     Milestone = "validated_at"
	MilestoneRejectedAt      Milestone = "rejected_at"
	MilestoneSentAt          Milestone = "sent_at"
	MilestoneAnalyzedAt      Milestone = "analyzed_at"
	MilestonePricedAt        Milestone = "priced_at"
	MilestoneFinanceAt       Milestone = "finance_submitted_at"
	MilestonePaidAt          Milestone = "paid_at"
	MilestoneRevisionAt      Milestone = "revision_requested_at"
	MilestoneDeliveredAt     Milestone = "delivered_at"
	MilestoneUnlockedAt      Milestone = "unlocked_at"
)

// Urgency grades a line item.
type Urgency string

// Urgency levels in increasing order.
const (
	UrgencyLow      Urgency = "low"
	UrgencyNormal   Urgency = "normal"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

func (u Urgency) rank() int {
	switch u {
	case UrgencyLow:
		return 0
	case "", UrgencyNormal:
		return 1
	case UrgencyHigh:
		return 2
	case UrgencyCritical:
		return 3
	default:
		return -1
	}
}

// IsValid checks the urgency value. Empty means normal.
func (u Urgency) IsValid() bool {
	return u.rank() >= 0
}

// AboveNormal reports whether the urgency exceeds the default level.
func (u Urgency) AboveNormal() bool {
	return u.rank() > UrgencyNormal.rank()
}

// LineItem is a requested article or service.
type LineItem struct {
	Description   string  `json:"description" validate:"required,max=500"`
	Quantity      float64 `json:"quantity" validate:"gt=0"`
	Unit          string  `json:"unit,omitempty" validate:"omitempty,max=32"`
	Urgency       Urgency `json:"urgency,omitempty" validate:"omitempty,oneof=low normal high critical"`
	Justification string  `json:"justification,omitempty" validate:"omitempty,max=2000"`
	Delivered     float64 `json:"delivered,omitempty" validate:"gte=0"`
}

// AccountingClassification holds post-payment bookkeeping attributes.
type AccountingClassification struct {
	Class      string `json:"class" validate:"required"`
	Account    string `json:"account" validate:"required"`
	CostCenter string `json:"cost_center" validate:"required"`
}

// Attributes holds type-specific data set by transitions.
type Attributes struct {
	Title          string                    `json:"title,omitempty"`
	Note           string                    `json:"note,omitempty"`
	SupplierName   string                    `json:"supplier_name,omitempty"`
	Period         string                    `json:"period,omitempty"`
	Accounting     *AccountingClassification `json:"accounting,omitempty"`
	CashRegisterID string                    `json:"cash_register_id,omitempty"`
}

// Document is the generalized workflow document.
type Document struct {
	ID              uuid.UUID               `json:"id"`
	Type            Type                    `json:"type"`
	Status          Status                  `json:"status"`
	OwnerID         string                  `json:"owner_id"`
	Department      string                  `json:"department"`
	Amount          *float64                `json:"amount,omitempty"`
	Locked          bool                    `json:"locked"`
	RejectionReason string                  `json:"rejection_reason,omitempty"`
	Milestones      map[Milestone]time.Time `json:"milestones,omitempty"`
	Lines           []LineItem              `json:"lines,omitempty"`
	Attributes      Attributes              `json:"attributes"`
	ParentID        *uuid.UUID              `json:"parent_id,omitempty"`
	Version         int64                   `json:"version"`
	CreatedAt       time.Time               `json:"created_at"`
	UpdatedAt       time.Time               `json:"updated_at"`
}

// Clone returns a deep copy so snapshots never alias mutable state.
func (d Document) Clone() Document {
	out := d
	if d.Amount != nil {
		amount := *d.Amount
		out.Amount = &amount
	}
	if d.Milestones != nil {
		out.Milestones = make(map[Milestone]time.Time, len(d.Milestones))
		for k, v := range d.Milestones {
			out.Milestones[k] = v
		}
	}
	if d.Lines != nil {
		out.Lines = append([]LineItem(nil), d.Lines...)
	}
	if d.Attributes.Accounting != nil {
		acc := *d.Attributes.Accounting
		out.Attributes.Accounting = &acc
	}
	if d.ParentID != nil {
		parent := *d.ParentID
		out.ParentID = &parent
	}
	return out
}

// SetMilestone records a timestamp.
func (d *Document) SetMilestone(m Milestone, at time.Time) {
	if m == "" {
		return
	}
	if d.Milestones == nil {
		d.Milestones = make(map[Milestone]time.Time)
	}
	d.Milestones[m] = at
}

// Snapshot encodes the document for audit before/after records.
func (d Document) Snapshot() (json.RawMessage, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("document: snapshot %s: %w", d.ID, err)
	}
	return raw, nil
}

// Payload is the caller-provided data accompanying a transition or creation.
type Payload struct {
	Reason         string                    `json:"reason,omitempty" validate:"omitempty,max=2000"`
	Amount         *float64                  `json:"amount,omitempty"`
	Lines          []LineItem                `json:"lines,omitempty" validate:"omitempty,dive"`
	Attributes     *Attributes               `json:"attributes,omitempty"`
	Accounting     *AccountingClassification `json:"accounting,omitempty"`
	CashRegisterID string                    `json:"cash_register_id,omitempty" validate:"omitempty,max=64"`
}

// EffectiveLines returns the payload lines when supplied, else the document's.
func (p Payload) EffectiveLines(doc Document) []LineItem {
	if p.Lines != nil {
		return p.Lines
	}
	return doc.Lines
}
