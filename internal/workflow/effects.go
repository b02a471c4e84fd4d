package workflow

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-docflow/internal/document"
	"github.com/odyssey-erp/odyssey-docflow/internal/registry"
)

// advance returns the document as it will be after tr commits. Effects on
// related documents are applied separately inside the transaction.
func advance(doc document.Document, tr registry.Transition, payload document.Payload, now time.Time) document.Document {
	next := doc.Clone()
	for _, effect := range tr.Effects {
		applyEffect(&next, effect, payload)
	}
	next.Status = tr.To
	next.SetMilestone(tr.Milestone, now)
	next.Version = doc.Version + 1
	next.UpdatedAt = now
	return next
}

func applyEffect(doc *document.Document, effect registry.Effect, payload document.Payload) {
	switch effect {
	case registry.EffectApplyContent:
		if payload.Lines != nil {
			doc.Lines = append([]document.LineItem(nil), payload.Lines...)
		}
		if payload.Attributes != nil {
			attrs := *payload.Attributes
			attrs.Accounting = doc.Attributes.Accounting
			attrs.CashRegisterID = doc.Attributes.CashRegisterID
			doc.Attributes = attrs
		}
	case registry.EffectRecordReason:
		doc.RejectionReason = strings.TrimSpace(payload.Reason)
	case registry.EffectSetAmount:
		if payload.Amount != nil {
			amount := *payload.Amount
			doc.Amount = &amount
		}
	case registry.EffectSetAccounting:
		if payload.Accounting != nil {
			acc := *payload.Accounting
			doc.Attributes.Accounting = &acc
		}
		doc.Attributes.CashRegisterID = strings.TrimSpace(payload.CashRegisterID)
	case registry.EffectRecordDelivery:
		doc.Lines = registry.MergeDelivered(doc.Lines, payload.Lines)
	case registry.EffectDeliverAll:
		lines := append([]document.LineItem(nil), doc.Lines...)
		for i := range lines {
			lines[i].Delivered = lines[i].Quantity
		}
		doc.Lines = lines
	case registry.EffectLock:
		doc.Locked = true
	case registry.EffectUnlock:
		doc.Locked = false
	}
}

// spawnNeed builds the need handed to logistics when an expression is sent.
func spawnNeed(parent document.Document, now time.Time) document.Document {
	parentID := parent.ID
	need := document.Document{
		ID:         uuid.New(),
		Type:       document.TypeNeed,
		Status:     registry.NeedSubmitted,
		OwnerID:    parent.OwnerID,
		Department: parent.Department,
		Lines:      append([]document.LineItem(nil), parent.Lines...),
		Attributes: document.Attributes{Title: parent.Attributes.Title, Note: parent.Attributes.Note},
		ParentID:   &parentID,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	need.SetMilestone(document.MilestoneSubmittedAt, now)
	return need
}
