package registry

import (
	"fmt"
	"strings"

	"github.com/odyssey-erp/odyssey-docflow/internal/document"
	"github.com/odyssey-erp/odyssey-docflow/internal/shared"
)

// Guard validation codes returned in WorkflowError.Code.
const (
	CodeReasonRequired        = "reason_required"
	CodeJustificationRequired = "justification_required"
	CodeInvalidUrgency        = "invalid_urgency"
	CodeInvalidLine           = "invalid_line"
	CodeLinesRequired         = "lines_required"
	CodeAmountRequired        = "amount_required"
	CodeAccountingRequired    = "accounting_required"
	CodeDeliveryQuantities    = "delivery_quantities_invalid"
	CodeDeliveryIncomplete    = "delivery_incomplete"
)

// GuardInput is the data a guard inspects.
type GuardInput struct {
	Document document.Document
	Payload  document.Payload
}

// Guard validates a transition; it returns a ValidationError when it fails.
type Guard func(in GuardInput) error

// RequireReason blocks rejection-style transitions without a reason.
func RequireReason(in GuardInput) error {
	if strings.TrimSpace(in.Payload.Reason) == "" {
		return shared.ValidationError(CodeReasonRequired, "reason", "a reason is required")
	}
	return nil
}

// RequireLines blocks leaving draft with no line items.
func RequireLines(in GuardInput) error {
	if len(in.Payload.EffectiveLines(in.Document)) == 0 {
		return shared.ValidationError(CodeLinesRequired, "lines", "at least one line item is required")
	}
	return nil
}

// RequireWellFormedLines checks supplied line items carry a description and
// a positive quantity.
func RequireWellFormedLines(in GuardInput) error {
	for i, line := range in.Payload.Lines {
		field := fmt.Sprintf("lines[%d]", i)
		if strings.TrimSpace(line.Description) == "" {
			return shared.ValidationError(CodeInvalidLine, field+".description", "a description is required")
		}
		if line.Quantity <= 0 {
			return shared.ValidationError(CodeInvalidLine, field+".quantity", "quantity must be positive")
		}
		if !line.Urgency.IsValid() {
			return shared.ValidationError(CodeInvalidUrgency, field+".urgency", fmt.Sprintf("unknown urgency %q", line.Urgency))
		}
	}
	return nil
}

// RequireJustifiedUrgency blocks line items above normal urgency that carry
// no justification.
func RequireJustifiedUrgency(in GuardInput) error {
	for i, line := range in.Payload.EffectiveLines(in.Document) {
		field := fmt.Sprintf("lines[%d]", i)
		if !line.Urgency.IsValid() {
			return shared.ValidationError(CodeInvalidUrgency, field+".urgency", fmt.Sprintf("unknown urgency %q", line.Urgency))
		}
		if line.Urgency.AboveNormal() && strings.TrimSpace(line.Justification) == "" {
			return shared.ValidationError(CodeJustificationRequired, field+".justification", "urgency above normal requires a justification")
		}
	}
	return nil
}

// RequirePositiveAmount blocks pricing without a positive amount.
func RequirePositiveAmount(in GuardInput) error {
	if in.Payload.Amount == nil || *in.Payload.Amount <= 0 {
		return shared.ValidationError(CodeAmountRequired, "amount", "a positive amount is required")
	}
	return nil
}

// RequireRecordedAmount blocks submission when neither the payload nor the
// document carries a positive amount.
func RequireRecordedAmount(in GuardInput) error {
	amount := in.Payload.Amount
	if amount == nil {
		amount = in.Document.Amount
	}
	if amount == nil || *amount <= 0 {
		return shared.ValidationError(CodeAmountRequired, "amount", "a positive amount is required")
	}
	return nil
}

// RequireAccounting blocks payment without accounting classification.
func RequireAccounting(in GuardInput) error {
	acc := in.Payload.Accounting
	if acc == nil || strings.TrimSpace(acc.Class) == "" || strings.TrimSpace(acc.Account) == "" || strings.TrimSpace(acc.CostCenter) == "" {
		return shared.ValidationError(CodeAccountingRequired, "accounting", "class, account and cost center are required")
	}
	return nil
}

// RequirePartialDelivery checks delivered quantities describe a partial delivery.
func RequirePartialDelivery(in GuardInput) error {
	lines, err := deliveredLines(in)
	if err != nil {
		return err
	}
	complete := true
	for _, line := range lines {
		if line.Delivered < line.Quantity {
			complete = false
		}
	}
	if complete {
		return shared.ValidationError(CodeDeliveryQuantities, "lines", "every line is fully delivered; use deliver instead")
	}
	return nil
}

// RequireCompleteDelivery checks that completing a delivery leaves nothing outstanding.
func RequireCompleteDelivery(in GuardInput) error {
	if in.Payload.Lines == nil {
		return nil
	}
	lines, err := deliveredLines(in)
	if err != nil {
		return err
	}
	for i, line := range lines {
		if line.Delivered < line.Quantity {
			return shared.ValidationError(CodeDeliveryIncomplete, fmt.Sprintf("lines[%d].delivered", i), "line is not fully delivered")
		}
	}
	return nil
}

func deliveredLines(in GuardInput) ([]document.LineItem, error) {
	if len(in.Payload.Lines) == 0 {
		return nil, shared.ValidationError(CodeDeliveryQuantities, "lines", "delivered quantities are required")
	}
	if len(in.Payload.Lines) != len(in.Document.Lines) {
		return nil, shared.ValidationError(CodeDeliveryQuantities, "lines", "delivered quantities must cover every line")
	}
	lines := MergeDelivered(in.Document.Lines, in.Payload.Lines)
	for i, line := range lines {
		if line.Delivered < 0 || line.Delivered > line.Quantity {
			return nil, shared.ValidationError(CodeDeliveryQuantities, fmt.Sprintf("lines[%d].delivered", i), "delivered quantity out of range")
		}
	}
	return lines, nil
}

// MergeDelivered copies delivered quantities from reported lines onto the
// document lines by position; every other line field stays as recorded.
func MergeDelivered(current, reported []document.LineItem) []document.LineItem {
	merged := append([]document.LineItem(nil), current...)
	for i := range merged {
		if i < len(reported) {
			merged[i].Delivered = reported[i].Delivered
		}
	}
	return merged
}
