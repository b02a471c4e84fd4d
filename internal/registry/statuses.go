package registry

import "github.com/odyssey-erp/odyssey-docflow/internal/document"

// Need statuses.
const (
	NeedDraft         document.Status = "draft"
	NeedSubmitted     document.Status = "submitted"
	NeedTakenInCharge document.Status = "taken_in_charge"
	NeedAccepted      document.Status = "accepted"
	NeedRefused       document.Status = "refused"
)

// Need-expression statuses.
const (
	ExpressionDraft           document.Status = "draft"
	ExpressionSubmitted       document.Status = "submitted"
	ExpressionUnderReview     document.Status = "under_review"
	ExpressionValidated       document.Status = "validated_by_department"
	ExpressionRejected        document.Status = "rejected_by_department"
	ExpressionSentToLogistics document.Status = "sent_to_logistics"
)

// Purchase request statuses. The ops pair and the revision status are part of
// the authoritative set even though only one approval branch uses them.
const (
	PRDraft                document.Status = "draft"
	PRSubmitted            document.Status = "submitted"
	PRRejected             document.Status = "rejected"
	PRUnderAnalysis        document.Status = "under_analysis"
	PRPriced               document.Status = "priced"
	PRValidatedByOps       document.Status = "validated_by_ops"
	PRRejectedByOps        document.Status = "rejected_by_ops"
	PRSubmittedForFinance  document.Status = "submitted_for_finance_validation"
	PRValidatedByFinance   document.Status = "validated_by_finance"
	PRRefusedByFinance     document.Status = "refused_by_finance"
	PRUnderRevision        document.Status = "under_procurement_revision"
	PRPaid                 document.Status = "paid"
	PRRejectedByAccounting document.Status = "rejected_by_accounting"
)

// Delivery note statuses, including the partially delivered state.
const (
	DeliveryPrepared           document.Status = "prepared"
	DeliveryPendingValidation  document.Status = "pending_validation"
	DeliveryValidated          document.Status = "validated"
	DeliveryDelivered          document.Status = "delivered"
	DeliveryPartiallyDelivered document.Status = "partially_delivered"
)

// Expense note statuses.
const (
	ExpenseDraft     document.Status = "draft"
	ExpenseSubmitted document.Status = "submitted"
	ExpenseValidated document.Status = "validated_by_finance_director"
	ExpensePaid      document.Status = "paid"
	ExpenseRejected  document.Status = "rejected"
)

// Operational report statuses.
const (
	ReportDraft     document.Status = "draft"
	ReportSubmitted document.Status = "submitted"
	ReportValidated document.Status = "validated"
	ReportRejected  document.Status = "rejected"
)

// Transition actions.
const (
	ActSubmit                  document.Action = "submit"
	ActTakeInCharge            document.Action = "take-in-charge"
	ActAccept                  document.Action = "accept"
	ActRefuse                  document.Action = "refuse"
	ActUnlock                  document.Action = "unlock"
	ActStartReview             document.Action = "start-review"
	ActValidateDepartment      document.Action = "validate-department"
	ActRejectDepartment        document.Action = "reject-department"
	ActSendToLogistics         document.Action = "send-to-logistics"
	ActReject                  document.Action = "reject"
	ActStartAnalysis           document.Action = "start-analysis"
	ActPrice                   document.Action = "price"
	ActValidateOps             document.Action = "validate-ops"
	ActRejectOps               document.Action = "reject-ops"
	ActSubmitFinanceValidation document.Action = "submit-finance-validation"
	ActValidateFinance         document.Action = "validate-finance"
	ActRefuseFinance           document.Action = "refuse-finance"
	ActMarkPaid                document.Action = "mark-paid"
	ActRequestRevision         document.Action = "request-revision"
	ActRejectAccounting        document.Action = "reject-accounting"
	ActSubmitValidation        document.Action = "submit-validation"
	ActValidate                document.Action = "validate"
	ActDeliver                 document.Action = "deliver"
	ActPartiallyDeliver        document.Action = "partially-deliver"
	ActCompleteDelivery        document.Action = "complete-delivery"
	ActValidateFinanceDirector document.Action = "validate-finance-director"
)
