package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-docflow/internal/workflow"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueEvents carries post-transition events.
	QueueEvents = "events"

	// TaskWorkflowTransition announces a committed document transition.
	TaskWorkflowTransition = "workflow:transition"
	// TaskMatrixSnapshot backs up the role-permission matrix.
	TaskMatrixSnapshot = "rbac:matrix-snapshot"
	// TaskAuditVerify recomputes audit entry seals.
	TaskAuditVerify = "audit:verify"
)

// MatrixSnapshotPayload controls snapshot retention.
type MatrixSnapshotPayload struct {
	Keep int `json:"keep"`
}

// AuditVerifyPayload bounds the verification window.
type AuditVerifyPayload struct {
	LookbackHours int `json:"lookback_hours"`
	Limit         int `json:"limit"`
}

// NewTransitionTask wraps a transition event. The event id doubles as the
// task id so a republished event is deduplicated by the queue.
func NewTransitionTask(evt workflow.TransitionEvent) (*asynq.Task, error) {
	body, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("jobs: encode transition event: %w", err)
	}
	return asynq.NewTask(TaskWorkflowTransition, body,
		asynq.Queue(QueueEvents),
		asynq.TaskID(evt.ID.String()),
		asynq.MaxRetry(5),
	), nil
}

// NewMatrixSnapshotTask builds the matrix backup task.
func NewMatrixSnapshotTask(keep int) (*asynq.Task, error) {
	body, err := json.Marshal(MatrixSnapshotPayload{Keep: keep})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskMatrixSnapshot, body, asynq.Queue(QueueDefault)), nil
}

// NewAuditVerifyTask builds the audit seal verification task.
func NewAuditVerifyTask(lookbackHours, limit int) (*asynq.Task, error) {
	body, err := json.Marshal(AuditVerifyPayload{LookbackHours: lookbackHours, Limit: limit})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditVerify, body, asynq.Queue(QueueDefault)), nil
}
