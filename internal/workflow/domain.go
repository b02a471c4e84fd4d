package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-docflow/internal/audit"
	"github.com/odyssey-erp/odyssey-docflow/internal/catalog"
	"github.com/odyssey-erp/odyssey-docflow/internal/document"
	"github.com/odyssey-erp/odyssey-docflow/internal/rbac"
)

// Audit actions recorded by the engine besides transition names.
const (
	AuditActionCreate  = "create"
	AuditActionDiscard = "discard"
	AuditActionLock    = "lock"
	AuditActionRelease = "release"
)

// ApplyInput describes one transition request.
type ApplyInput struct {
	DocumentID uuid.UUID
	Action     document.Action
	Actor      rbac.Actor
	Payload    document.Payload
}

// CreateInput describes a new draft document.
type CreateInput struct {
	Type       document.Type
	Actor      rbac.Actor
	Department string
	ParentID   *uuid.UUID
	Payload    document.Payload
}

// Result is the outcome of a committed transition.
type Result struct {
	Document document.Document  `json:"document"`
	From     document.Status    `json:"from"`
	To       document.Status    `json:"to"`
	Spawned  *document.Document `json:"spawned,omitempty"`
}

// AvailableAction is a transition the actor may apply now.
type AvailableAction struct {
	Action document.Action `json:"action"`
	To     document.Status `json:"to"`
}

// TransitionEvent is published after a transition commits.
type TransitionEvent struct {
	ID         uuid.UUID       `json:"id"`
	DocumentID uuid.UUID       `json:"document_id"`
	Type       document.Type   `json:"type"`
	Action     document.Action `json:"action"`
	From       document.Status `json:"from"`
	To         document.Status `json:"to"`
	ActorID    string          `json:"actor_id"`
	Version    int64           `json:"version"`
	At         time.Time       `json:"at"`
}

// EventSink receives committed transition events.
type EventSink interface {
	Publish(ctx context.Context, evt TransitionEvent) error
}

// Authorizer decides whether a role set holds a capability.
type Authorizer interface {
	Authorize(roles rbac.RoleSet, capability catalog.Capability) bool
}

// Metrics records transition outcomes.
type Metrics interface {
	ObserveTransition(docType, action, outcome string)
	ObserveEventDropped()
}

// RepositoryPort describes persistence used by the Engine.
type RepositoryPort interface {
	Get(ctx context.Context, id uuid.UUID) (document.Document, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the statements executed inside one engine transaction.
type TxRepository interface {
	Get(ctx context.Context, id uuid.UUID) (document.Document, error)
	Insert(ctx context.Context, doc document.Document) error
	// UpdateIfCurrent writes doc when the stored row still has the expected
	// status and version; otherwise it returns ErrConcurrencyConflict.
	UpdateIfCurrent(ctx context.Context, doc document.Document, status document.Status, version int64) error
	DeleteIfCurrent(ctx context.Context, id uuid.UUID, status document.Status, version int64) error
	// Children returns the documents referencing parentID, locked for update.
	Children(ctx context.Context, parentID uuid.UUID) ([]document.Document, error)
	AppendAudit(ctx context.Context, entry audit.Entry) error
}
