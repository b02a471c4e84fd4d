package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-docflow/internal/audit"
	"github.com/odyssey-erp/odyssey-docflow/internal/catalog"
	"github.com/odyssey-erp/odyssey-docflow/internal/document"
	"github.com/odyssey-erp/odyssey-docflow/internal/rbac"
	"github.com/odyssey-erp/odyssey-docflow/internal/registry"
	"github.com/odyssey-erp/odyssey-docflow/internal/shared"
)

// Engine validates and commits document transitions. It never retries;
// conflicts are reported to the caller.
type Engine struct {
	repo       RepositoryPort
	registry   *registry.Registry
	authorizer Authorizer
	events     EventSink
	metrics    Metrics
	logger     *slog.Logger
	now        func() time.Time
}

// EngineOption customises an Engine.
type EngineOption func(*Engine)

// WithEventSink publishes committed transitions to sink.
func WithEventSink(sink EventSink) EngineOption {
	return func(e *Engine) { e.events = sink }
}

// WithMetrics records transition outcomes.
func WithMetrics(metrics Metrics) EngineOption {
	return func(e *Engine) {
		if metrics != nil {
			e.metrics = metrics
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine constructs the workflow engine.
func NewEngine(repo RepositoryPort, reg *registry.Registry, authorizer Authorizer, logger *slog.Logger, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		repo:       repo,
		registry:   reg,
		authorizer: authorizer,
		metrics:    noopMetrics{},
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Apply runs one transition: load, lock check, transition lookup,
// authorization, guards, then an atomic commit of the document, related
// documents and audit entries. The event is published after commit.
func (e *Engine) Apply(ctx context.Context, in ApplyInput) (res Result, err error) {
	docType := "unknown"
	defer func() {
		e.metrics.ObserveTransition(docType, string(in.Action), outcome(err))
	}()

	doc, err := e.repo.Get(ctx, in.DocumentID)
	if err != nil {
		return Result{}, shared.WithTarget(err, in.DocumentID, string(in.Action))
	}
	docType = string(doc.Type)

	tr, lookupErr := e.registry.Lookup(doc, in.Action)
	if doc.Locked && (lookupErr != nil || !tr.Unlocking) {
		return Result{}, shared.NewError(shared.ErrLockedDocument, doc.ID, string(in.Action), "document is locked by a dependent document")
	}
	if lookupErr != nil {
		return Result{}, lookupErr
	}
	if !e.authorized(in.Actor, tr.Capability) {
		return Result{}, denied(doc.ID, string(in.Action))
	}
	if err := tr.Check(registry.GuardInput{Document: doc, Payload: in.Payload}); err != nil {
		return Result{}, shared.WithTarget(err, doc.ID, string(in.Action))
	}

	now := e.now().UTC()
	next := advance(doc, tr, in.Payload, now)
	var spawned *document.Document
	err = e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateIfCurrent(ctx, next, doc.Status, doc.Version); err != nil {
			return err
		}
		if err := e.appendAudit(ctx, tx, in.Actor, string(in.Action), doc.ID, doc.Type, &doc, &next); err != nil {
			return err
		}
		if tr.Has(registry.EffectUnlockParent) && doc.ParentID != nil {
			if err := e.releaseParent(ctx, tx, in.Actor, *doc.ParentID, doc.ID, now); err != nil {
				return err
			}
		}
		if tr.Has(registry.EffectSpawnNeed) {
			child := spawnNeed(next, now)
			if err := tx.Insert(ctx, child); err != nil {
				return err
			}
			if err := e.appendAudit(ctx, tx, in.Actor, AuditActionCreate, child.ID, child.Type, nil, &child); err != nil {
				return err
			}
			spawned = &child
		}
		return nil
	})
	if err != nil {
		return Result{}, shared.WithTarget(err, doc.ID, string(in.Action))
	}

	e.publish(ctx, TransitionEvent{
		ID:         uuid.New(),
		DocumentID: next.ID,
		Type:       next.Type,
		Action:     in.Action,
		From:       doc.Status,
		To:         next.Status,
		ActorID:    in.Actor.ID,
		Version:    next.Version,
		At:         now,
	})
	return Result{Document: next, From: doc.Status, To: next.Status, Spawned: spawned}, nil
}

// CreateDocument stores a new document in its initial status. A referenced
// parent must satisfy the type's parent rule and is locked.
func (e *Engine) CreateDocument(ctx context.Context, in CreateInput) (document.Document, error) {
	if !in.Type.IsValid() {
		return document.Document{}, shared.ValidationError("unknown_type", "type", fmt.Sprintf("unknown document type %q", in.Type))
	}
	def, err := e.registry.Definition(in.Type)
	if err != nil {
		return document.Document{}, err
	}
	if !e.authorized(in.Actor, catalog.Cap(in.Type.Module(), catalog.ActionWrite)) {
		return document.Document{}, denied(uuid.Nil, AuditActionCreate)
	}
	department := strings.TrimSpace(in.Department)
	if department == "" {
		return document.Document{}, shared.ValidationError("department_required", "department", "a department is required")
	}
	if in.ParentID != nil && (def.Parent == nil || def.Parent.Spawned) {
		return document.Document{}, shared.ValidationError("parent_not_allowed", "parent_id", fmt.Sprintf("%s cannot be created from a parent document", in.Type))
	}

	now := e.now().UTC()
	doc := document.Document{
		ID:         uuid.New(),
		Type:       in.Type,
		Status:     def.Initial,
		OwnerID:    in.Actor.ID,
		Department: department,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if edit, err := e.registry.Lookup(doc, document.ActionEdit); err == nil {
		if err := edit.Check(registry.GuardInput{Document: doc, Payload: in.Payload}); err != nil {
			return document.Document{}, err
		}
		for _, effect := range edit.Effects {
			applyEffect(&doc, effect, in.Payload)
		}
	}
	if in.ParentID != nil {
		parentID := *in.ParentID
		doc.ParentID = &parentID
	}

	err = e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if doc.ParentID != nil {
			parent, err := tx.Get(ctx, *doc.ParentID)
			if err != nil {
				return err
			}
			if !def.Parent.Allows(parent) {
				return shared.ValidationError("invalid_parent", "parent_id", fmt.Sprintf("parent must be a %s in status %s", def.Parent.Type, joinStatuses(def.Parent.Statuses)))
			}
			if err := e.setLock(ctx, tx, in.Actor, parent.ID, true, now); err != nil {
				return err
			}
		}
		if err := tx.Insert(ctx, doc); err != nil {
			return err
		}
		return e.appendAudit(ctx, tx, in.Actor, AuditActionCreate, doc.ID, doc.Type, nil, &doc)
	})
	if err != nil {
		return document.Document{}, err
	}
	e.logger.Info("workflow document created", slog.String("type", string(doc.Type)), slog.String("document_id", doc.ID.String()), slog.String("actor", in.Actor.ID))
	return doc, nil
}

// DiscardDraft removes a document that never left its initial status and
// releases its parent when no sibling still holds it.
func (e *Engine) DiscardDraft(ctx context.Context, id uuid.UUID, actor rbac.Actor) error {
	doc, err := e.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !e.authorized(actor, catalog.Cap(doc.Type.Module(), catalog.ActionDelete)) {
		return denied(doc.ID, AuditActionDiscard)
	}
	if doc.Locked {
		return shared.NewError(shared.ErrLockedDocument, doc.ID, AuditActionDiscard, "document is locked by a dependent document")
	}
	def, err := e.registry.Definition(doc.Type)
	if err != nil {
		return err
	}
	if doc.Status != def.Initial {
		return shared.NewError(shared.ErrInvalidTransition, doc.ID, AuditActionDiscard, fmt.Sprintf("only %s documents can be discarded", def.Initial))
	}

	now := e.now().UTC()
	return e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.DeleteIfCurrent(ctx, doc.ID, doc.Status, doc.Version); err != nil {
			return shared.WithTarget(err, doc.ID, AuditActionDiscard)
		}
		if err := e.appendAudit(ctx, tx, actor, AuditActionDiscard, doc.ID, doc.Type, &doc, nil); err != nil {
			return err
		}
		if doc.ParentID != nil {
			return e.releaseParent(ctx, tx, actor, *doc.ParentID, doc.ID, now)
		}
		return nil
	})
}

// Get returns a document the actor may read.
func (e *Engine) Get(ctx context.Context, id uuid.UUID, actor rbac.Actor) (document.Document, error) {
	doc, err := e.repo.Get(ctx, id)
	if err != nil {
		return document.Document{}, err
	}
	if !e.authorized(actor, catalog.Cap(doc.Type.Module(), catalog.ActionRead)) {
		return document.Document{}, denied(doc.ID, "")
	}
	return doc, nil
}

// AvailableActions lists the transitions the actor could apply right now,
// ignoring payload guards.
func (e *Engine) AvailableActions(ctx context.Context, id uuid.UUID, actor rbac.Actor) ([]AvailableAction, error) {
	doc, err := e.Get(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	out := []AvailableAction{}
	for _, tr := range e.registry.Available(doc) {
		if doc.Locked && !tr.Unlocking {
			continue
		}
		if !e.authorized(actor, tr.Capability) {
			continue
		}
		out = append(out, AvailableAction{Action: tr.Action, To: tr.To})
	}
	return out, nil
}

func (e *Engine) authorized(actor rbac.Actor, capability catalog.Capability) bool {
	if e.authorizer == nil || strings.TrimSpace(actor.ID) == "" {
		return false
	}
	return e.authorizer.Authorize(actor.Roles, capability)
}

// releaseParent unlocks parentID unless a sibling of childID still depends on
// it.
func (e *Engine) releaseParent(ctx context.Context, tx TxRepository, actor rbac.Actor, parentID, childID uuid.UUID, now time.Time) error {
	children, err := tx.Children(ctx, parentID)
	if err != nil {
		return err
	}
	for _, child := range children {
		if child.ID == childID {
			continue
		}
		def, err := e.registry.Definition(child.Type)
		if err != nil {
			return err
		}
		if !def.ReleasesParent(child.Status) {
			e.logger.Debug("workflow parent kept locked",
				slog.String("parent_id", parentID.String()),
				slog.String("child_id", child.ID.String()),
				slog.String("child_status", string(child.Status)))
			return nil
		}
	}
	return e.setLock(ctx, tx, actor, parentID, false, now)
}

// setLock flips the lock of a related document and audits the change. It is
// a no-op when the document already has the requested state.
func (e *Engine) setLock(ctx context.Context, tx TxRepository, actor rbac.Actor, id uuid.UUID, locked bool, now time.Time) error {
	current, err := tx.Get(ctx, id)
	if err != nil {
		return err
	}
	if current.Locked == locked {
		return nil
	}
	next := current.Clone()
	next.Locked = locked
	next.Version = current.Version + 1
	next.UpdatedAt = now
	if !locked {
		next.SetMilestone(document.MilestoneUnlockedAt, now)
	}
	if err := tx.UpdateIfCurrent(ctx, next, current.Status, current.Version); err != nil {
		return err
	}
	action := AuditActionRelease
	if locked {
		action = AuditActionLock
	}
	return e.appendAudit(ctx, tx, actor, action, current.ID, current.Type, &current, &next)
}

func (e *Engine) appendAudit(ctx context.Context, tx TxRepository, actor rbac.Actor, action string, id uuid.UUID, t document.Type, before, after *document.Document) error {
	beforeRaw, err := snapshot(before)
	if err != nil {
		return err
	}
	afterRaw, err := snapshot(after)
	if err != nil {
		return err
	}
	return tx.AppendAudit(ctx, audit.Entry{
		ActorID:    actor.ID,
		ActorRoles: actor.Roles.Strings(),
		Action:     action,
		Module:     string(t.Module()),
		RecordID:   id.String(),
		Before:     beforeRaw,
		After:      afterRaw,
		IP:         actor.IP,
		UserAgent:  actor.UserAgent,
		RequestID:  actor.RequestID,
		At:         e.now().UTC(),
	})
}

func (e *Engine) publish(ctx context.Context, evt TransitionEvent) {
	if e.events == nil {
		return
	}
	if err := e.events.Publish(context.WithoutCancel(ctx), evt); err != nil {
		e.metrics.ObserveEventDropped()
		e.logger.Warn("workflow event dropped",
			slog.String("document_id", evt.DocumentID.String()),
			slog.String("action", string(evt.Action)),
			slog.Any("error", err))
	}
}

func snapshot(doc *document.Document) (json.RawMessage, error) {
	if doc == nil {
		return nil, nil
	}
	return doc.Snapshot()
}

func denied(id uuid.UUID, action string) error {
	return shared.NewError(shared.ErrPermissionDenied, id, action, "")
}

func joinStatuses(statuses []document.Status) string {
	parts := make([]string, len(statuses))
	for i, s := range statuses {
		parts[i] = string(s)
	}
	return strings.Join(parts, " or ")
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "applied"
	case errors.Is(err, shared.ErrNotFound):
		return "not_found"
	case errors.Is(err, shared.ErrLockedDocument):
		return "locked"
	case errors.Is(err, shared.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, shared.ErrPermissionDenied):
		return "denied"
	case errors.Is(err, shared.ErrValidation):
		return "invalid"
	case errors.Is(err, shared.ErrConcurrencyConflict):
		return "conflict"
	case errors.Is(err, shared.ErrThresholdViolation):
		return "threshold"
	default:
		return "error"
	}
}

type noopMetrics struct{}

func (noopMetrics) ObserveTransition(string, string, string) {}
func (noopMetrics) ObserveEventDropped()                     {}
