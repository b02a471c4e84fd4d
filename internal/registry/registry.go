package registry

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-docflow/internal/catalog"
	"github.com/odyssey-erp/odyssey-docflow/internal/document"
	"github.com/odyssey-erp/odyssey-docflow/internal/shared"
)

// DefaultFinanceThreshold is the purchase amount above which finance
// validation is mandatory.
const DefaultFinanceThreshold = 1_000_000

// Config tunes amount-dependent routing.
type Config struct {
	FinanceThreshold float64
}

// Effect is a side effect the engine applies when committing a transition.
type Effect string

// Transition side effects.
const (
	// EffectApplyContent copies payload lines and attributes onto the document.
	EffectApplyContent Effect = "apply_content"
	// EffectRecordReason persists the payload reason as rejection reason.
	EffectRecordReason Effect = "record_reason"
	// EffectSetAmount persists the payload amount.
	EffectSetAmount Effect = "set_amount"
	// EffectSetAccounting persists accounting classification and cash register.
	EffectSetAccounting Effect = "set_accounting"
	// EffectRecordDelivery merges delivered quantities onto the lines.
	EffectRecordDelivery Effect = "record_delivery"
	// EffectDeliverAll marks every line fully delivered.
	EffectDeliverAll Effect = "deliver_all"
	// EffectLock locks the document itself.
	EffectLock Effect = "lock"
	// EffectUnlock clears the document lock.
	EffectUnlock Effect = "unlock"
	// EffectUnlockParent clears the parent document lock.
	EffectUnlockParent Effect = "unlock_parent"
	// EffectSpawnNeed creates a submitted Need whose parent is the document.
	EffectSpawnNeed Effect = "spawn_need"
)

// Route decides whether an edge exists for the document's current data.
// It returns ErrThresholdViolation when the decision cannot be made.
type Route struct {
	Name string
	Fn   func(doc document.Document, threshold float64) (bool, error)
}

// Transition is a declared edge of a document type's state machine.
type Transition struct {
	Action     document.Action
	From       document.Status
	To         document.Status
	Capability catalog.Capability
	Milestone  document.Milestone
	Route      *Route
	Guards     []Guard
	Effects    []Effect
	// Unlocking transitions are the only ones permitted on a locked document.
	Unlocking bool
}

// Check runs every guard in order and returns the first failure.
func (t Transition) Check(in GuardInput) error {
	for _, guard := range t.Guards {
		if err := guard(in); err != nil {
			return err
		}
	}
	return nil
}

// Has reports whether the transition carries the effect.
func (t Transition) Has(effect Effect) bool {
	for _, e := range t.Effects {
		if e == effect {
			return true
		}
	}
	return false
}

// ParentRule restricts which documents may be referenced as parent.
type ParentRule struct {
	Type     document.Type
	Statuses []document.Status
	// Spawned parents are only assigned by a parent transition, never on create.
	Spawned bool
}

// Allows reports whether parent is an acceptable parent.
func (r ParentRule) Allows(parent document.Document) bool {
	if parent.Type != r.Type {
		return false
	}
	for _, s := range r.Statuses {
		if parent.Status == s {
			return true
		}
	}
	return false
}

// Definition is the state machine of one document type.
type Definition struct {
	Type     document.Type
	Initial  document.Status
	Statuses []document.Status
	Parent   *ParentRule

	transitions map[document.Status][]Transition
}

// Transitions returns the edges leaving status.
func (d Definition) Transitions(status document.Status) []Transition {
	return append([]Transition(nil), d.transitions[status]...)
}

// AllTransitions returns every declared edge.
func (d Definition) AllTransitions() []Transition {
	var out []Transition
	for _, status := range d.Statuses {
		out = append(out, d.transitions[status]...)
	}
	return out
}

// HasStatus reports whether status belongs to the type.
func (d Definition) HasStatus(status document.Status) bool {
	for _, s := range d.Statuses {
		if s == status {
			return true
		}
	}
	return false
}

// ReleasesParent reports whether a document in status has let go of its
// parent, i.e. status is reached through a parent-releasing edge.
func (d Definition) ReleasesParent(status document.Status) bool {
	for _, tr := range d.AllTransitions() {
		if tr.To == status && tr.Has(EffectUnlockParent) {
			return true
		}
	}
	return false
}

// Registry holds every document type definition.
type Registry struct {
	cfg  Config
	defs map[document.Type]Definition
}

// New builds the registry with the given routing configuration.
func New(cfg Config) *Registry {
	if cfg.FinanceThreshold <= 0 {
		cfg.FinanceThreshold = DefaultFinanceThreshold
	}
	r := &Registry{cfg: cfg, defs: make(map[document.Type]Definition)}
	for _, def := range definitions() {
		r.defs[def.Type] = def
	}
	return r
}

// FinanceThreshold returns the configured purchase threshold.
func (r *Registry) FinanceThreshold() float64 {
	return r.cfg.FinanceThreshold
}

// Definition returns the state machine for t.
func (r *Registry) Definition(t document.Type) (Definition, error) {
	def, ok := r.defs[t]
	if !ok {
		return Definition{}, shared.NewError(shared.ErrInvalidTransition, uuid.Nil, "", fmt.Sprintf("unknown document type %q", t))
	}
	return def, nil
}

// InitialStatus returns the creation status for t.
func (r *Registry) InitialStatus(t document.Type) (document.Status, error) {
	def, err := r.Definition(t)
	if err != nil {
		return "", err
	}
	return def.Initial, nil
}

// Statuses returns the authoritative status set for t.
func (r *Registry) Statuses(t document.Type) ([]document.Status, error) {
	def, err := r.Definition(t)
	if err != nil {
		return nil, err
	}
	return append([]document.Status(nil), def.Statuses...), nil
}

// Transitions returns the edges declared from status for t.
func (r *Registry) Transitions(t document.Type, status document.Status) ([]Transition, error) {
	def, err := r.Definition(t)
	if err != nil {
		return nil, err
	}
	if !def.HasStatus(status) {
		return nil, shared.NewError(shared.ErrInvalidTransition, uuid.Nil, "", fmt.Sprintf("unknown status %q for %s", status, t))
	}
	return def.Transitions(status), nil
}

// Lookup resolves the transition for action from the document's current
// status, evaluating amount-dependent routes.
func (r *Registry) Lookup(doc document.Document, action document.Action) (Transition, error) {
	candidates, err := r.Transitions(doc.Type, doc.Status)
	if err != nil {
		return Transition{}, shared.WithTarget(err, doc.ID, string(action))
	}
	matched := false
	for _, t := range candidates {
		if t.Action != action {
			continue
		}
		matched = true
		if t.Route == nil {
			return t, nil
		}
		ok, err := t.Route.Fn(doc, r.cfg.FinanceThreshold)
		if err != nil {
			return Transition{}, shared.WithTarget(err, doc.ID, string(action))
		}
		if ok {
			return t, nil
		}
	}
	reason := fmt.Sprintf("no %s edge from %s", action, doc.Status)
	if matched {
		reason = fmt.Sprintf("%s from %s is not available for this amount", action, doc.Status)
	}
	return Transition{}, shared.NewError(shared.ErrInvalidTransition, doc.ID, string(action), reason)
}

// Available lists the transitions whose routes currently hold for doc.
func (r *Registry) Available(doc document.Document) []Transition {
	candidates, err := r.Transitions(doc.Type, doc.Status)
	if err != nil {
		return nil
	}
	out := make([]Transition, 0, len(candidates))
	for _, t := range candidates {
		if t.Route != nil {
			ok, err := t.Route.Fn(doc, r.cfg.FinanceThreshold)
			if err != nil || !ok {
				continue
			}
		}
		out = append(out, t)
	}
	return out
}

// Types lists the registered document types.
func (r *Registry) Types() []document.Type {
	out := make([]document.Type, 0, len(r.defs))
	for _, t := range document.Types() {
		if _, ok := r.defs[t]; ok {
			out = append(out, t)
		}
	}
	return out
}
