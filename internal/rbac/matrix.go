package rbac

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-docflow/internal/audit"
	"github.com/odyssey-erp/odyssey-docflow/internal/catalog"
	"github.com/odyssey-erp/odyssey-docflow/internal/shared"
)

// Matrix audit actions recorded under the role_permissions module.
const (
	AuditActionGrant  = "grant"
	AuditActionRevoke = "revoke"
	AuditActionImport = "import"
)

// SnapshotVersion is the current export format version.
const SnapshotVersion = 1

// Snapshot is the portable form of the matrix. Roles and capabilities are
// sorted so the JSON encoding is byte-stable.
type Snapshot struct {
	Version int          `json:"version"`
	Roles   []RoleGrants `json:"roles"`
}

// RoleGrants lists the capabilities granted to one role.
type RoleGrants struct {
	Role         Role                 `json:"role"`
	Capabilities []catalog.Capability `json:"capabilities"`
}

// ChangeEvent describes a committed matrix change.
type ChangeEvent struct {
	Roles []Role `json:"roles,omitempty"`
	// Purge is set when the whole matrix was replaced.
	Purge bool `json:"purge,omitempty"`
	// Remote marks events replayed from another instance.
	Remote bool `json:"-"`
}

// Store persists grants. Superuser rows are never written.
type Store interface {
	LoadGrants(ctx context.Context) ([]Grant, error)
	WithTx(ctx context.Context, fn func(context.Context, MatrixTx) error) error
}

// MatrixTx exposes the statements executed inside one matrix transaction.
type MatrixTx interface {
	InsertGrant(ctx context.Context, grant Grant) (bool, error)
	DeleteGrant(ctx context.Context, grant Grant) (bool, error)
	ReplaceGrants(ctx context.Context, grants []Grant) error
	AppendAudit(ctx context.Context, entry audit.Entry) error
}

type matrixState struct {
	byRole map[Role]catalog.Set
}

func (s *matrixState) clone() *matrixState {
	next := &matrixState{byRole: make(map[Role]catalog.Set, len(s.byRole))}
	for role, set := range s.byRole {
		next.byRole[role] = set.Clone()
	}
	return next
}

// Matrix is the authoritative role to capability mapping. Reads use an
// immutable snapshot; writers serialise on mu and swap the snapshot after commit.
type Matrix struct {
	store   Store
	catalog *catalog.Catalog
	logger  *slog.Logger

	mu    sync.Mutex
	state atomic.Pointer[matrixState]

	listenersMu sync.RWMutex
	listeners   []func(ChangeEvent)
}

// NewMatrix builds an empty matrix; call Load before serving.
func NewMatrix(store Store, cat *catalog.Catalog, logger *slog.Logger) *Matrix {
	if logger == nil {
		logger = slog.Default()
	}
	if cat == nil {
		cat = catalog.Default()
	}
	m := &Matrix{store: store, catalog: cat, logger: logger}
	m.state.Store(&matrixState{byRole: make(map[Role]catalog.Set)})
	return m
}

// Catalog returns the capability catalog the matrix validates against.
func (m *Matrix) Catalog() *catalog.Catalog {
	return m.catalog
}

// Subscribe registers fn to receive committed changes.
func (m *Matrix) Subscribe(fn func(ChangeEvent)) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.listeners = append(m.listeners, fn)
}

func (m *Matrix) notify(ev ChangeEvent) {
	m.listenersMu.RLock()
	listeners := slices.Clone(m.listeners)
	m.listenersMu.RUnlock()
	for _, fn := range listeners {
		fn(ev)
	}
}

// Load replaces the in-memory matrix with the stored grants.
func (m *Matrix) Load(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadLocked(ctx)
}

func (m *Matrix) loadLocked(ctx context.Context) error {
	grants, err := m.store.LoadGrants(ctx)
	if err != nil {
		return fmt.Errorf("rbac: load grants: %w", err)
	}
	next := &matrixState{byRole: make(map[Role]catalog.Set)}
	for _, g := range grants {
		if g.Role == Superuser || !g.Role.IsValid() || !m.catalog.Contains(g.Capability) {
			m.logger.Warn("rbac skip stored grant", slog.String("role", string(g.Role)), slog.String("capability", g.Capability.String()))
			continue
		}
		set, ok := next.byRole[g.Role]
		if !ok {
			set = catalog.NewSet()
			next.byRole[g.Role] = set
		}
		set.Add(g.Capability)
	}
	m.state.Store(next)
	return nil
}

// Reload refreshes from the store after a change committed elsewhere and
// notifies listeners with the event marked remote.
func (m *Matrix) Reload(ctx context.Context, ev ChangeEvent) error {
	if err := m.Load(ctx); err != nil {
		return err
	}
	ev.Remote = true
	m.notify(ev)
	return nil
}

// SeedDefaults imports DefaultGrants when the store holds no grants.
// It reports whether seeding happened.
func (m *Matrix) SeedDefaults(ctx context.Context, actor Actor) (bool, error) {
	grants, err := m.store.LoadGrants(ctx)
	if err != nil {
		return false, fmt.Errorf("rbac: load grants: %w", err)
	}
	if len(grants) > 0 {
		return false, nil
	}
	if err := m.Import(ctx, actor, snapshotOf(DefaultGrants())); err != nil {
		return false, err
	}
	return true, nil
}

// CapabilitiesOf returns the stored capabilities of role. The returned set is
// shared and must not be mutated.
func (m *Matrix) CapabilitiesOf(role Role) catalog.Set {
	set, ok := m.state.Load().byRole[role]
	if !ok {
		return catalog.NewSet()
	}
	return set
}

// Has reports whether role holds capability in the stored matrix.
func (m *Matrix) Has(role Role, capability catalog.Capability) bool {
	return m.state.Load().byRole[role].Has(capability)
}

func (m *Matrix) validate(role Role, capability catalog.Capability) error {
	if role == Superuser {
		return shared.NewError(shared.ErrImmutableRole, uuid.Nil, "", fmt.Sprintf("role %s cannot be modified", role))
	}
	if !role.IsValid() {
		return shared.ValidationError("unknown_role", "role", fmt.Sprintf("unknown role %q", role))
	}
	if !m.catalog.Contains(capability) {
		return shared.ValidationError("unknown_capability", "capability", fmt.Sprintf("unknown capability %s", capability))
	}
	return nil
}

// Grant adds capability to role. Granting an existing edge is a no-op and
// writes no audit entry.
func (m *Matrix) Grant(ctx context.Context, actor Actor, role Role, capability catalog.Capability) error {
	return m.mutate(ctx, actor, role, capability, true)
}

// Revoke removes capability from role. Revoking a missing edge is a no-op.
func (m *Matrix) Revoke(ctx context.Context, actor Actor, role Role, capability catalog.Capability) error {
	return m.mutate(ctx, actor, role, capability, false)
}

func (m *Matrix) mutate(ctx context.Context, actor Actor, role Role, capability catalog.Capability, grant bool) error {
	if err := m.validate(role, capability); err != nil {
		return err
	}

	m.mu.Lock()
	current := m.state.Load()
	if current.byRole[role].Has(capability) == grant {
		m.mu.Unlock()
		return nil
	}
	next := current.clone()
	set, ok := next.byRole[role]
	if !ok {
		set = catalog.NewSet()
		next.byRole[role] = set
	}
	before := capabilityJSON(current.byRole[role])
	action := AuditActionRevoke
	if grant {
		set.Add(capability)
		action = AuditActionGrant
	} else {
		delete(set, capability)
	}

	edge := Grant{Role: role, Capability: capability}
	err := m.store.WithTx(ctx, func(ctx context.Context, tx MatrixTx) error {
		var changed bool
		var err error
		if grant {
			changed, err = tx.InsertGrant(ctx, edge)
		} else {
			changed, err = tx.DeleteGrant(ctx, edge)
		}
		if err != nil || !changed {
			return err
		}
		return tx.AppendAudit(ctx, auditEntry(actor, action, string(role), before, capabilityJSON(set)))
	})
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("rbac: %s %s to %s: %w", action, capability, role, err)
	}
	m.state.Store(next)
	m.mu.Unlock()

	m.logger.Info("rbac matrix changed", slog.String("action", action), slog.String("role", string(role)), slog.String("capability", capability.String()), slog.String("actor", actor.ID))
	m.notify(ChangeEvent{Roles: []Role{role}})
	return nil
}

// Export returns the stored matrix for every non-superuser role.
func (m *Matrix) Export() Snapshot {
	return exportState(m.state.Load())
}

// Import replaces every non-superuser grant with the snapshot contents.
// Superuser rows are ignored; any unknown role or capability rejects the
// whole snapshot.
func (m *Matrix) Import(ctx context.Context, actor Actor, snap Snapshot) error {
	next := &matrixState{byRole: make(map[Role]catalog.Set)}
	var grants []Grant
	for i, rg := range snap.Roles {
		if rg.Role == Superuser {
			continue
		}
		if !rg.Role.IsValid() {
			return shared.ValidationError("unknown_role", fmt.Sprintf("roles[%d].role", i), fmt.Sprintf("unknown role %q", rg.Role))
		}
		set, ok := next.byRole[rg.Role]
		if !ok {
			set = catalog.NewSet()
			next.byRole[rg.Role] = set
		}
		for j, capability := range rg.Capabilities {
			if !m.catalog.Contains(capability) {
				return shared.ValidationError("unknown_capability", fmt.Sprintf("roles[%d].capabilities[%d]", i, j), fmt.Sprintf("unknown capability %s", capability))
			}
			if set.Has(capability) {
				continue
			}
			set.Add(capability)
			grants = append(grants, Grant{Role: rg.Role, Capability: capability})
		}
	}

	m.mu.Lock()
	before, err := json.Marshal(m.Export())
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("rbac: encode snapshot: %w", err)
	}
	after, err := json.Marshal(exportState(next))
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("rbac: encode snapshot: %w", err)
	}
	err = m.store.WithTx(ctx, func(ctx context.Context, tx MatrixTx) error {
		if err := tx.ReplaceGrants(ctx, grants); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, auditEntry(actor, AuditActionImport, "matrix", before, after))
	})
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("rbac: import matrix: %w", err)
	}
	m.state.Store(next)
	m.mu.Unlock()

	m.logger.Info("rbac matrix imported", slog.Int("grants", len(grants)), slog.String("actor", actor.ID))
	m.notify(ChangeEvent{Purge: true})
	return nil
}

func exportState(state *matrixState) Snapshot {
	snap := Snapshot{Version: SnapshotVersion, Roles: []RoleGrants{}}
	for _, role := range sortedRoles() {
		capabilities := state.byRole[role].Sorted()
		if capabilities == nil {
			capabilities = []catalog.Capability{}
		}
		snap.Roles = append(snap.Roles, RoleGrants{Role: role, Capabilities: capabilities})
	}
	return snap
}

func snapshotOf(grants []Grant) Snapshot {
	byRole := make(map[Role][]catalog.Capability)
	for _, g := range grants {
		byRole[g.Role] = append(byRole[g.Role], g.Capability)
	}
	snap := Snapshot{Version: SnapshotVersion}
	for _, role := range sortedRoles() {
		snap.Roles = append(snap.Roles, RoleGrants{Role: role, Capabilities: byRole[role]})
	}
	return snap
}

func sortedRoles() []Role {
	var out []Role
	for _, role := range NewRoleSet(Roles()...) {
		if role != Superuser {
			out = append(out, role)
		}
	}
	return out
}

func capabilityJSON(set catalog.Set) json.RawMessage {
	capabilities := set.Sorted()
	if capabilities == nil {
		capabilities = []catalog.Capability{}
	}
	raw, _ := json.Marshal(capabilities)
	return raw
}

func auditEntry(actor Actor, action, recordID string, before, after json.RawMessage) audit.Entry {
	return audit.Entry{
		ActorID:    actor.ID,
		ActorRoles: actor.Roles.Strings(),
		Action:     action,
		Module:     string(catalog.ModuleRolePermissions),
		RecordID:   recordID,
		Before:     before,
		After:      after,
		IP:         actor.IP,
		UserAgent:  actor.UserAgent,
		RequestID:  actor.RequestID,
	}
}
