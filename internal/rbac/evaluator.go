package rbac

import (
	"strconv"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-docflow/internal/catalog"
)

// Evaluator resolves an actor's effective capabilities from the matrix. It is
// the only place besides the matrix guard that special-cases the superuser.
type Evaluator struct {
	matrix *Matrix
	cache  *CapabilityCache
	full   catalog.Set
	group  singleflight.Group
}

// NewEvaluator wires the evaluator to matrix changes so grants and revokes
// invalidate the affected cache entries.
func NewEvaluator(matrix *Matrix, cache *CapabilityCache) *Evaluator {
	if cache == nil {
		cache = NewCapabilityCache(DefaultCacheTTL)
	}
	e := &Evaluator{matrix: matrix, cache: cache, full: matrix.Catalog().ListCapabilities()}
	matrix.Subscribe(e.onChange)
	return e
}

func (e *Evaluator) onChange(ev ChangeEvent) {
	if ev.Purge {
		e.cache.Purge()
		return
	}
	for _, role := range ev.Roles {
		e.cache.Invalidate(role)
	}
}

// EffectiveCapabilities returns the union of the roles' capabilities. The
// returned set is shared and must not be mutated.
func (e *Evaluator) EffectiveCapabilities(roles RoleSet) catalog.Set {
	if roles.HasSuperuser() {
		return e.full
	}
	if len(roles) == 0 {
		return catalog.NewSet()
	}
	key := roles.Key()
	if set, ok := e.cache.Get(key); ok {
		return set
	}
	// Flights are keyed by generation so callers arriving after an
	// invalidation never share a set computed from the previous matrix.
	gen := e.cache.Generation()
	v, _, _ := e.group.Do(strconv.FormatUint(gen, 10)+"|"+key, func() (any, error) {
		set := catalog.NewSet()
		for _, role := range roles {
			set.Union(e.matrix.CapabilitiesOf(role))
		}
		e.cache.Put(roles, set, gen)
		return set, nil
	})
	return v.(catalog.Set)
}

// Authorize reports whether any of the roles grants capability.
func (e *Evaluator) Authorize(roles RoleSet, capability catalog.Capability) bool {
	return e.EffectiveCapabilities(roles).Has(capability)
}
