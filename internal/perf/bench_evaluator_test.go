package perf

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-docflow/internal/catalog"
	"github.com/odyssey-erp/odyssey-docflow/internal/rbac"
)

type seededStore struct{}

func (seededStore) LoadGrants(context.Context) ([]rbac.Grant, error) {
	return rbac.DefaultGrants(), nil
}

func (seededStore) WithTx(context.Context, func(context.Context, rbac.MatrixTx) error) error {
	return errors.New("read-only store")
}

type hitCounter struct {
	hits, misses atomic.Int64
}

func (c *hitCounter) ObserveCache(hit bool) {
	if hit {
		c.hits.Add(1)
		return
	}
	c.misses.Add(1)
}

func newEvaluator(t testing.TB, observer rbac.CacheObserver) *rbac.Evaluator {
	t.Helper()
	matrix := rbac.NewMatrix(seededStore{}, catalog.Default(), nil)
	require.NoError(t, matrix.Load(context.Background()))
	opts := []rbac.CacheOption{}
	if observer != nil {
		opts = append(opts, rbac.WithObserver(observer))
	}
	return rbac.NewEvaluator(matrix, rbac.NewCapabilityCache(time.Minute, opts...))
}

var roleMix = []rbac.RoleSet{
	rbac.NewRoleSet(rbac.RoleEmployee),
	rbac.NewRoleSet(rbac.RoleDepartmentLead, rbac.RoleEmployee),
	rbac.NewRoleSet(rbac.RoleProcurementAgent),
	rbac.NewRoleSet(rbac.RoleAccountant, rbac.RoleFinanceDirector),
	rbac.NewRoleSet(rbac.RoleLogisticsLead, rbac.RoleLogisticsAgent),
}

func TestAuthorizeLatencyUnderConcurrency(t *testing.T) {
	counter := &hitCounter{}
	evaluator := newEvaluator(t, counter)
	capability := catalog.Cap(catalog.ModulePurchaseRequest, catalog.ActionRead)

	const workers, perWorker = 8, 500
	samples := make([][]time.Duration, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			local := make([]time.Duration, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				roles := roleMix[(w+i)%len(roleMix)]
				start := time.Now()
				evaluator.Authorize(roles, capability)
				local = append(local, time.Since(start))
			}
			samples[w] = local
		}(w)
	}
	wg.Wait()

	var all []time.Duration
	for _, s := range samples {
		all = append(all, s...)
	}
	p95 := percentile95(all)
	require.Less(t, p95, 5*time.Millisecond, "authorize p95 regression")

	hits, misses := counter.hits.Load(), counter.misses.Load()
	require.Equal(t, int64(workers*perWorker), hits+misses)
	require.GreaterOrEqual(t, float64(hits)/float64(hits+misses), 0.9)
}

func BenchmarkAuthorizeCached(b *testing.B) {
	evaluator := newEvaluator(b, nil)
	capability := catalog.Cap(catalog.ModuleNeed, catalog.ActionWrite)
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			evaluator.Authorize(roleMix[i%len(roleMix)], capability)
			i++
		}
	})
}

func BenchmarkAuthorizeCold(b *testing.B) {
	capability := catalog.Cap(catalog.ModuleNeed, catalog.ActionWrite)
	roles := rbac.NewRoleSet(rbac.RoleProcurementLead, rbac.RoleLogisticsLead, rbac.RoleDepartmentLead)
	var evaluator *rbac.Evaluator
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		evaluator = newEvaluator(b, nil)
		b.StartTimer()
		evaluator.Authorize(roles, capability)
	}
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	index := int(float64(len(sorted)-1) * 0.95)
	return sorted[index]
}
