package jobmetrics

import (
	"errors"
	"fmt"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func gathered(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	out := make(map[string]float64)
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			key := family.GetName()
			for _, label := range metric.GetLabel() {
				key += "," + label.GetName() + "=" + label.GetValue()
			}
			if c := metric.GetCounter(); c != nil {
				out[key] = c.GetValue()
			}
		}
	}
	return out
}

func TestRunRecordsStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	require.NoError(t, m.Track("audit:verify").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("audit:verify").End(boom), boom)
	bad := fmt.Errorf("decode payload: %w", asynq.SkipRetry)
	require.ErrorIs(t, m.Track("audit:verify").End(bad), asynq.SkipRetry)

	values := gathered(t, reg)
	require.Equal(t, 1.0, values["odyssey_jobs_total,job=audit:verify,status=success"])
	require.Equal(t, 1.0, values["odyssey_jobs_total,job=audit:verify,status=failure"])
	require.Equal(t, 1.0, values["odyssey_jobs_total,job=audit:verify,status=skipped"])
	require.Equal(t, 2.0, values["odyssey_jobs_failures_total,job=audit:verify"])
}

func TestObserveSealCheck(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.ObserveSealCheck(0, 0)
	m.ObserveSealCheck(40, 3)

	values := gathered(t, reg)
	require.Equal(t, 40.0, values["odyssey_audit_seals_checked_total"])
	require.Equal(t, 3.0, values["odyssey_audit_seal_mismatches_total"])

	var nilMetrics *Metrics
	nilMetrics.ObserveSealCheck(2, 2)
	require.NoError(t, nilMetrics.Track("workflow:transition").End(nil))
}
