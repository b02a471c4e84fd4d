package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-docflow/internal/audit"
	jobmetrics "github.com/odyssey-erp/odyssey-docflow/internal/jobs"
	"github.com/odyssey-erp/odyssey-docflow/internal/rbac"
)

const (
	defaultSnapshotKeep  = 30
	defaultLookbackHours = 24
	defaultVerifyLimit   = 5000
)

// MatrixSource loads and exports the current matrix.
type MatrixSource interface {
	Load(ctx context.Context) error
	Export() rbac.Snapshot
}

// SnapshotStore persists matrix backups.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap rbac.Snapshot, takenAt time.Time, keep int) error
}

// MatrixSnapshotJob writes a point-in-time copy of the matrix.
type MatrixSnapshotJob struct {
	Matrix  MatrixSource
	Store   SnapshotStore
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewMatrixSnapshotJob wires the snapshot handler.
func NewMatrixSnapshotJob(matrix MatrixSource, store SnapshotStore, logger *slog.Logger, metrics *jobmetrics.Metrics) *MatrixSnapshotJob {
	return &MatrixSnapshotJob{
		Matrix:  matrix,
		Store:   store,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes TaskMatrixSnapshot tasks. The matrix is reloaded first so
// the snapshot reflects storage rather than this worker's cached view.
func (j *MatrixSnapshotJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Matrix == nil || j.Store == nil {
		return errors.New("matrix snapshot: handler not configured")
	}
	var payload MatrixSnapshotPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("matrix snapshot: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.Keep <= 0 {
		payload.Keep = defaultSnapshotKeep
	}

	tracker := metricsOrDefault(j.Metrics).Track(TaskMatrixSnapshot)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()
	logger := jobLogger(j.Logger, TaskMatrixSnapshot)

	if err := j.Matrix.Load(ctx); err != nil {
		logger.Error("reload matrix", slog.Any("error", err))
		return err
	}
	snap := j.Matrix.Export()
	if err := j.Store.SaveSnapshot(ctx, snap, j.now(), payload.Keep); err != nil {
		logger.Error("save matrix snapshot", slog.Any("error", err))
		return err
	}
	logger.Info("matrix snapshot saved", slog.Int("roles", len(snap.Roles)), slog.Int("keep", payload.Keep))
	return nil
}

func (j *MatrixSnapshotJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// SealVerifier recomputes audit seals.
type SealVerifier interface {
	Verify(ctx context.Context, since, until time.Time, limit int) (audit.VerifyReport, error)
}

// AuditVerifyJob scans recent audit entries for seal mismatches.
type AuditVerifyJob struct {
	Verifier SealVerifier
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	clock    func() time.Time
}

// NewAuditVerifyJob wires the verification handler.
func NewAuditVerifyJob(verifier SealVerifier, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuditVerifyJob {
	return &AuditVerifyJob{
		Verifier: verifier,
		Logger:   logger,
		Metrics:  metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes TaskAuditVerify tasks. Mismatches are reported through
// metrics and logs; the task itself succeeds since a retry cannot repair them.
func (j *AuditVerifyJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Verifier == nil {
		return errors.New("audit verify: handler not configured")
	}
	var payload AuditVerifyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("audit verify: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.LookbackHours <= 0 {
		payload.LookbackHours = defaultLookbackHours
	}
	if payload.Limit <= 0 {
		payload.Limit = defaultVerifyLimit
	}

	metrics := metricsOrDefault(j.Metrics)
	tracker := metrics.Track(TaskAuditVerify)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()
	logger := jobLogger(j.Logger, TaskAuditVerify)

	until := j.now()
	since := until.Add(-time.Duration(payload.LookbackHours) * time.Hour)
	report, err := j.Verifier.Verify(ctx, since, until, payload.Limit)
	if err != nil {
		logger.Error("verify audit seals", slog.Any("error", err))
		return err
	}
	metrics.ObserveSealCheck(report.Checked, len(report.Tampered))
	if len(report.Tampered) > 0 {
		logger.Warn("audit seal mismatches found", slog.Int("checked", report.Checked), slog.Int("tampered", len(report.Tampered)))
		return nil
	}
	logger.Info("audit seals verified", slog.Int("checked", report.Checked))
	return nil
}

func (j *AuditVerifyJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
