package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-docflow/internal/jobs"
	"github.com/odyssey-erp/odyssey-docflow/internal/workflow"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Enqueuer is the subset of the asynq client used to publish tasks.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Publisher forwards committed transitions to the queue. It implements
// workflow.EventSink.
type Publisher struct {
	enqueuer Enqueuer
}

// NewPublisher constructs a Publisher.
func NewPublisher(enqueuer Enqueuer) *Publisher {
	return &Publisher{enqueuer: enqueuer}
}

// Publish enqueues the event. A task already queued under the same event id
// counts as published.
func (p *Publisher) Publish(ctx context.Context, evt workflow.TransitionEvent) error {
	if p == nil || p.enqueuer == nil {
		return errors.New("jobs: publisher not configured")
	}
	task, err := NewTransitionTask(evt)
	if err != nil {
		return err
	}
	if _, err := p.enqueuer.EnqueueContext(ctx, task); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return fmt.Errorf("jobs: enqueue transition %s: %w", evt.ID, err)
	}
	return nil
}

// TransitionHandler is the downstream hook invoked per committed transition.
type TransitionHandler func(ctx context.Context, evt workflow.TransitionEvent) error

// TransitionJob consumes transition events. Delivery of notifications is left
// to the configured hook; without one the event is only logged.
type TransitionJob struct {
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	Hook    TransitionHandler
}

// NewTransitionJob wires the transition consumer.
func NewTransitionJob(logger *slog.Logger, metrics *jobmetrics.Metrics, hook TransitionHandler) *TransitionJob {
	return &TransitionJob{Logger: logger, Metrics: metrics, Hook: hook}
}

// Handle processes TaskWorkflowTransition tasks.
func (j *TransitionJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil {
		return errors.New("transition: handler not configured")
	}
	var evt workflow.TransitionEvent
	if err := json.Unmarshal(t.Payload(), &evt); err != nil {
		return fmt.Errorf("transition: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	tracker := metricsOrDefault(j.Metrics).Track(TaskWorkflowTransition)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := jobLogger(j.Logger, TaskWorkflowTransition).With(
		slog.String("document_id", evt.DocumentID.String()),
		slog.String("type", string(evt.Type)),
		slog.String("action", string(evt.Action)),
	)
	logger.Info("document transitioned",
		slog.String("from", string(evt.From)),
		slog.String("to", string(evt.To)),
		slog.String("actor", evt.ActorID),
		slog.Int64("version", evt.Version),
	)
	if j.Hook == nil {
		return nil
	}
	if err := j.Hook(ctx, evt); err != nil {
		logger.Error("transition hook", slog.Any("error", err))
		return err
	}
	return nil
}

func metricsOrDefault(m *jobmetrics.Metrics) *jobmetrics.Metrics {
	if m != nil {
		return m
	}
	return defaultJobMetrics
}

func jobLogger(logger *slog.Logger, job string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String("job", job))
}
