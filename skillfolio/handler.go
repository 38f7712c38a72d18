package skillfolio

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/gigboard/dispatch/bus"
	"github.com/gigboard/dispatch/errors"
	"github.com/gigboard/dispatch/queue"
)

// Handler executes skillfolio generation jobs. A cached artifact short-cuts
// the run: progress jumps straight to 75 before settling at 100; a fresh
// generation reports 50 after the compute step, persists the artifact,
// waits out the settle delay, then reports 100.
type Handler struct {
	progress  ProgressUpdater
	artifacts *ArtifactStore
	generator Generator
	bus       *bus.Bus
	settle    time.Duration
	logger    *zap.SugaredLogger
}

// ProgressUpdater persists milestone values for a running job. *queue.Queue
// implements it.
type ProgressUpdater interface {
	UpdateProgress(id string, progress int) error
}

// NewHandler creates the skillfolio job handler.
func NewHandler(progress ProgressUpdater, artifacts *ArtifactStore, gen Generator, b *bus.Bus, settle time.Duration, logger *zap.SugaredLogger) *Handler {
	return &Handler{
		progress:  progress,
		artifacts: artifacts,
		generator: gen,
		bus:       b,
		settle:    settle,
		logger:    logger.Named("skillfolio"),
	}
}

// Name implements queue.JobHandler.
func (h *Handler) Name() string { return JobType }

// Execute implements queue.JobHandler. Lifecycle events are published in
// pairs, the per-type variant first, then the generic one.
func (h *Handler) Execute(ctx context.Context, job *queue.Job) error {
	var payload Payload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		err = errors.Wrap(err, "invalid skillfolio payload")
		h.publishFailure(job, bus.JobEvent{JobID: job.ID, Type: JobType}, err)
		return err
	}

	evt := bus.JobEvent{
		JobID:     job.ID,
		LogicalID: payload.LogicalID(),
		Type:      JobType,
		UserID:    int64(payload.UserID),
	}

	h.bus.Publish(bus.TypedEvent(JobType, "started"), evt)
	h.bus.Publish(bus.EventJobStarted, evt)

	artifact, err := h.run(ctx, job, payload)
	if err != nil {
		h.publishFailure(job, evt, err)
		return err
	}

	result, err := json.Marshal(artifact)
	if err != nil {
		err = errors.Wrap(err, "failed to encode artifact result")
		h.publishFailure(job, evt, err)
		return err
	}

	done := evt
	done.Progress = 100
	h.bus.Publish(bus.TypedEvent(JobType, "completed"), bus.JobResultEvent{JobEvent: done, Result: result})
	h.bus.Publish(bus.EventJobCompleted, bus.JobResultEvent{JobEvent: done, Result: result})

	h.logger.Infow("Skillfolio generated",
		"job_id", job.ID,
		"user_id", payload.UserID,
		"artifact_id", artifact.ID,
	)
	return nil
}

func (h *Handler) run(ctx context.Context, job *queue.Job, payload Payload) (*Artifact, error) {
	userID := int64(payload.UserID)

	cached, err := h.artifacts.Latest(userID)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		if err := h.report(job, 75); err != nil {
			return nil, err
		}
		if err := h.report(job, 100); err != nil {
			return nil, err
		}
		return cached, nil
	}

	artifact, err := h.generator.Generate(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "skillfolio generation failed")
	}
	if err := h.report(job, 50); err != nil {
		return nil, err
	}

	if err := h.artifacts.Save(artifact); err != nil {
		return nil, err
	}

	if h.settle > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(h.settle):
		}
	}

	if err := h.report(job, 100); err != nil {
		return nil, err
	}
	return artifact, nil
}

func (h *Handler) report(job *queue.Job, value int) error {
	job.Progress = value
	return h.progress.UpdateProgress(job.ID, value)
}

func (h *Handler) publishFailure(job *queue.Job, evt bus.JobEvent, err error) {
	message := err.Error()
	if message == "" {
		message = "Unknown error"
	}

	evt.Progress = job.Progress
	h.bus.Publish(bus.TypedEvent(JobType, "failed"), bus.JobFailureEvent{JobEvent: evt, Message: message})
	h.bus.Publish(bus.EventJobFailed, bus.JobFailureEvent{JobEvent: evt, Message: message})

	h.logger.Errorw("Skillfolio generation failed",
		"job_id", job.ID,
		"user_id", evt.UserID,
		"error", err,
	)
}
