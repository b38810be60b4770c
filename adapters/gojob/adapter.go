// Package gojob runs the dispatcher's drain loop off a go-job queue. A
// scheduler or API handler enqueues a process message; a drain worker
// dequeues it, runs Process, and acks or nacks with bounded retries.
package gojob

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

const (
	// JobIDProcessEvents triggers one drain run of the event queue.
	JobIDProcessEvents = "dsync.events.process"
)

// Processor is the slice of the dispatcher the drain worker needs.
type Processor interface {
	Process(ctx context.Context) error
}

// NewProcessMessage builds the drain-trigger message. The idempotency key
// collapses duplicate triggers for the same lock key while one is in flight.
func NewProcessMessage(lockKey string) *job.ExecutionMessage {
	lockKey = strings.TrimSpace(lockKey)
	msg := &job.ExecutionMessage{
		JobID:       JobIDProcessEvents,
		Parameters:  map[string]any{},
		DedupPolicy: job.DeduplicationPolicy("drop"),
	}
	if lockKey != "" {
		msg.Parameters["lock_key"] = lockKey
		msg.IdempotencyKey = JobIDProcessEvents + "::" + lockKey
	}
	return msg
}

// ProcessTrigger enqueues drain runs through any go-job enqueuer.
type ProcessTrigger struct {
	enqueuer queue.Enqueuer
	lockKey  string
}

func NewProcessTrigger(enqueuer queue.Enqueuer, lockKey string) *ProcessTrigger {
	return &ProcessTrigger{enqueuer: enqueuer, lockKey: strings.TrimSpace(lockKey)}
}

func (t *ProcessTrigger) Trigger(ctx context.Context) error {
	if t == nil || t.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	return t.enqueuer.Enqueue(ctx, NewProcessMessage(t.lockKey))
}

// RetryPolicy defines queue retry bounds to avoid unbounded retry loops
// when a drain run itself keeps failing. The event-level retry schedule
// lives in the store; this only governs the trigger message.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// NormalizeAttempt enforces bounded retry behavior for a nack operation.
func (p RetryPolicy) NormalizeAttempt(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		if p.DeadLetterOnMax || out.DeadLetter {
			out.DeadLetter = true
		}
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

// DrainWorker consumes drain-trigger messages and runs the processor.
type DrainWorker struct {
	processor Processor
	dequeuer  queue.Dequeuer
	policy    RetryPolicy
	logger    glog.Logger
}

func NewDrainWorker(processor Processor, dequeuer queue.Dequeuer, policy RetryPolicy, logger glog.Logger) (*DrainWorker, error) {
	if processor == nil {
		return nil, fmt.Errorf("gojob: processor is required")
	}
	if dequeuer == nil {
		return nil, fmt.Errorf("gojob: dequeuer is required")
	}
	_, logger = glog.Resolve("dsync", nil, logger)
	return &DrainWorker{
		processor: processor,
		dequeuer:  dequeuer,
		policy:    policy,
		logger:    logger,
	}, nil
}

// Run consumes deliveries until the context is canceled.
func (w *DrainWorker) Run(ctx context.Context) error {
	if w == nil || w.dequeuer == nil {
		return fmt.Errorf("gojob: drain worker is not configured")
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.RunOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			w.logger.Error("drain delivery failed", "error", err)
		}
	}
}

// RunOnce handles exactly one delivery: dequeue, process, ack or nack.
func (w *DrainWorker) RunOnce(ctx context.Context) error {
	if w == nil || w.dequeuer == nil {
		return fmt.Errorf("gojob: drain worker is not configured")
	}
	delivery, err := w.dequeuer.Dequeue(ctx)
	if err != nil {
		return err
	}
	if delivery == nil {
		return nil
	}

	msg := delivery.Message()
	if msg == nil || msg.JobID != JobIDProcessEvents {
		jobID := ""
		if msg != nil {
			jobID = msg.JobID
		}
		nackErr := delivery.Nack(ctx, w.policy.NormalizeAttempt(queue.NackOptions{
			Requeue: false,
			Reason:  "unknown job id " + jobID,
		}, w.policy.MaxAttempts))
		if nackErr != nil {
			return nackErr
		}
		return fmt.Errorf("gojob: unexpected job id %q", jobID)
	}

	if processErr := w.processor.Process(ctx); processErr != nil {
		attempt := deliveryAttempt(msg)
		nackErr := delivery.Nack(ctx, w.policy.NormalizeAttempt(queue.NackOptions{
			Requeue: true,
			Reason:  processErr.Error(),
		}, attempt))
		if nackErr != nil {
			return errors.Join(processErr, nackErr)
		}
		return processErr
	}
	return delivery.Ack(ctx)
}

func deliveryAttempt(msg *job.ExecutionMessage) int {
	if msg == nil {
		return 0
	}
	if raw, ok := msg.Parameters["attempt"]; ok {
		switch value := raw.(type) {
		case int:
			return value
		case float64:
			return int(value)
		}
	}
	return 0
}

// LoggingHook reports worker life cycle events through glog.
type LoggingHook struct {
	logger glog.Logger
}

func NewLoggingHook(logger glog.Logger) *LoggingHook {
	_, logger = glog.Resolve("dsync", nil, logger)
	return &LoggingHook{logger: logger}
}

func (h *LoggingHook) OnStart(ctx context.Context, event worker.Event) {
	if h == nil || h.logger == nil {
		return
	}
	h.logger.Debug("drain run started", "job_id", eventJobID(event))
}

func (h *LoggingHook) OnSuccess(ctx context.Context, event worker.Event) {
	if h == nil || h.logger == nil {
		return
	}
	h.logger.Info("drain run succeeded",
		"job_id", eventJobID(event),
		"duration_ms", event.Duration.Milliseconds(),
	)
}

func (h *LoggingHook) OnFailure(ctx context.Context, event worker.Event) {
	if h == nil || h.logger == nil {
		return
	}
	h.logger.Error("drain run failed",
		"job_id", eventJobID(event),
		"attempt", event.Attempt,
		"error", event.Err,
	)
}

func (h *LoggingHook) OnRetry(ctx context.Context, event worker.Event) {
	if h == nil || h.logger == nil {
		return
	}
	h.logger.Warn("drain run retrying",
		"job_id", eventJobID(event),
		"attempt", event.Attempt,
		"delay_ms", event.Delay.Milliseconds(),
	)
}

func eventJobID(event worker.Event) string {
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	if message == nil {
		return ""
	}
	return message.JobID
}

var _ worker.Hook = (*LoggingHook)(nil)
