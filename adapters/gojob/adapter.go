package gojob

import (
	"context"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-smshook/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

const (
	JobIDDeliverMessage = "smshook.message.deliver"
	JobIDPurge          = "smshook.parts.purge"
)

// The sender already got a 200 when a delivery job runs, so a failing
// application is retried for several minutes before the job is dead-lettered.
const (
	DefaultDeliveryAttempts   = 5
	DefaultDeliveryBackoff    = 5 * time.Second
	DefaultDeliveryMaxBackoff = 5 * time.Minute
)

// TerminalUndeliverable marks jobs whose message can never be delivered: an
// unknown job id, parameters that do not decode, or a handler that rejected
// the message content.
const TerminalUndeliverable job.TerminalErrorCode = "smshook_undeliverable"

// RetryPolicy decides what happens to a delivery job whose handler failed.
// It implements worker.RetryPolicy, so a go-job worker driving the queue
// applies the same rules as DeliveryWorker.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     worker.BackoffConfig
}

// DefaultRetryPolicy retries with jittered exponential backoff, from
// DefaultDeliveryBackoff up to DefaultDeliveryMaxBackoff, for at most
// DefaultDeliveryAttempts attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultDeliveryAttempts,
		Backoff: worker.BackoffConfig{
			Strategy:    worker.BackoffExponential,
			Interval:    DefaultDeliveryBackoff,
			MaxInterval: DefaultDeliveryMaxBackoff,
			Jitter:      true,
		},
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	defaults := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaults.MaxAttempts
	}
	if p.Backoff.Strategy == "" {
		p.Backoff.Strategy = defaults.Backoff.Strategy
		p.Backoff.Jitter = defaults.Backoff.Jitter
	}
	if p.Backoff.Interval <= 0 {
		p.Backoff.Interval = defaults.Backoff.Interval
	}
	if p.Backoff.MaxInterval <= 0 {
		p.Backoff.MaxInterval = defaults.Backoff.MaxInterval
	}
	if p.Backoff.MaxInterval < p.Backoff.Interval {
		p.Backoff.MaxInterval = p.Backoff.Interval
	}
	return p
}

// Decide dead-letters undeliverable jobs at once, retries other failures with
// backoff and dead-letters them once attempt reaches MaxAttempts.
func (p RetryPolicy) Decide(attempt int, err error) queue.NackOptions {
	if undeliverable(err) {
		err = job.NewTerminalError(TerminalUndeliverable, err.Error(), err)
	}
	p = p.normalized()
	opts := worker.DefaultRetryPolicy{MaxAttempts: p.MaxAttempts, Backoff: p.Backoff}.Decide(attempt, err)
	opts.Reason = strings.TrimSpace(opts.Reason)
	return opts
}

// NackFor is Decide expressed as core nack options.
func (p RetryPolicy) NackFor(attempt int, err error) core.JobNackOptions {
	return FromNackOptions(p.Decide(attempt, err))
}

// undeliverable reports errors that a retry cannot fix. Bad input and
// validation errors mean the application refused the message itself.
func undeliverable(err error) bool {
	if err == nil {
		return false
	}
	var terminal job.NonRetryableError
	if goerrors.As(err, &terminal) {
		return false
	}
	return goerrors.HasCategory(err, goerrors.CategoryBadInput) ||
		goerrors.HasCategory(err, goerrors.CategoryValidation)
}

// Undeliverable wraps err so every RetryPolicy dead-letters it.
func Undeliverable(err error) error {
	if err == nil {
		return nil
	}
	return job.NewTerminalError(TerminalUndeliverable, err.Error(), err)
}

func ToExecutionMessage(msg *core.JobExecutionMessage) *job.ExecutionMessage {
	if msg == nil {
		return nil
	}
	return &job.ExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     copyAnyMap(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    job.DeduplicationPolicy(strings.TrimSpace(msg.DedupPolicy)),
	}
}

func FromExecutionMessage(msg *job.ExecutionMessage) *core.JobExecutionMessage {
	if msg == nil {
		return nil
	}
	return &core.JobExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     copyAnyMap(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    strings.TrimSpace(string(msg.DedupPolicy)),
	}
}

// ToNackOptions maps core nack options onto go-job. An empty disposition
// means retry; a negative delay is dropped.
func ToNackOptions(opts core.JobNackOptions) queue.NackOptions {
	out := queue.NackOptions{
		Disposition: queue.NackDispositionRetry,
		Delay:       opts.Delay,
		Reason:      strings.TrimSpace(opts.Reason),
	}
	switch opts.Disposition {
	case core.JobNackDeadLetter:
		out.Disposition = queue.NackDispositionDeadLetter
	case core.JobNackFailed:
		out.Disposition = queue.NackDispositionFailed
	case core.JobNackCanceled:
		out.Disposition = queue.NackDispositionCanceled
	}
	if out.Delay < 0 || out.Disposition != queue.NackDispositionRetry {
		out.Delay = 0
	}
	return out
}

func FromNackOptions(opts queue.NackOptions) core.JobNackOptions {
	out := core.JobNackOptions{
		Disposition: core.JobNackRetry,
		Delay:       opts.Delay,
		Reason:      opts.Reason,
	}
	switch opts.Disposition {
	case queue.NackDispositionDeadLetter:
		out.Disposition = core.JobNackDeadLetter
	case queue.NackDispositionFailed:
		out.Disposition = core.JobNackFailed
	case queue.NackDispositionCanceled:
		out.Disposition = core.JobNackCanceled
	}
	return out
}

type EnqueuerAdapter struct {
	enqueuer queue.Enqueuer
}

func NewEnqueuerAdapter(enqueuer queue.Enqueuer) *EnqueuerAdapter {
	return &EnqueuerAdapter{enqueuer: enqueuer}
}

// Enqueue validates the envelope against go-job before handing it over.
func (a *EnqueuerAdapter) Enqueue(ctx context.Context, msg *core.JobExecutionMessage) (core.JobEnqueueReceipt, error) {
	if a == nil || a.enqueuer == nil {
		return core.JobEnqueueReceipt{}, fmt.Errorf("gojob: enqueuer is not configured")
	}
	if msg == nil {
		return core.JobEnqueueReceipt{}, fmt.Errorf("gojob: execution message is required")
	}
	execMsg := ToExecutionMessage(msg)
	if err := queue.ValidateRequiredMessage(execMsg); err != nil {
		return core.JobEnqueueReceipt{}, err
	}
	receipt, err := a.enqueuer.Enqueue(ctx, execMsg)
	if err != nil {
		return core.JobEnqueueReceipt{}, err
	}
	return core.JobEnqueueReceipt{DispatchID: receipt.DispatchID, EnqueuedAt: receipt.EnqueuedAt}, nil
}

type DeliveryAdapter struct {
	delivery queue.Delivery
}

func NewDeliveryAdapter(delivery queue.Delivery) *DeliveryAdapter {
	return &DeliveryAdapter{delivery: delivery}
}

func (d *DeliveryAdapter) Message() *core.JobExecutionMessage {
	if d == nil || d.delivery == nil {
		return nil
	}
	return FromExecutionMessage(d.delivery.Message())
}

func (d *DeliveryAdapter) Ack(ctx context.Context) error {
	if d == nil || d.delivery == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	return d.delivery.Ack(ctx)
}

func (d *DeliveryAdapter) Nack(ctx context.Context, opts core.JobNackOptions) error {
	if d == nil || d.delivery == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	return d.delivery.Nack(ctx, ToNackOptions(opts))
}

type DequeuerAdapter struct {
	dequeuer queue.Dequeuer
}

func NewDequeuerAdapter(dequeuer queue.Dequeuer) *DequeuerAdapter {
	return &DequeuerAdapter{dequeuer: dequeuer}
}

func (a *DequeuerAdapter) Dequeue(ctx context.Context) (core.JobDelivery, error) {
	if a == nil || a.dequeuer == nil {
		return nil, fmt.Errorf("gojob: dequeuer is not configured")
	}
	delivery, err := a.dequeuer.Dequeue(ctx)
	if err != nil {
		return nil, err
	}
	return NewDeliveryAdapter(delivery), nil
}

// WorkerHookAdapter lets a go-job worker report delivery events to a core
// hook such as ObserverHook.
type WorkerHookAdapter struct {
	hook core.JobWorkerHook
}

func NewWorkerHookAdapter(hook core.JobWorkerHook) *WorkerHookAdapter {
	return &WorkerHookAdapter{hook: hook}
}

func (a *WorkerHookAdapter) OnStart(ctx context.Context, event worker.Event) {
	a.forward(ctx, event, core.JobWorkerHook.OnStart)
}

func (a *WorkerHookAdapter) OnSuccess(ctx context.Context, event worker.Event) {
	a.forward(ctx, event, core.JobWorkerHook.OnSuccess)
}

func (a *WorkerHookAdapter) OnFailure(ctx context.Context, event worker.Event) {
	a.forward(ctx, event, core.JobWorkerHook.OnFailure)
}

func (a *WorkerHookAdapter) OnRetry(ctx context.Context, event worker.Event) {
	a.forward(ctx, event, core.JobWorkerHook.OnRetry)
}

func (a *WorkerHookAdapter) forward(
	ctx context.Context,
	event worker.Event,
	fn func(core.JobWorkerHook, context.Context, core.JobWorkerEvent),
) {
	if a == nil || a.hook == nil {
		return
	}
	fn(a.hook, ctx, workerEvent(event))
}

func workerEvent(event worker.Event) core.JobWorkerEvent {
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	return core.JobWorkerEvent{
		Message:   FromExecutionMessage(message),
		Attempt:   event.Attempt,
		Delay:     event.Delay,
		Err:       event.Err,
		StartedAt: event.StartedAt,
		Duration:  event.Duration,
	}
}

func copyAnyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

var (
	_ core.JobEnqueuer   = (*EnqueuerAdapter)(nil)
	_ core.JobDelivery   = (*DeliveryAdapter)(nil)
	_ core.JobDequeuer   = (*DequeuerAdapter)(nil)
	_ worker.Hook        = (*WorkerHookAdapter)(nil)
	_ worker.RetryPolicy = RetryPolicy{}
)
