package gojob

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-smshook/core"
)

// DedupPolicyDrop discards a second enqueue with the same idempotency key.
const DedupPolicyDrop = "drop"

// Parameter keys of a JobIDDeliverMessage job.
const (
	ParamMessageID         = "message_id"
	ParamSender            = "msisdn"
	ParamRecipient         = "to"
	ParamKind              = "type"
	ParamKeyword           = "keyword"
	ParamText              = "text"
	ParamData              = "data"
	ParamUDH               = "udh"
	ParamProviderTimestamp = "message_timestamp"
	ParamReceivedTimestamp = "timestamp"
	ParamConcatRef         = "concat_ref"
	ParamConcatParts       = "concat_parts"
	ParamConcatMessageIDs  = "concat_message_ids"
)

// EncodeMessage flattens a logical message into job parameters that survive a
// JSON round trip through the queue backend.
func EncodeMessage(msg core.InboundMessage) map[string]any {
	params := map[string]any{
		ParamMessageID:         msg.MessageID,
		ParamSender:            msg.Sender,
		ParamRecipient:         msg.Recipient,
		ParamKind:              string(msg.Kind),
		ParamProviderTimestamp: formatTime(msg.ProviderTimestamp),
		ParamReceivedTimestamp: formatTime(msg.ReceivedTimestamp),
	}
	if msg.Keyword != "" {
		params[ParamKeyword] = msg.Keyword
	}
	switch content := msg.Content.(type) {
	case core.TextContent:
		params[ParamText] = content.Text
	case core.BinaryContent:
		params[ParamData] = hex.EncodeToString(content.Data())
		if udh := content.UDH(); len(udh) > 0 {
			params[ParamUDH] = hex.EncodeToString(udh)
		}
	}
	if msg.Reassembly != nil {
		params[ParamConcatRef] = msg.Reassembly.Ref
		params[ParamConcatParts] = msg.Reassembly.Parts
		params[ParamConcatMessageIDs] = append([]string(nil), msg.Reassembly.MessageIDs...)
	}
	return params
}

func DecodeMessage(params map[string]any) (core.InboundMessage, error) {
	msg := core.InboundMessage{
		MessageID: stringParam(params, ParamMessageID),
		Sender:    stringParam(params, ParamSender),
		Recipient: stringParam(params, ParamRecipient),
		Keyword:   stringParam(params, ParamKeyword),
	}
	kind, err := core.ParseContentKind(stringParam(params, ParamKind))
	if err != nil {
		return core.InboundMessage{}, err
	}
	msg.Kind = kind

	if msg.ProviderTimestamp, err = parseTime(params, ParamProviderTimestamp); err != nil {
		return core.InboundMessage{}, err
	}
	if msg.ReceivedTimestamp, err = parseTime(params, ParamReceivedTimestamp); err != nil {
		return core.InboundMessage{}, err
	}

	if kind.Textual() {
		text, _ := params[ParamText].(string)
		msg.Content = core.TextContent{Text: text}
	} else {
		data, err := hex.DecodeString(stringParam(params, ParamData))
		if err != nil {
			return core.InboundMessage{}, fmt.Errorf("gojob: decode %s: %w", ParamData, err)
		}
		udh, err := hex.DecodeString(stringParam(params, ParamUDH))
		if err != nil {
			return core.InboundMessage{}, fmt.Errorf("gojob: decode %s: %w", ParamUDH, err)
		}
		msg.Content = core.NewBinaryContent(data, udh)
	}

	if ref := stringParam(params, ParamConcatRef); ref != "" {
		parts, err := intParam(params, ParamConcatParts)
		if err != nil {
			return core.InboundMessage{}, err
		}
		msg.Reassembly = &core.Reassembly{
			Ref:        ref,
			Parts:      parts,
			MessageIDs: stringsParam(params, ParamConcatMessageIDs),
		}
	}
	if err := msg.Validate(); err != nil {
		return core.InboundMessage{}, err
	}
	return msg, nil
}

// EnqueueHandler is a core.MessageHandler that defers delivery to a worker.
// The webhook answers as soon as the job is queued; the message id is the
// idempotency key so a retried enqueue does not deliver twice.
type EnqueueHandler struct {
	enqueuer core.JobEnqueuer
	Observer core.Observer
}

func NewEnqueueHandler(enqueuer core.JobEnqueuer) *EnqueueHandler {
	return &EnqueueHandler{enqueuer: enqueuer}
}

func (h *EnqueueHandler) HandleMessage(ctx context.Context, msg core.InboundMessage) error {
	if h == nil || h.enqueuer == nil {
		return core.NewError("gojob: enqueuer is not configured", goerrors.CategoryInternal, http.StatusInternalServerError, core.SMSErrorInternal, nil)
	}
	if msg.IsFragment() {
		return core.BadInputError("gojob: fragments must be reassembled before delivery", http.StatusBadRequest, map[string]any{
			"message_id": msg.MessageID,
		})
	}
	receipt, err := h.enqueuer.Enqueue(ctx, &core.JobExecutionMessage{
		JobID:          JobIDDeliverMessage,
		ScriptPath:     JobIDDeliverMessage,
		Parameters:     EncodeMessage(msg),
		IdempotencyKey: strings.TrimSpace(msg.MessageID),
		DedupPolicy:    DedupPolicyDrop,
	})
	if err != nil {
		return core.WrapError(err, goerrors.CategoryExternal, "gojob: enqueue message delivery failed", http.StatusInternalServerError, core.SMSErrorInternal, map[string]any{
			"message_id": msg.MessageID,
		})
	}
	h.Observer.Log(ctx, "debug", "message delivery queued", map[string]any{
		"message_id":  msg.MessageID,
		"dispatch_id": receipt.DispatchID,
		"enqueued_at": formatTime(receipt.EnqueuedAt),
	})
	return nil
}

// DeliveryWorker runs queued JobIDDeliverMessage jobs against the application
// handler. Policy decides every nack: undecodable jobs and rejected content
// are dead-lettered, other handler failures are retried with backoff.
type DeliveryWorker struct {
	Handler core.MessageHandler
	Policy  RetryPolicy
	Hook    core.JobWorkerHook
}

func NewDeliveryWorker(handler core.MessageHandler, policy RetryPolicy) *DeliveryWorker {
	return &DeliveryWorker{Handler: handler, Policy: policy}
}

func (w *DeliveryWorker) Process(ctx context.Context, delivery core.JobDelivery, attempt int) error {
	if w == nil || w.Handler == nil {
		return fmt.Errorf("gojob: delivery worker handler is not configured")
	}
	if delivery == nil {
		return fmt.Errorf("gojob: delivery is required")
	}
	jobMsg := delivery.Message()
	event := core.JobWorkerEvent{Message: jobMsg, Attempt: attempt, StartedAt: time.Now().UTC()}

	if jobMsg == nil || jobMsg.JobID != JobIDDeliverMessage {
		return w.reject(ctx, delivery, event, Undeliverable(fmt.Errorf("gojob: unsupported job %q", jobIDOf(jobMsg))))
	}
	msg, err := DecodeMessage(jobMsg.Parameters)
	if err != nil {
		return w.reject(ctx, delivery, event, Undeliverable(err))
	}

	w.report(ctx, "start", event)
	if err := w.Handler.HandleMessage(ctx, msg); err != nil {
		return w.reject(ctx, delivery, event, err)
	}

	event.Duration = time.Since(event.StartedAt)
	if err := delivery.Ack(ctx); err != nil {
		return err
	}
	w.report(ctx, "success", event)
	return nil
}

// reject nacks the job as Policy decides and returns cause to the caller.
func (w *DeliveryWorker) reject(ctx context.Context, delivery core.JobDelivery, event core.JobWorkerEvent, cause error) error {
	opts := w.Policy.NackFor(event.Attempt, cause)
	event.Err = cause
	event.Delay = opts.Delay
	event.Duration = time.Since(event.StartedAt)
	if opts.Disposition == core.JobNackRetry {
		w.report(ctx, "retry", event)
	} else {
		w.report(ctx, "failure", event)
	}
	if err := delivery.Nack(ctx, opts); err != nil {
		return err
	}
	return cause
}

func (w *DeliveryWorker) report(ctx context.Context, stage string, event core.JobWorkerEvent) {
	if w.Hook == nil {
		return
	}
	switch stage {
	case "start":
		w.Hook.OnStart(ctx, event)
	case "success":
		w.Hook.OnSuccess(ctx, event)
	case "retry":
		w.Hook.OnRetry(ctx, event)
	default:
		w.Hook.OnFailure(ctx, event)
	}
}

// ObserverHook reports worker events through the core observer.
type ObserverHook struct {
	Observer core.Observer
}

func (h ObserverHook) OnStart(ctx context.Context, event core.JobWorkerEvent) {
	h.Observer.Log(ctx, "debug", "delivery job started", eventFields(event))
}

func (h ObserverHook) OnSuccess(ctx context.Context, event core.JobWorkerEvent) {
	h.Observer.Observe(ctx, event.StartedAt, "gojob.deliver", "delivered", nil, eventFields(event))
}

func (h ObserverHook) OnFailure(ctx context.Context, event core.JobWorkerEvent) {
	h.Observer.Observe(ctx, event.StartedAt, "gojob.deliver", "failed", event.Err, eventFields(event))
}

func (h ObserverHook) OnRetry(ctx context.Context, event core.JobWorkerEvent) {
	fields := eventFields(event)
	fields["delay"] = event.Delay.String()
	h.Observer.Observe(ctx, event.StartedAt, "gojob.deliver", "retry", event.Err, fields)
}

func eventFields(event core.JobWorkerEvent) map[string]any {
	fields := map[string]any{"attempt": event.Attempt}
	if event.Message != nil {
		fields["job_id"] = event.Message.JobID
		fields["message_id"] = event.Message.IdempotencyKey
	}
	return fields
}

func jobIDOf(msg *core.JobExecutionMessage) string {
	if msg == nil {
		return ""
	}
	return msg.JobID
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTime(params map[string]any, key string) (time.Time, error) {
	raw := stringParam(params, key)
	if raw == "" {
		return time.Time{}, nil
	}
	value, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("gojob: decode %s: %w", key, err)
	}
	return value.UTC(), nil
}

func stringParam(params map[string]any, key string) string {
	switch value := params[key].(type) {
	case string:
		return strings.TrimSpace(value)
	case fmt.Stringer:
		return strings.TrimSpace(value.String())
	default:
		return ""
	}
}

func intParam(params map[string]any, key string) (int, error) {
	switch value := params[key].(type) {
	case int:
		return value, nil
	case int64:
		return int(value), nil
	case float64:
		return int(value), nil
	case json.Number:
		parsed, err := value.Int64()
		return int(parsed), err
	case string:
		return strconv.Atoi(strings.TrimSpace(value))
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("gojob: unsupported %s type %T", key, value)
	}
}

func stringsParam(params map[string]any, key string) []string {
	switch value := params[key].(type) {
	case []string:
		return append([]string(nil), value...)
	case []any:
		out := make([]string, 0, len(value))
		for _, item := range value {
			if text, ok := item.(string); ok {
				out = append(out, text)
			}
		}
		return out
	default:
		return nil
	}
}

var (
	_ core.MessageHandler = (*EnqueueHandler)(nil)
	_ core.JobWorkerHook  = ObserverHook{}
)
