package reassembly

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-smshook/core"
)

type Outcome string

const (
	// OutcomeComplete carries a message ready for delivery: either a
	// non-fragment message or the merged result of a finished group.
	OutcomeComplete Outcome = "complete"
	// OutcomePartial means the fragment was stored and the group is still
	// waiting for parts.
	OutcomePartial Outcome = "partial"
	// OutcomeDuplicate means the fragment was already stored.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeAlreadyDelivered means the group this fragment belongs to was
	// completed by another arrival.
	OutcomeAlreadyDelivered Outcome = "already_delivered"
)

type Result struct {
	Outcome Outcome
	// Message is set only for OutcomeComplete.
	Message core.InboundMessage
	// Received is the number of stored parts observed for the group.
	Received int
}

func (r Result) Deliverable() bool {
	return r.Outcome == OutcomeComplete
}

type Engine struct {
	Store        core.PartStore
	Ledger       core.DeliveryLedger
	Observer     core.Observer
	DeliveredTTL time.Duration
}

func NewEngine(store core.PartStore, ledger core.DeliveryLedger, observer core.Observer) *Engine {
	return &Engine{
		Store:    store,
		Ledger:   ledger,
		Observer: observer,
	}
}

// Process runs one inbound message through the reassembly state machine.
// Errors are storage or input failures; duplicates and replays are reported
// through the Result outcome instead.
func (e *Engine) Process(ctx context.Context, msg core.InboundMessage) (result Result, err error) {
	startedAt := time.Now()
	fields := map[string]any{"message_id": msg.MessageID}
	defer func() {
		if e != nil {
			e.Observer.Observe(ctx, startedAt, "reassembly.process", string(result.Outcome), err, fields)
		}
	}()

	if e == nil || e.Store == nil {
		return Result{}, reassemblyInternal("reassembly: part store is not configured", nil)
	}
	if !msg.IsFragment() {
		return Result{Outcome: OutcomeComplete, Message: msg.Clone()}, nil
	}

	part, err := core.PartFromMessage(msg)
	if err != nil {
		return Result{}, reassemblyBadInput(err, "reassembly: invalid fragment", fields)
	}
	fields["fragment_ref"] = part.Ref
	fields["fragment_index"] = part.Index
	fields["fragment_total"] = part.Total

	if e.Ledger != nil {
		delivered, ledgerErr := e.Ledger.Delivered(ctx, part.MessageID)
		if ledgerErr != nil {
			return Result{}, reassemblyStorage(ledgerErr, "reassembly: delivery ledger lookup failed", fields)
		}
		if delivered {
			return Result{Outcome: OutcomeAlreadyDelivered}, nil
		}
	}

	if err := e.Store.Put(ctx, part); err != nil {
		if errors.Is(err, core.ErrDuplicatePart) {
			e.Observer.Log(ctx, "info", "fragment already stored", fields)
			return Result{Outcome: OutcomeDuplicate}, nil
		}
		return Result{}, reassemblyStorage(err, "reassembly: store fragment failed", fields)
	}

	count, err := e.Store.CountFor(ctx, part.Ref)
	if err != nil {
		return Result{}, reassemblyStorage(err, "reassembly: count fragments failed", fields)
	}
	fields["received"] = count
	switch {
	case count < part.Total:
		return Result{Outcome: OutcomePartial, Received: count}, nil
	case count > part.Total:
		e.Observer.Log(ctx, "warn", "fragment group holds more parts than its total", fields)
		return Result{Outcome: OutcomeAlreadyDelivered, Received: count}, nil
	}

	parts, err := e.Store.OrderedPartsFor(ctx, part.Ref)
	if err != nil {
		return Result{}, reassemblyStorage(err, "reassembly: load fragments failed", fields)
	}
	if err := checkComplete(parts, part.Total); err != nil {
		fields["reason"] = err.Error()
		e.Observer.Log(ctx, "warn", "fragment group is inconsistent", fields)
		e.Observer.Counter(ctx, "smshook.reassembly.inconsistent_group", 1, map[string]string{"fragment_total": fmt.Sprint(part.Total)})
		return Result{Outcome: OutcomePartial, Received: count}, nil
	}

	// Replays that slipped past the ledger check while the previous group was
	// being purged can rebuild a full group; drop it instead of delivering.
	replayed, err := e.anyDelivered(ctx, parts)
	if err != nil {
		return Result{}, reassemblyStorage(err, "reassembly: delivery ledger lookup failed", fields)
	}
	if replayed {
		if _, err := e.Store.DeleteGroup(ctx, part.Ref); err != nil {
			return Result{}, reassemblyStorage(err, "reassembly: purge fragment group failed", fields)
		}
		return Result{Outcome: OutcomeAlreadyDelivered, Received: count}, nil
	}

	merged := merge(msg, parts)

	removed, err := e.Store.DeleteGroup(ctx, part.Ref)
	if err != nil {
		return Result{}, reassemblyStorage(err, "reassembly: purge fragment group failed", fields)
	}
	if removed != part.Total {
		// Another arrival completed and purged the group first.
		fields["removed"] = removed
		return Result{Outcome: OutcomeAlreadyDelivered, Received: count}, nil
	}

	if e.Ledger != nil {
		if ledgerErr := e.Ledger.MarkDelivered(ctx, part.Ref, merged.Reassembly.MessageIDs, e.DeliveredTTL); ledgerErr != nil {
			fields["ledger_error"] = ledgerErr.Error()
			e.Observer.Log(ctx, "error", "record delivered fragments failed", fields)
		}
	}
	return Result{Outcome: OutcomeComplete, Message: merged, Received: count}, nil
}

func (e *Engine) anyDelivered(ctx context.Context, parts []core.StoredPart) (bool, error) {
	if e.Ledger == nil {
		return false, nil
	}
	for _, part := range parts {
		if strings.TrimSpace(part.MessageID) == "" {
			continue
		}
		delivered, err := e.Ledger.Delivered(ctx, part.MessageID)
		if err != nil {
			return false, err
		}
		if delivered {
			return true, nil
		}
	}
	return false, nil
}

// checkComplete verifies that parts hold exactly the indices 1..total and
// that every part agrees on the total.
func checkComplete(parts []core.StoredPart, total int) error {
	if len(parts) != total {
		return fmt.Errorf("expected %d parts, found %d", total, len(parts))
	}
	for position, part := range parts {
		if part.Index != position+1 {
			return fmt.Errorf("expected part %d at position %d, found %d", position+1, position, part.Index)
		}
		if part.Total != total {
			return fmt.Errorf("part %d declares total %d, expected %d", part.Index, part.Total, total)
		}
	}
	return nil
}

// merge builds the delivered message from the triggering fragment and the
// parts ordered by index.
func merge(trigger core.InboundMessage, parts []core.StoredPart) core.InboundMessage {
	merged := trigger.Clone()
	merged.Fragment = nil

	ids := make([]string, 0, len(parts))
	for _, part := range parts {
		ids = append(ids, part.MessageID)
	}
	merged.Reassembly = &core.Reassembly{
		Ref:        parts[0].Ref,
		Parts:      len(parts),
		MessageIDs: ids,
	}

	if trigger.Kind == core.KindBinary {
		var data bytes.Buffer
		for _, part := range parts {
			data.Write(part.Data)
		}
		merged.Content = core.NewBinaryContent(data.Bytes(), nil)
		return merged
	}

	var text strings.Builder
	for _, part := range parts {
		text.WriteString(part.Text)
	}
	merged.Content = core.TextContent{Text: text.String()}
	return merged
}
