package command

import (
	"context"
	"errors"
	"testing"
	"time"

	gocmd "github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-smshook/core"
	"github.com/goliatone/go-smshook/reassembly"
)

func TestDeliverMessageCommand_ExecuteDelegatesToHandler(t *testing.T) {
	var received core.InboundMessage
	cmd := NewDeliverMessageCommand(core.MessageHandlerFunc(func(_ context.Context, msg core.InboundMessage) error {
		received = msg
		return nil
	}))

	msg := sampleMessage()
	if err := cmd.Execute(context.Background(), MessageReceivedMessage{Message: msg}); err != nil {
		t.Fatalf("execute deliver: %v", err)
	}
	if received.MessageID != msg.MessageID || received.Text() != "Hello world" {
		t.Fatalf("unexpected delivered message: %#v", received)
	}
}

func TestDeliverMessageCommand_PropagatesHandlerErrors(t *testing.T) {
	boom := errors.New("application unavailable")
	cmd := NewDeliverMessageCommand(core.MessageHandlerFunc(func(context.Context, core.InboundMessage) error {
		return boom
	}))
	if err := cmd.Execute(context.Background(), MessageReceivedMessage{Message: sampleMessage()}); !errors.Is(err, boom) {
		t.Fatalf("expected handler error, got %v", err)
	}
}

func TestDeliverMessageCommand_NilHandlerReturnsRichError(t *testing.T) {
	var cmd *DeliverMessageCommand
	err := cmd.Execute(context.Background(), MessageReceivedMessage{})
	if err == nil {
		t.Fatalf("expected command dependency error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal category, got %q", rich.Category)
	}
	if rich.TextCode != core.SMSErrorInternal {
		t.Fatalf("expected %q text code, got %q", core.SMSErrorInternal, rich.TextCode)
	}
}

func TestMessageReceivedMessage_Validate(t *testing.T) {
	if err := (MessageReceivedMessage{Message: sampleMessage()}).Validate(); err != nil {
		t.Fatalf("expected valid message, got %v", err)
	}

	fragment := sampleMessage()
	fragment.Fragment = &core.Fragment{Ref: "78", Index: 1, Total: 2}

	cases := map[string]MessageReceivedMessage{
		"message_id": {Message: core.InboundMessage{Sender: "447700900419"}},
		"msisdn":     {Message: core.InboundMessage{MessageID: "0B000000D0EBB58D"}},
		"concat":     {Message: fragment},
	}
	for field, msg := range cases {
		err := msg.Validate()
		if err == nil {
			t.Fatalf("%s: expected validation error", field)
		}
		var rich *goerrors.Error
		if !goerrors.As(err, &rich) {
			t.Fatalf("%s: expected go-errors envelope, got %T", field, err)
		}
		if rich.Category != goerrors.CategoryValidation || rich.TextCode != core.SMSErrorValidationFailed {
			t.Fatalf("%s: unexpected envelope %q/%q", field, rich.Category, rich.TextCode)
		}
		if fields := rich.AllValidationErrors(); len(fields) != 1 || fields[0].Field != field {
			t.Fatalf("%s: unexpected field errors %#v", field, rich.AllValidationErrors())
		}
	}
}

func TestPurgeCommand_StoresReport(t *testing.T) {
	purger := &stubPurger{report: reassembly.PurgeReport{StaleParts: 3, ExpiredDeliveries: 2}}
	cmd := NewPurgeCommand(purger)

	collector := gocmd.NewResult[reassembly.PurgeReport]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	if err := cmd.Execute(ctx, PurgeMessage{}); err != nil {
		t.Fatalf("execute purge: %v", err)
	}
	if purger.purgeCalls != 1 || purger.overrideCalls != 0 {
		t.Fatalf("expected configured purge, got %d/%d", purger.purgeCalls, purger.overrideCalls)
	}
	report, ok := collector.Load()
	if !ok {
		t.Fatalf("expected report to be stored")
	}
	if report.StaleParts != 3 || report.ExpiredDeliveries != 2 {
		t.Fatalf("unexpected report %#v", report)
	}
}

func TestPurgeCommand_StaleAfterOverride(t *testing.T) {
	purger := &stubPurger{}
	cmd := NewPurgeCommand(purger)
	if err := cmd.Execute(context.Background(), PurgeMessage{StaleAfter: 30 * time.Minute}); err != nil {
		t.Fatalf("execute purge: %v", err)
	}
	if purger.overrideCalls != 1 || purger.lastStaleAfter != 30*time.Minute {
		t.Fatalf("expected override purge, got %d (%s)", purger.overrideCalls, purger.lastStaleAfter)
	}
	if err := (PurgeMessage{StaleAfter: -time.Second}).Validate(); err == nil {
		t.Fatalf("expected negative stale_after to fail validation")
	}
}

func TestPurgeCommand_ThroughJanitor(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	store := core.NewMemoryPartStore()
	store.Now = clock
	engine := reassembly.NewEngine(store, nil, core.Observer{})

	part := sampleMessage()
	part.Fragment = &core.Fragment{Ref: "78", Index: 1, Total: 2}
	if _, err := engine.Process(ctx, part); err != nil {
		t.Fatalf("process fragment: %v", err)
	}

	now = now.Add(2 * time.Hour)
	janitor := reassembly.NewJanitor(store, nil, 0, core.Observer{})
	janitor.Now = clock

	collector := gocmd.NewResult[reassembly.PurgeReport]()
	if err := NewPurgeCommand(janitor).Execute(gocmd.ContextWithResult(ctx, collector), PurgeMessage{StaleAfter: time.Hour}); err != nil {
		t.Fatalf("execute purge: %v", err)
	}
	report, _ := collector.Load()
	if report.StaleParts != 1 {
		t.Fatalf("expected one stale part removed, got %#v", report)
	}
}

type stubPurger struct {
	report         reassembly.PurgeReport
	err            error
	purgeCalls     int
	overrideCalls  int
	lastStaleAfter time.Duration
}

func (s *stubPurger) Purge(context.Context) (reassembly.PurgeReport, error) {
	s.purgeCalls++
	return s.report, s.err
}

func (s *stubPurger) PurgeOlderThan(_ context.Context, staleAfter time.Duration) (reassembly.PurgeReport, error) {
	s.overrideCalls++
	s.lastStaleAfter = staleAfter
	return s.report, s.err
}

func sampleMessage() core.InboundMessage {
	return core.InboundMessage{
		MessageID:         "0B000000D0EBB58D",
		Sender:            "447700900419",
		Recipient:         "447700900996",
		Kind:              core.KindText,
		ProviderTimestamp: time.Date(2018, 4, 24, 14, 5, 19, 0, time.UTC),
		ReceivedTimestamp: time.Date(2018, 4, 24, 14, 5, 20, 0, time.UTC),
		Content:           core.TextContent{Text: "Hello world"},
	}
}
