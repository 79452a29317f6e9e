package gocommand

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-command"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	smscommand "github.com/goliatone/go-smshook/command"
	"github.com/goliatone/go-smshook/core"
	smsquery "github.com/goliatone/go-smshook/query"
	"github.com/goliatone/go-smshook/reassembly"
)

type countingPurger struct {
	purges     int
	staleAfter time.Duration
}

func (p *countingPurger) Purge(context.Context) (reassembly.PurgeReport, error) {
	p.purges++
	return reassembly.PurgeReport{}, nil
}

func (p *countingPurger) PurgeOlderThan(_ context.Context, staleAfter time.Duration) (reassembly.PurgeReport, error) {
	p.purges++
	p.staleAfter = staleAfter
	return reassembly.PurgeReport{}, nil
}

type staticPending []core.PendingGroup

func (s staticPending) Pending(context.Context) ([]core.PendingGroup, error) {
	return append([]core.PendingGroup(nil), s...), nil
}

func TestValidateMessageContract(t *testing.T) {
	delivered := core.InboundMessage{
		MessageID: "0B000000D0EBB58D",
		Sender:    "447700900419",
		Kind:      core.KindText,
		Content:   core.TextContent{Text: "Hello"},
	}
	cases := []struct {
		name    string
		msg     any
		wantErr bool
	}{
		{name: "purge", msg: smscommand.PurgeMessage{StaleAfter: time.Hour}},
		{name: "purge with negative window", msg: smscommand.PurgeMessage{StaleAfter: -time.Second}, wantErr: true},
		{name: "pending groups", msg: smsquery.PendingGroupsMessage{Limit: 10}},
		{name: "pending groups with negative limit", msg: smsquery.PendingGroupsMessage{Limit: -1}, wantErr: true},
		{name: "message received", msg: smscommand.MessageReceivedMessage{Message: delivered}},
		{name: "message received without id", msg: smscommand.MessageReceivedMessage{}, wantErr: true},
		{name: "not a message", msg: "smshook.command.parts.purge", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateMessageContract(tc.msg)
			if tc.wantErr && err == nil {
				t.Fatalf("expected contract error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected contract error: %v", err)
			}
		})
	}
}

func TestRegistryAdapter_RequiresRegistry(t *testing.T) {
	var adapter *RegistryAdapter
	if err := adapter.RegisterCommand(smscommand.NewPurgeCommand(&countingPurger{})); !errors.Is(err, errRegistryNotConfigured) {
		t.Fatalf("expected registry error, got %v", err)
	}
	if err := adapter.Initialize(); !errors.Is(err, errRegistryNotConfigured) {
		t.Fatalf("expected registry error, got %v", err)
	}
	if adapter.HasResolver("queue") {
		t.Fatalf("expected no resolvers on a nil adapter")
	}
	if _, err := RegisterAndSubscribe[smscommand.PurgeMessage](adapter, smscommand.NewPurgeCommand(&countingPurger{})); err == nil {
		t.Fatalf("expected subscribe without registry to fail")
	}
	if NewRegistryAdapter(nil).Registry() == nil {
		t.Fatalf("expected a registry to be created")
	}
}

func TestRegistryAdapter_ResolverSeesMessageTypes(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	var seen []string
	if err := adapter.AddResolver(" audit ", func(_ any, meta command.CommandMeta, _ *command.Registry) error {
		seen = append(seen, meta.MessageType)
		return nil
	}); err != nil {
		t.Fatalf("add resolver: %v", err)
	}
	if !adapter.HasResolver("audit") {
		t.Fatalf("expected resolver key to be trimmed")
	}

	if err := adapter.RegisterCommand(smscommand.NewPurgeCommand(&countingPurger{})); err != nil {
		t.Fatalf("register purge: %v", err)
	}
	if err := adapter.RegisterCommand(smsquery.NewPendingGroupsQuery(staticPending{})); err != nil {
		t.Fatalf("register pending: %v", err)
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}

	if len(seen) != 2 || seen[0] != smscommand.TypePurge || seen[1] != smsquery.TypePendingGroups {
		t.Fatalf("unexpected resolved message types %v", seen)
	}
}

func TestQueueResolverMirrorsSMSCommands(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	queueRegistry := jobqueuecommand.NewRegistry()

	if err := adapter.AddQueueResolver("queue", nil); err == nil {
		t.Fatalf("expected missing queue registry to fail")
	}
	if err := adapter.AddQueueResolver("queue", queueRegistry); err != nil {
		t.Fatalf("add queue resolver: %v", err)
	}
	if err := adapter.RegisterCommand(smscommand.NewPurgeCommand(&countingPurger{})); err != nil {
		t.Fatalf("register purge: %v", err)
	}
	deliver := smscommand.NewDeliverMessageCommand(core.MessageHandlerFunc(func(context.Context, core.InboundMessage) error {
		return nil
	}))
	if err := adapter.RegisterCommand(deliver); err != nil {
		t.Fatalf("register deliver: %v", err)
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}

	for _, messageType := range []string{smscommand.TypePurge, smscommand.TypeMessageReceived} {
		if _, ok := queueRegistry.Get(messageType); !ok {
			t.Fatalf("expected %s to be mirrored into the queue registry", messageType)
		}
	}
}

func TestRegisterAndSubscribe_DispatchesPurge(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	purger := &countingPurger{}

	subscription, err := RegisterAndSubscribe[smscommand.PurgeMessage](adapter, smscommand.NewPurgeCommand(purger))
	if err != nil {
		t.Fatalf("register and subscribe: %v", err)
	}
	defer subscription.Unsubscribe()
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}

	if err := Dispatch(context.Background(), smscommand.PurgeMessage{StaleAfter: 2 * time.Hour}); err != nil {
		t.Fatalf("dispatch purge: %v", err)
	}
	if purger.purges != 1 || purger.staleAfter != 2*time.Hour {
		t.Fatalf("expected one purge with 2h window, got %d/%s", purger.purges, purger.staleAfter)
	}
}

func TestRegisterAndSubscribe_DropsSubscriptionWhenRegistrationFails(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}
	purger := &countingPurger{}

	if _, err := RegisterAndSubscribe[smscommand.PurgeMessage](adapter, smscommand.NewPurgeCommand(purger)); err == nil {
		t.Fatalf("expected registration after initialize to fail")
	}
	_ = Dispatch(context.Background(), smscommand.PurgeMessage{})
	if purger.purges != 0 {
		t.Fatalf("expected the subscription to be dropped, got %d purges", purger.purges)
	}
}

func TestRegisterAndSubscribeQuery_AnswersPendingGroups(t *testing.T) {
	now := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	pending := smsquery.NewPendingGroupsQuery(staticPending{
		{Ref: "78", Sender: "447700900419", Total: 3, LastSeen: now.Add(-2 * time.Hour)},
		{Ref: "79", Sender: "447700900419", Total: 2, LastSeen: now.Add(-time.Minute)},
	})
	pending.Now = func() time.Time { return now }

	adapter := NewRegistryAdapter(command.NewRegistry())
	subscription, err := RegisterAndSubscribeQuery[smsquery.PendingGroupsMessage, []core.PendingGroup](adapter, pending)
	if err != nil {
		t.Fatalf("register and subscribe query: %v", err)
	}
	defer subscription.Unsubscribe()
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}

	groups, err := Query[smsquery.PendingGroupsMessage, []core.PendingGroup](context.Background(), smsquery.PendingGroupsMessage{MinIdle: time.Hour})
	if err != nil {
		t.Fatalf("query pending: %v", err)
	}
	if len(groups) != 1 || groups[0].Ref != "78" {
		t.Fatalf("expected only the idle group, got %#v", groups)
	}
}
