package gocommand

import (
	"context"
	"fmt"

	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	smscommand "github.com/goliatone/go-smshook/command"
	"github.com/goliatone/go-smshook/core"
	smsquery "github.com/goliatone/go-smshook/query"
)

// DispatchHandler publishes every delivered message as a
// command.MessageReceivedMessage so subscribers registered on the go-command
// dispatcher receive it.
type DispatchHandler struct{}

func NewDispatchHandler() DispatchHandler {
	return DispatchHandler{}
}

func (DispatchHandler) HandleMessage(ctx context.Context, msg core.InboundMessage) error {
	dispatched := smscommand.MessageReceivedMessage{Message: msg}
	if err := ValidateMessageContract(dispatched); err != nil {
		return err
	}
	return Dispatch(ctx, dispatched)
}

// RegisterMessageHandler subscribes handler to MessageReceivedMessage
// dispatches through the adapter registry.
func RegisterMessageHandler(adapter *RegistryAdapter, handler core.MessageHandler) (func(), error) {
	subscription, err := RegisterAndSubscribe(adapter, smscommand.NewDeliverMessageCommand(handler))
	if err != nil {
		return nil, err
	}
	return subscription.Unsubscribe, nil
}

// RegisterMaintenance exposes the purge command and the pending groups query
// on the dispatcher, so schedulers and operators can reach them with Dispatch
// and Query.
func RegisterMaintenance(adapter *RegistryAdapter, purge *smscommand.PurgeCommand, pending *smsquery.PendingGroupsQuery) (func(), error) {
	if purge == nil || pending == nil {
		return nil, fmt.Errorf("gocommand: purge command and pending query are required")
	}
	purgeSubscription, err := RegisterAndSubscribe[smscommand.PurgeMessage](adapter, purge)
	if err != nil {
		return nil, err
	}
	pendingSubscription, err := RegisterAndSubscribeQuery[smsquery.PendingGroupsMessage, []core.PendingGroup](adapter, pending)
	if err != nil {
		purgeSubscription.Unsubscribe()
		return nil, err
	}
	return unsubscribeAll(purgeSubscription, pendingSubscription), nil
}

func unsubscribeAll(subscriptions ...commanddispatcher.Subscription) func() {
	return func() {
		for _, subscription := range subscriptions {
			if subscription != nil {
				subscription.Unsubscribe()
			}
		}
	}
}

var _ core.MessageHandler = DispatchHandler{}
