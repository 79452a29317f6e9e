package command

import (
	"context"
	"time"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-smshook/core"
	"github.com/goliatone/go-smshook/reassembly"
)

type Purger interface {
	Purge(ctx context.Context) (reassembly.PurgeReport, error)
	PurgeOlderThan(ctx context.Context, staleAfter time.Duration) (reassembly.PurgeReport, error)
}

// DeliverMessageCommand hands dispatched messages to the application handler.
type DeliverMessageCommand struct {
	handler core.MessageHandler
}

func NewDeliverMessageCommand(handler core.MessageHandler) *DeliverMessageCommand {
	return &DeliverMessageCommand{handler: handler}
}

func (c *DeliverMessageCommand) Execute(ctx context.Context, msg MessageReceivedMessage) error {
	if c == nil || c.handler == nil {
		return commandDependencyError("command: message handler is required")
	}
	return c.handler.HandleMessage(ctx, msg.Message)
}

type PurgeCommand struct {
	purger Purger
}

func NewPurgeCommand(purger Purger) *PurgeCommand {
	return &PurgeCommand{purger: purger}
}

func (c *PurgeCommand) Execute(ctx context.Context, msg PurgeMessage) error {
	if c == nil || c.purger == nil {
		return commandDependencyError("command: purger is required")
	}
	var (
		report reassembly.PurgeReport
		err    error
	)
	if msg.StaleAfter > 0 {
		report, err = c.purger.PurgeOlderThan(ctx, msg.StaleAfter)
	} else {
		report, err = c.purger.Purge(ctx)
	}
	if err != nil {
		return err
	}
	storeResult(ctx, report)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
