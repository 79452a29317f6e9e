package command

import (
	"strings"
	"time"

	"github.com/goliatone/go-smshook/core"
)

const (
	TypeMessageReceived = "smshook.command.message.received"
	TypePurge           = "smshook.command.parts.purge"
)

// MessageReceivedMessage carries one logical message, either a single SMS or
// a reassembled group, to the application.
type MessageReceivedMessage struct {
	Message core.InboundMessage
}

func (MessageReceivedMessage) Type() string { return TypeMessageReceived }

func (m MessageReceivedMessage) Validate() error {
	if strings.TrimSpace(m.Message.MessageID) == "" {
		return commandValidationError("message_id", "message id is required")
	}
	if strings.TrimSpace(m.Message.Sender) == "" {
		return commandValidationError("msisdn", "sender is required")
	}
	if m.Message.IsFragment() {
		return commandValidationError("concat", "fragments must be reassembled before delivery")
	}
	return nil
}

// PurgeMessage removes stale partial groups and expired ledger entries. A zero
// StaleAfter uses the janitor's configured window.
type PurgeMessage struct {
	StaleAfter time.Duration
}

func (PurgeMessage) Type() string { return TypePurge }

func (m PurgeMessage) Validate() error {
	if m.StaleAfter < 0 {
		return commandValidationError("stale_after", "must be >= 0")
	}
	return nil
}
