package core

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// StoredPart is the durable form of one fragment, kept until its group is
// complete.
type StoredPart struct {
	Ref               string
	Index             int
	Total             int
	MessageID         string
	Sender            string
	Recipient         string
	Kind              ContentKind
	Keyword           string
	Text              string
	Data              []byte
	UDH               []byte
	ProviderTimestamp time.Time
	ReceivedTimestamp time.Time
	CreatedAt         time.Time
}

func PartFromMessage(msg InboundMessage) (StoredPart, error) {
	if msg.Fragment == nil {
		return StoredPart{}, fmt.Errorf("core: message %q is not a fragment", msg.MessageID)
	}
	if err := msg.Validate(); err != nil {
		return StoredPart{}, err
	}
	part := StoredPart{
		Ref:               strings.TrimSpace(msg.Fragment.Ref),
		Index:             msg.Fragment.Index,
		Total:             msg.Fragment.Total,
		MessageID:         strings.TrimSpace(msg.MessageID),
		Sender:            msg.Sender,
		Recipient:         msg.Recipient,
		Kind:              msg.Kind,
		Keyword:           msg.Keyword,
		Text:              msg.Text(),
		ProviderTimestamp: msg.ProviderTimestamp.UTC(),
		ReceivedTimestamp: msg.ReceivedTimestamp.UTC(),
	}
	if binary, ok := msg.Binary(); ok {
		part.Data = binary.Data()
		part.UDH = binary.UDH()
	}
	return part, nil
}

func (p StoredPart) Clone() StoredPart {
	cloned := p
	cloned.Data = cloneBytes(p.Data)
	cloned.UDH = cloneBytes(p.UDH)
	return cloned
}

// String renders the part the way operators list pending fragments:
// Message 78: "Lorem ipsum" (Part 1 of 9).
func (p StoredPart) String() string {
	return fmt.Sprintf("Message %s: %q (Part %d of %d)", p.Ref, p.Text, p.Index, p.Total)
}

// PendingGroup summarizes a fragment group that is still waiting for parts.
type PendingGroup struct {
	Ref       string
	Sender    string
	Recipient string
	Total     int
	Received  int
	FirstSeen time.Time
	LastSeen  time.Time
}

func (g PendingGroup) Missing() int {
	if g.Total <= g.Received {
		return 0
	}
	return g.Total - g.Received
}

// PartStore persists fragments until their group is complete. Put must be an
// atomic insert-if-absent keyed by (Ref, Index): concurrent puts for the same
// key never both succeed, and the loser gets ErrDuplicatePart.
type PartStore interface {
	Put(ctx context.Context, part StoredPart) error
	CountFor(ctx context.Context, ref string) (int, error)
	OrderedPartsFor(ctx context.Context, ref string) ([]StoredPart, error)
	// DeleteGroup removes every part for ref and reports how many rows it
	// removed. Deleting an absent group is a no-op.
	DeleteGroup(ctx context.Context, ref string) (int, error)
}

// PartMaintainer is implemented by stores that can report and purge groups
// that never completed.
type PartMaintainer interface {
	PendingGroups(ctx context.Context) ([]PendingGroup, error)
	PurgeStale(ctx context.Context, before time.Time) (int, error)
}

// DeliveryLedger remembers which fragments already took part in a delivered
// message, so a replay after the group was purged is not delivered again.
type DeliveryLedger interface {
	Delivered(ctx context.Context, messageID string) (bool, error)
	MarkDelivered(ctx context.Context, ref string, messageIDs []string, ttl time.Duration) error
	PurgeExpired(ctx context.Context) (int, error)
}

// MessageHandler is the application callback that receives every logical
// message exactly once.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg InboundMessage) error
}

type MessageHandlerFunc func(ctx context.Context, msg InboundMessage) error

func (f MessageHandlerFunc) HandleMessage(ctx context.Context, msg InboundMessage) error {
	return f(ctx, msg)
}

func normalizeRef(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("core: fragment ref is required")
	}
	return ref, nil
}
