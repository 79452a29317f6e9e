package sqlstore

import (
	"time"

	"github.com/goliatone/go-smshook/core"
	"github.com/uptrace/bun"
)

type messagePartRecord struct {
	bun.BaseModel `bun:"table:sms_message_parts,alias:smp"`

	ID                string    `bun:"id,pk"`
	FragmentRef       string    `bun:"fragment_ref,notnull"`
	FragmentIndex     int       `bun:"fragment_index,notnull"`
	FragmentTotal     int       `bun:"fragment_total,notnull"`
	MessageID         string    `bun:"message_id,notnull"`
	Sender            string    `bun:"sender,notnull"`
	Recipient         string    `bun:"recipient,notnull"`
	Kind              string    `bun:"kind,notnull"`
	Keyword           string    `bun:"keyword,notnull"`
	Text              string    `bun:"text,notnull"`
	Data              []byte    `bun:"data"`
	UDH               []byte    `bun:"udh"`
	ProviderTimestamp time.Time `bun:"provider_timestamp,notnull"`
	ReceivedTimestamp time.Time `bun:"received_timestamp,notnull"`
	CreatedAt         time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type deliveredFragmentRecord struct {
	bun.BaseModel `bun:"table:sms_delivered_fragments,alias:sdf"`

	ID          string    `bun:"id,pk"`
	MessageID   string    `bun:"message_id,notnull"`
	FragmentRef string    `bun:"fragment_ref,notnull"`
	DeliveredAt time.Time `bun:"delivered_at,notnull"`
	ExpiresAt   time.Time `bun:"expires_at,notnull"`
}

// pendingGroupRow is the aggregate scanned by PartStore.PendingGroups.
type pendingGroupRow struct {
	FragmentRef string    `bun:"fragment_ref"`
	Sender      string    `bun:"sender"`
	Recipient   string    `bun:"recipient"`
	Total       int       `bun:"total"`
	Received    int       `bun:"received"`
	FirstSeen   time.Time `bun:"first_seen"`
	LastSeen    time.Time `bun:"last_seen"`
}

func newMessagePartRecord(id string, part core.StoredPart, now time.Time) *messagePartRecord {
	createdAt := part.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	return &messagePartRecord{
		ID:                id,
		FragmentRef:       part.Ref,
		FragmentIndex:     part.Index,
		FragmentTotal:     part.Total,
		MessageID:         part.MessageID,
		Sender:            part.Sender,
		Recipient:         part.Recipient,
		Kind:              string(part.Kind),
		Keyword:           part.Keyword,
		Text:              part.Text,
		Data:              append([]byte(nil), part.Data...),
		UDH:               append([]byte(nil), part.UDH...),
		ProviderTimestamp: part.ProviderTimestamp.UTC(),
		ReceivedTimestamp: part.ReceivedTimestamp.UTC(),
		CreatedAt:         createdAt.UTC(),
	}
}

func (r *messagePartRecord) toDomain() core.StoredPart {
	if r == nil {
		return core.StoredPart{}
	}
	part := core.StoredPart{
		Ref:               r.FragmentRef,
		Index:             r.FragmentIndex,
		Total:             r.FragmentTotal,
		MessageID:         r.MessageID,
		Sender:            r.Sender,
		Recipient:         r.Recipient,
		Kind:              core.ContentKind(r.Kind),
		Keyword:           r.Keyword,
		Text:              r.Text,
		ProviderTimestamp: r.ProviderTimestamp.UTC(),
		ReceivedTimestamp: r.ReceivedTimestamp.UTC(),
		CreatedAt:         r.CreatedAt.UTC(),
	}
	if len(r.Data) > 0 {
		part.Data = append([]byte(nil), r.Data...)
	}
	if len(r.UDH) > 0 {
		part.UDH = append([]byte(nil), r.UDH...)
	}
	return part
}
