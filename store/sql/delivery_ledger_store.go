package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const defaultDeliveredTTL = 24 * time.Hour

// DeliveryLedgerStore records the message ids of delivered fragments in
// sms_delivered_fragments until they expire.
type DeliveryLedgerStore struct {
	db         *bun.DB
	repo       repository.Repository[*deliveredFragmentRecord]
	DefaultTTL time.Duration
	Now        func() time.Time
}

func NewDeliveryLedgerStore(db *bun.DB, defaultTTL time.Duration) (*DeliveryLedgerStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*deliveredFragmentRecord](db, deliveredFragmentHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid delivered fragment repository wiring: %w", err)
		}
	}
	if defaultTTL <= 0 {
		defaultTTL = defaultDeliveredTTL
	}
	return &DeliveryLedgerStore{
		db:         db,
		repo:       repo,
		DefaultTTL: defaultTTL,
	}, nil
}

func (s *DeliveryLedgerStore) Delivered(ctx context.Context, messageID string) (bool, error) {
	if s == nil || s.repo == nil {
		return false, fmt.Errorf("sqlstore: delivery ledger store is not configured")
	}
	messageID = strings.TrimSpace(messageID)
	if messageID == "" {
		return false, fmt.Errorf("sqlstore: message id is required")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("message_id", "=", messageID),
		notExpiredAt(s.now()),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return false, err
	}
	return len(records) > 0, nil
}

// notExpiredAt keeps rows whose expiry is still ahead of now.
func notExpiredAt(now time.Time) repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.expires_at > ?", now.UTC())
	}
}

// MarkDelivered upserts one row per message id, extending the expiry of ids
// that were already recorded.
func (s *DeliveryLedgerStore) MarkDelivered(ctx context.Context, ref string, messageIDs []string, ttl time.Duration) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: delivery ledger store is not configured")
	}
	if ttl <= 0 {
		ttl = s.DefaultTTL
	}
	if ttl <= 0 {
		ttl = defaultDeliveredTTL
	}
	now := s.now()
	records := make([]*deliveredFragmentRecord, 0, len(messageIDs))
	seen := map[string]struct{}{}
	for _, messageID := range messageIDs {
		messageID = strings.TrimSpace(messageID)
		if messageID == "" {
			continue
		}
		if _, dup := seen[messageID]; dup {
			continue
		}
		seen[messageID] = struct{}{}
		records = append(records, &deliveredFragmentRecord{
			ID:          uuid.NewString(),
			MessageID:   messageID,
			FragmentRef: strings.TrimSpace(ref),
			DeliveredAt: now,
			ExpiresAt:   now.Add(ttl),
		})
	}
	if len(records) == 0 {
		return nil
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, record := range records {
			_, err := tx.NewInsert().
				Model(record).
				On("CONFLICT (message_id) DO UPDATE").
				Set("fragment_ref = EXCLUDED.fragment_ref").
				Set("delivered_at = EXCLUDED.delivered_at").
				Set("expires_at = EXCLUDED.expires_at").
				Exec(ctx)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *DeliveryLedgerStore) PurgeExpired(ctx context.Context) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: delivery ledger store is not configured")
	}
	res, err := s.db.NewDelete().
		Model((*deliveredFragmentRecord)(nil)).
		Where("expires_at <= ?", s.now()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return rowsAffected(res)
}

func (s *DeliveryLedgerStore) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
