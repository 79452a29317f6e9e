package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-smshook/core"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
)

// maxFragmentsPerGroup is the largest concat total a UDH can carry.
const maxFragmentsPerGroup = 255

const pgUniqueViolation = "23505"

// PartStore keeps fragments in sms_message_parts. The unique indexes on
// (fragment_ref, fragment_index) and message_id make Put an atomic
// insert-if-absent across processes.
type PartStore struct {
	db   *bun.DB
	repo repository.Repository[*messagePartRecord]
	Now  func() time.Time
}

func NewPartStore(db *bun.DB) (*PartStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*messagePartRecord](db, messagePartHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid message part repository wiring: %w", err)
		}
	}
	return &PartStore{
		db:   db,
		repo: repo,
	}, nil
}

func (s *PartStore) Put(ctx context.Context, part core.StoredPart) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: part store is not configured")
	}
	part.Ref = strings.TrimSpace(part.Ref)
	part.MessageID = strings.TrimSpace(part.MessageID)
	if part.Ref == "" {
		return fmt.Errorf("sqlstore: fragment ref is required")
	}
	if part.Index < 1 {
		return fmt.Errorf("sqlstore: fragment index must be >= 1, got %d", part.Index)
	}

	record := newMessagePartRecord(uuid.NewString(), part, s.now())
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("sqlstore: part %d of group %q: %w", part.Index, part.Ref, core.ErrDuplicatePart)
		}
		return err
	}
	return nil
}

func (s *PartStore) CountFor(ctx context.Context, ref string) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: part store is not configured")
	}
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return 0, fmt.Errorf("sqlstore: fragment ref is required")
	}
	return s.db.NewSelect().
		Model((*messagePartRecord)(nil)).
		Where("?TableAlias.fragment_ref = ?", ref).
		Count(ctx)
}

func (s *PartStore) OrderedPartsFor(ctx context.Context, ref string) ([]core.StoredPart, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: part store is not configured")
	}
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("sqlstore: fragment ref is required")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("fragment_ref", "=", ref),
		repository.OrderBy("fragment_index ASC"),
		repository.SelectPaginate(maxFragmentsPerGroup, 0),
	)
	if err != nil {
		return nil, err
	}
	parts := make([]core.StoredPart, 0, len(records))
	for _, record := range records {
		parts = append(parts, record.toDomain())
	}
	return parts, nil
}

func (s *PartStore) DeleteGroup(ctx context.Context, ref string) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: part store is not configured")
	}
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return 0, fmt.Errorf("sqlstore: fragment ref is required")
	}
	res, err := s.db.NewDelete().
		Model((*messagePartRecord)(nil)).
		Where("fragment_ref = ?", ref).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return rowsAffected(res)
}

func (s *PartStore) PendingGroups(ctx context.Context) ([]core.PendingGroup, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: part store is not configured")
	}
	var rows []pendingGroupRow
	err := s.db.NewSelect().
		Model((*messagePartRecord)(nil)).
		ColumnExpr("fragment_ref").
		ColumnExpr("MIN(sender) AS sender").
		ColumnExpr("MIN(recipient) AS recipient").
		ColumnExpr("MAX(fragment_total) AS total").
		ColumnExpr("COUNT(*) AS received").
		ColumnExpr("MIN(created_at) AS first_seen").
		ColumnExpr("MAX(created_at) AS last_seen").
		Group("fragment_ref").
		OrderExpr("first_seen ASC, fragment_ref ASC").
		Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}
	groups := make([]core.PendingGroup, 0, len(rows))
	for _, row := range rows {
		groups = append(groups, core.PendingGroup{
			Ref:       row.FragmentRef,
			Sender:    row.Sender,
			Recipient: row.Recipient,
			Total:     row.Total,
			Received:  row.Received,
			FirstSeen: row.FirstSeen.UTC(),
			LastSeen:  row.LastSeen.UTC(),
		})
	}
	return groups, nil
}

// PurgeStale drops every group whose newest part was stored before the
// cutoff and returns the number of parts removed.
func (s *PartStore) PurgeStale(ctx context.Context, before time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: part store is not configured")
	}
	stale := s.db.NewSelect().
		Model((*messagePartRecord)(nil)).
		ColumnExpr("fragment_ref").
		Group("fragment_ref").
		Having("MAX(created_at) < ?", before.UTC())
	res, err := s.db.NewDelete().
		Model((*messagePartRecord)(nil)).
		Where("fragment_ref IN (?)", stale).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return rowsAffected(res)
}

func (s *PartStore) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// isUniqueViolation recognizes unique constraint failures from the sqlite3,
// lib/pq and pgx drivers.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pgUniqueViolation
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}

func rowsAffected(res interface{ RowsAffected() (int64, error) }) (int, error) {
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}
