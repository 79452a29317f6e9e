package query

import (
	"context"
	"time"

	"github.com/goliatone/go-smshook/core"
)

type PendingGroupsReader interface {
	Pending(ctx context.Context) ([]core.PendingGroup, error)
}

type PendingGroupsQuery struct {
	reader PendingGroupsReader
	Now    func() time.Time
}

func NewPendingGroupsQuery(reader PendingGroupsReader) *PendingGroupsQuery {
	return &PendingGroupsQuery{reader: reader}
}

func (q *PendingGroupsQuery) Query(ctx context.Context, msg PendingGroupsMessage) ([]core.PendingGroup, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: pending groups reader is required")
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	groups, err := q.reader.Pending(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]core.PendingGroup, 0, len(groups))
	cutoff := q.now().Add(-msg.MinIdle)
	for _, group := range groups {
		if msg.MinIdle > 0 && group.LastSeen.After(cutoff) {
			continue
		}
		out = append(out, group)
		if msg.Limit > 0 && len(out) == msg.Limit {
			break
		}
	}
	return out, nil
}

func (q *PendingGroupsQuery) now() time.Time {
	if q.Now != nil {
		return q.Now().UTC()
	}
	return time.Now().UTC()
}
