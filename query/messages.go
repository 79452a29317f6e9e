package query

import (
	"time"
)

const TypePendingGroups = "smshook.query.parts.pending"

// PendingGroupsMessage lists partial fragment groups. MinIdle keeps only groups
// whose newest part is at least that old; Limit caps the result.
type PendingGroupsMessage struct {
	MinIdle time.Duration
	Limit   int
}

func (PendingGroupsMessage) Type() string { return TypePendingGroups }

func (m PendingGroupsMessage) Validate() error {
	if m.MinIdle < 0 {
		return queryValidationError("min_idle", "must be >= 0")
	}
	if m.Limit < 0 {
		return queryValidationError("limit", "must be >= 0")
	}
	return nil
}
