package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

type partKey struct {
	ref   string
	index int
}

// MemoryPartStore is a process-local PartStore. It satisfies the same
// insert-if-absent contract as the SQL store and is used in tests and
// single-process deployments.
type MemoryPartStore struct {
	mu         sync.Mutex
	groups     map[string]map[int]StoredPart
	messageIDs map[string]partKey
	Now        func() time.Time
}

func NewMemoryPartStore() *MemoryPartStore {
	return &MemoryPartStore{
		groups:     map[string]map[int]StoredPart{},
		messageIDs: map[string]partKey{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (s *MemoryPartStore) Put(_ context.Context, part StoredPart) error {
	if s == nil {
		return fmt.Errorf("core: memory part store is not configured")
	}
	ref, err := normalizeRef(part.Ref)
	if err != nil {
		return err
	}
	if part.Index < 1 {
		return fmt.Errorf("core: fragment index must be >= 1, got %d", part.Index)
	}
	part.Ref = ref
	part.MessageID = strings.TrimSpace(part.MessageID)

	s.mu.Lock()
	defer s.mu.Unlock()

	group := s.groups[ref]
	if _, exists := group[part.Index]; exists {
		return fmt.Errorf("core: part %d of group %q: %w", part.Index, ref, ErrDuplicatePart)
	}
	if part.MessageID != "" {
		if _, exists := s.messageIDs[part.MessageID]; exists {
			return fmt.Errorf("core: message id %q: %w", part.MessageID, ErrDuplicatePart)
		}
	}
	if group == nil {
		group = map[int]StoredPart{}
		s.groups[ref] = group
	}
	stored := part.Clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.now()
	}
	group[part.Index] = stored
	if part.MessageID != "" {
		s.messageIDs[part.MessageID] = partKey{ref: ref, index: part.Index}
	}
	return nil
}

func (s *MemoryPartStore) CountFor(_ context.Context, ref string) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("core: memory part store is not configured")
	}
	ref, err := normalizeRef(ref)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.groups[ref]), nil
}

func (s *MemoryPartStore) OrderedPartsFor(_ context.Context, ref string) ([]StoredPart, error) {
	if s == nil {
		return nil, fmt.Errorf("core: memory part store is not configured")
	}
	ref, err := normalizeRef(ref)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	group := s.groups[ref]
	parts := make([]StoredPart, 0, len(group))
	for _, part := range group {
		parts = append(parts, part.Clone())
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].Index < parts[j].Index })
	return parts, nil
}

func (s *MemoryPartStore) DeleteGroup(_ context.Context, ref string) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("core: memory part store is not configured")
	}
	ref, err := normalizeRef(ref)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteGroupLocked(ref), nil
}

func (s *MemoryPartStore) PendingGroups(_ context.Context) ([]PendingGroup, error) {
	if s == nil {
		return nil, fmt.Errorf("core: memory part store is not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	groups := make([]PendingGroup, 0, len(s.groups))
	for ref, parts := range s.groups {
		groups = append(groups, summarizeGroup(ref, parts))
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].FirstSeen.Equal(groups[j].FirstSeen) {
			return groups[i].Ref < groups[j].Ref
		}
		return groups[i].FirstSeen.Before(groups[j].FirstSeen)
	})
	return groups, nil
}

// PurgeStale drops every group whose newest part was stored before the
// cutoff and returns the number of parts removed.
func (s *MemoryPartStore) PurgeStale(_ context.Context, before time.Time) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("core: memory part store is not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for ref, parts := range s.groups {
		if summarizeGroup(ref, parts).LastSeen.Before(before) {
			removed += s.deleteGroupLocked(ref)
		}
	}
	return removed, nil
}

func (s *MemoryPartStore) deleteGroupLocked(ref string) int {
	group := s.groups[ref]
	for _, part := range group {
		if part.MessageID != "" {
			delete(s.messageIDs, part.MessageID)
		}
	}
	delete(s.groups, ref)
	return len(group)
}

func (s *MemoryPartStore) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func summarizeGroup(ref string, parts map[int]StoredPart) PendingGroup {
	group := PendingGroup{Ref: ref, Received: len(parts)}
	for _, part := range parts {
		if part.Total > group.Total {
			group.Total = part.Total
		}
		if group.FirstSeen.IsZero() || part.CreatedAt.Before(group.FirstSeen) {
			group.FirstSeen = part.CreatedAt
			group.Sender = part.Sender
			group.Recipient = part.Recipient
		}
		if part.CreatedAt.After(group.LastSeen) {
			group.LastSeen = part.CreatedAt
		}
	}
	return group
}
