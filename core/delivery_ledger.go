package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

const defaultDeliveredTTL = 24 * time.Hour
const defaultDeliveryLedgerMaxEntries = 65536

type MemoryDeliveryLedger struct {
	mu         sync.Mutex
	defaultTTL time.Duration
	maxEntries int
	entries    map[string]time.Time
	Now        func() time.Time
}

func NewMemoryDeliveryLedger(defaultTTL time.Duration) *MemoryDeliveryLedger {
	return NewMemoryDeliveryLedgerWithLimits(defaultTTL, defaultDeliveryLedgerMaxEntries)
}

func NewMemoryDeliveryLedgerWithLimits(defaultTTL time.Duration, maxEntries int) *MemoryDeliveryLedger {
	if defaultTTL <= 0 {
		defaultTTL = defaultDeliveredTTL
	}
	if maxEntries <= 0 {
		maxEntries = defaultDeliveryLedgerMaxEntries
	}
	return &MemoryDeliveryLedger{
		defaultTTL: defaultTTL,
		maxEntries: maxEntries,
		entries:    map[string]time.Time{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (l *MemoryDeliveryLedger) Delivered(_ context.Context, messageID string) (bool, error) {
	if l == nil {
		return false, fmt.Errorf("core: delivery ledger is not configured")
	}
	messageID = strings.TrimSpace(messageID)
	if messageID == "" {
		return false, fmt.Errorf("core: message id is required")
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	expiresAt, ok := l.entries[messageID]
	if !ok {
		return false, nil
	}
	if !now.Before(expiresAt) {
		delete(l.entries, messageID)
		return false, nil
	}
	return true, nil
}

func (l *MemoryDeliveryLedger) MarkDelivered(_ context.Context, _ string, messageIDs []string, ttl time.Duration) error {
	if l == nil {
		return fmt.Errorf("core: delivery ledger is not configured")
	}
	if ttl <= 0 {
		ttl = l.defaultTTL
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.pruneExpiredLocked(now)
	for _, messageID := range messageIDs {
		messageID = strings.TrimSpace(messageID)
		if messageID == "" {
			continue
		}
		if _, exists := l.entries[messageID]; !exists {
			l.enforceCapacityLocked(1)
		}
		l.entries[messageID] = now.Add(ttl)
	}
	return nil
}

func (l *MemoryDeliveryLedger) PurgeExpired(_ context.Context) (int, error) {
	if l == nil {
		return 0, fmt.Errorf("core: delivery ledger is not configured")
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pruneExpiredLocked(now), nil
}

func (l *MemoryDeliveryLedger) now() time.Time {
	if l != nil && l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

func (l *MemoryDeliveryLedger) pruneExpiredLocked(now time.Time) int {
	pruned := 0
	for key, expiresAt := range l.entries {
		if !now.Before(expiresAt) {
			delete(l.entries, key)
			pruned++
		}
	}
	return pruned
}

func (l *MemoryDeliveryLedger) enforceCapacityLocked(incoming int) {
	target := l.maxEntries - incoming
	if target < 0 {
		target = 0
	}
	for len(l.entries) > target {
		var oldestKey string
		var oldestExpiry time.Time
		for key, expiry := range l.entries {
			if oldestKey == "" || expiry.Before(oldestExpiry) {
				oldestKey = key
				oldestExpiry = expiry
			}
		}
		delete(l.entries, oldestKey)
	}
}
