package core

import (
	"context"
	"testing"
	"time"
)

func TestMemoryDeliveryLedger_RemembersDeliveredFragments(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryDeliveryLedger(time.Minute)

	delivered, err := ledger.Delivered(ctx, "0B000000D0EBB581")
	if err != nil {
		t.Fatalf("delivered: %v", err)
	}
	if delivered {
		t.Fatalf("expected unknown id to be undelivered")
	}

	if err := ledger.MarkDelivered(ctx, "78", []string{"0B000000D0EBB581", "0B000000D0EBB582"}, 0); err != nil {
		t.Fatalf("mark delivered: %v", err)
	}
	for _, id := range []string{"0B000000D0EBB581", "0B000000D0EBB582"} {
		if delivered, _ := ledger.Delivered(ctx, id); !delivered {
			t.Fatalf("expected %s to be delivered", id)
		}
	}
}

func TestMemoryDeliveryLedger_ExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryDeliveryLedger(time.Minute)
	now := time.Date(2026, 2, 20, 12, 0, 0, 0, time.UTC)
	ledger.Now = func() time.Time { return now }

	if err := ledger.MarkDelivered(ctx, "78", []string{"id-1"}, time.Minute); err != nil {
		t.Fatalf("mark delivered: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if delivered, _ := ledger.Delivered(ctx, "id-1"); delivered {
		t.Fatalf("expected entry to expire")
	}
}

func TestMemoryDeliveryLedger_PurgeExpired(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryDeliveryLedger(time.Minute)
	now := time.Date(2026, 2, 20, 12, 0, 0, 0, time.UTC)
	ledger.Now = func() time.Time { return now }

	_ = ledger.MarkDelivered(ctx, "1", []string{"a"}, time.Minute)
	_ = ledger.MarkDelivered(ctx, "2", []string{"b"}, time.Hour)
	now = now.Add(5 * time.Minute)

	purged, err := ledger.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if purged != 1 {
		t.Fatalf("expected 1 purged entry, got %d", purged)
	}
	if delivered, _ := ledger.Delivered(ctx, "b"); !delivered {
		t.Fatalf("expected long-lived entry to survive")
	}
}

func TestMemoryDeliveryLedger_CapacityEvictsOldest(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryDeliveryLedgerWithLimits(time.Hour, 2)
	now := time.Date(2026, 2, 20, 12, 0, 0, 0, time.UTC)
	ledger.Now = func() time.Time { return now }

	_ = ledger.MarkDelivered(ctx, "1", []string{"a"}, 0)
	now = now.Add(time.Second)
	_ = ledger.MarkDelivered(ctx, "2", []string{"b"}, 0)
	now = now.Add(time.Second)
	_ = ledger.MarkDelivered(ctx, "3", []string{"c"}, 0)

	if delivered, _ := ledger.Delivered(ctx, "a"); delivered {
		t.Fatalf("expected oldest entry to be evicted")
	}
	if delivered, _ := ledger.Delivered(ctx, "c"); !delivered {
		t.Fatalf("expected newest entry to be kept")
	}
}

func TestMemoryDeliveryLedger_RequiresMessageID(t *testing.T) {
	ledger := NewMemoryDeliveryLedger(time.Minute)
	if _, err := ledger.Delivered(context.Background(), " "); err == nil {
		t.Fatalf("expected empty id to fail")
	}
}
