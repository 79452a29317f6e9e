package reassembly

import (
	"context"
	"time"

	"github.com/goliatone/go-smshook/core"
)

type PurgeReport struct {
	StaleParts        int
	ExpiredDeliveries int
	Cutoff            time.Time
}

// Janitor removes fragment groups that never completed and delivery ledger
// entries past their TTL.
type Janitor struct {
	Parts      core.PartMaintainer
	Ledger     core.DeliveryLedger
	StaleAfter time.Duration
	Observer   core.Observer
	Now        func() time.Time
}

func NewJanitor(parts core.PartMaintainer, ledger core.DeliveryLedger, staleAfter time.Duration, observer core.Observer) *Janitor {
	return &Janitor{
		Parts:      parts,
		Ledger:     ledger,
		StaleAfter: staleAfter,
		Observer:   observer,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Purge is safe to run concurrently with Process. A zero StaleAfter keeps
// partial groups forever.
func (j *Janitor) Purge(ctx context.Context) (PurgeReport, error) {
	if j == nil {
		return PurgeReport{}, reassemblyInternal("reassembly: janitor is not configured", nil)
	}
	return j.PurgeOlderThan(ctx, j.StaleAfter)
}

// PurgeOlderThan is Purge with an explicit staleness window.
func (j *Janitor) PurgeOlderThan(ctx context.Context, staleAfter time.Duration) (report PurgeReport, err error) {
	startedAt := time.Now()
	defer func() {
		if j != nil {
			j.Observer.Observe(ctx, startedAt, "reassembly.purge", "", err, map[string]any{
				"stale_parts":        report.StaleParts,
				"expired_deliveries": report.ExpiredDeliveries,
			})
		}
	}()
	if j == nil {
		return PurgeReport{}, reassemblyInternal("reassembly: janitor is not configured", nil)
	}

	if j.Parts != nil && staleAfter > 0 {
		report.Cutoff = j.now().Add(-staleAfter)
		removed, purgeErr := j.Parts.PurgeStale(ctx, report.Cutoff)
		if purgeErr != nil {
			return report, reassemblyStorage(purgeErr, "reassembly: purge stale fragments failed", nil)
		}
		report.StaleParts = removed
	}
	if j.Ledger != nil {
		expired, purgeErr := j.Ledger.PurgeExpired(ctx)
		if purgeErr != nil {
			return report, reassemblyStorage(purgeErr, "reassembly: purge delivery ledger failed", nil)
		}
		report.ExpiredDeliveries = expired
	}
	return report, nil
}

func (j *Janitor) Pending(ctx context.Context) ([]core.PendingGroup, error) {
	if j == nil || j.Parts == nil {
		return nil, reassemblyInternal("reassembly: part maintainer is not configured", nil)
	}
	groups, err := j.Parts.PendingGroups(ctx)
	if err != nil {
		return nil, reassemblyStorage(err, "reassembly: list pending groups failed", nil)
	}
	return groups, nil
}

func (j *Janitor) now() time.Time {
	if j != nil && j.Now != nil {
		return j.Now().UTC()
	}
	return time.Now().UTC()
}
