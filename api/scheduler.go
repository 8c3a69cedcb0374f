/*
scheduler.go - Automated passive pool distribution scheduler

PURPOSE:
  Triggers the monthly passive pool distribution on a cron schedule, so
  the pool pays out without anyone calling POST /api/pool/distribute.

DESIGN:
  - robfig/cron runs the job in a background goroutine
  - The distribution itself is idempotent (batch ID derives from the
    cycle month), so an extra trigger or a restart mid-month is harmless
  - ErrDistributionInProgress from a concurrent manual trigger is logged
    and dropped; the cron job retries next cycle

CONFIGURATION:
  - CronSpec: standard 5-field cron expression (default: monthly)
  - Enabled: whether the scheduler starts at all

USAGE:
  scheduler := NewPoolScheduler(handler.Processor, "0 0 1 * *")
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: DistributePool endpoint (manual trigger)
  - engine/pool.go: DistributePassivePool
*/
package api

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/warp/commission-engine/engine"
)

// PoolScheduler handles automated pool distribution cycles.
type PoolScheduler struct {
	Processor *engine.Processor
	CronSpec  string
	Enabled   bool

	cron *cron.Cron
}

// NewPoolScheduler creates a scheduler with the given cron spec.
func NewPoolScheduler(processor *engine.Processor, cronSpec string) *PoolScheduler {
	return &PoolScheduler{
		Processor: processor,
		CronSpec:  cronSpec,
		Enabled:   true,
	}
}

// Start registers the cron job and begins scheduling.
func (ps *PoolScheduler) Start() error {
	if !ps.Enabled {
		log.Println("[PoolScheduler] Disabled, not starting")
		return nil
	}

	ps.cron = cron.New()
	if _, err := ps.cron.AddFunc(ps.CronSpec, ps.distribute); err != nil {
		return err
	}
	ps.cron.Start()

	log.Printf("[PoolScheduler] Started with schedule: %s", ps.CronSpec)
	return nil
}

// Stop stops the scheduler and waits for a running job to finish.
func (ps *PoolScheduler) Stop() {
	if ps.cron != nil {
		ctx := ps.cron.Stop()
		<-ctx.Done()
		log.Println("[PoolScheduler] Stopped")
	}
}

func (ps *PoolScheduler) distribute() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	result, err := ps.Processor.DistributePassivePool(ctx, time.Now().UTC())
	if err != nil {
		if errors.Is(err, engine.ErrDistributionInProgress) {
			log.Println("[PoolScheduler] Distribution already running, skipping")
			return
		}
		log.Printf("[PoolScheduler] Distribution failed: %v", err)
		return
	}

	if result.AlreadyApplied {
		log.Printf("[PoolScheduler] Batch %s already paid, nothing to do", result.BatchID)
		return
	}
	log.Printf("[PoolScheduler] Batch %s: paid %s to %d members (%s each, %s left in pool)",
		result.BatchID, result.DistributedAmount, result.Recipients,
		result.AmountPerMember, result.Leftover)
}
