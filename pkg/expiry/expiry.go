// Package expiry moves transfers that were never funded to EXPIRED and
// purges idempotency records past their TTL.
package expiry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/chainsafe/remittance-middleware/internal/metrics"
	"github.com/chainsafe/remittance-middleware/pkg/audit"
	"github.com/chainsafe/remittance-middleware/pkg/db/dao"
	"github.com/chainsafe/remittance-middleware/pkg/notify"
	"github.com/chainsafe/remittance-middleware/pkg/transfer"
	transferstore "github.com/chainsafe/remittance-middleware/pkg/transfer/store"
)

const actorID = "transfer-expiry-job"

// Config tunes the sweep.
type Config struct {
	ExpiryMinutes int
	BatchSize     int
}

// Result lists the transfers expired by one sweep.
type Result struct {
	ExpiredCount int      `json:"expiredCount"`
	TransferIDs  []string `json:"transferIds"`
}

// Purger removes expired idempotency records.
type Purger interface {
	Purge(ctx context.Context) (int, error)
}

// Sweeper expires stale AWAITING_FUNDING transfers.
type Sweeper struct {
	db         *bun.DB
	cfg        Config
	dispatcher notify.Dispatcher
	now        func() time.Time
	logger     *zap.Logger
}

// NewSweeper returns a Sweeper. Non-positive settings fall back to 60 minutes and 100 transfers.
func NewSweeper(db *bun.DB, cfg Config, dispatcher notify.Dispatcher, logger *zap.Logger) *Sweeper {
	if cfg.ExpiryMinutes < 1 {
		cfg.ExpiryMinutes = 60
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 100
	}
	return &Sweeper{db: db, cfg: cfg, dispatcher: dispatcher, now: time.Now, logger: logger}
}

// RunOnce expires up to one batch of transfers created more than ExpiryMinutes ago.
// Rows locked by a concurrent writer are skipped and picked up by a later sweep.
func (s *Sweeper) RunOnce(ctx context.Context) (*Result, error) {
	now := s.now().UTC()
	cutoff := now.Add(-time.Duration(s.cfg.ExpiryMinutes) * time.Minute)
	res := &Result{TransferIDs: []string{}}

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var ids []string
		err := tx.NewSelect().
			Model((*dao.TransferDao)(nil)).
			Column("transfer_id").
			Where("status = ?", transfer.StatusAwaitingFunding).
			Where("created_at < ?", cutoff).
			Order("created_at ASC").
			Limit(s.cfg.BatchSize).
			For("UPDATE SKIP LOCKED").
			Scan(ctx, &ids)
		if err != nil {
			return fmt.Errorf("failed to select expirable transfers: %w", err)
		}

		for _, id := range ids {
			meta := map[string]any{"reason": "expiry_job", "expiryMinutes": s.cfg.ExpiryMinutes}
			outcome, _, err := transferstore.Advance(ctx, tx, id, transfer.StatusExpired, now, meta)
			if err != nil {
				return err
			}
			if outcome != transfer.Applied {
				continue
			}
			if err := transferstore.RetireRoutes(ctx, tx, id, now); err != nil {
				return err
			}
			if err := audit.Insert(ctx, tx, audit.Entry{
				ActorType:  audit.ActorSystem,
				ActorID:    actorID,
				Action:     "transfer_expired",
				EntityType: "transfer",
				EntityID:   id,
				Reason:     "Transfer was not funded in time",
				Metadata:   meta,
				CreatedAt:  now,
			}); err != nil {
				return fmt.Errorf("failed to append audit entry: %w", err)
			}
			res.TransferIDs = append(res.TransferIDs, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	res.ExpiredCount = len(res.TransferIDs)

	for _, id := range res.TransferIDs {
		notify.Send(ctx, s.dispatcher, s.logger, notify.Event{
			Type:       notify.Expired,
			TransferID: id,
			Fields:     map[string]string{"reason": "expiry_job"},
			OccurredAt: now,
		})
	}
	metrics.TransfersExpired.Add(float64(res.ExpiredCount))
	return res, nil
}

// Job runs the sweep and the idempotency purge on an interval.
type Job struct {
	sweeper *Sweeper
	purger  Purger
	timeout time.Duration
	logger  *zap.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewJob creates a new Job. purger may be nil.
func NewJob(sweeper *Sweeper, purger Purger, timeout time.Duration, logger *zap.Logger) *Job {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Job{sweeper: sweeper, purger: purger, timeout: timeout, logger: logger, stopCh: make(chan struct{})}
}

// Start runs Tick once per interval until Stop.
func (j *Job) Start(interval time.Duration) {
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		j.logger.Info("Started expiry job", zap.Duration("interval", interval))
		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
				j.Tick(ctx)
				cancel()
			case <-j.stopCh:
				j.logger.Info("Stopping expiry job")
				return
			}
		}
	}()
}

// Stop stops the job and waits for an in-flight tick.
func (j *Job) Stop() {
	close(j.stopCh)
	j.wg.Wait()
}

// Tick performs one sweep and one purge, logging failures.
func (j *Job) Tick(ctx context.Context) {
	res, err := j.sweeper.RunOnce(ctx)
	if err != nil {
		j.logger.Error("Transfer expiry sweep failed", zap.Error(err))
	} else if res.ExpiredCount > 0 {
		j.logger.Info("Expired transfers", zap.Int("count", res.ExpiredCount), zap.Strings("transfer_ids", res.TransferIDs))
	}

	if j.purger == nil {
		return
	}
	n, err := j.purger.Purge(ctx)
	if err != nil {
		j.logger.Error("Idempotency purge failed", zap.Error(err))
		return
	}
	if n > 0 {
		j.logger.Info("Purged expired idempotency records", zap.Int("count", n))
	}
}
