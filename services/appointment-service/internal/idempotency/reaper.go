package idempotency

import (
	"context"
	"log/slog"
	"time"

	"github.com/garageboard/garageboard/libs/db"
)

// Reaper deletes expired idempotency keys in bounded batches. Expiry only
// disables further replay/conflict detection for a key; appointments created
// through it are unaffected.
type Reaper struct {
	pool      *db.Pool
	logger    *slog.Logger
	pollEvery time.Duration
	batchSize int
}

type ReaperConfig struct {
	PollEvery time.Duration
	BatchSize int
}

func NewReaper(pool *db.Pool, logger *slog.Logger, cfg ReaperConfig) *Reaper {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	return &Reaper{
		pool:      pool,
		logger:    logger,
		pollEvery: cfg.PollEvery,
		batchSize: cfg.BatchSize,
	}
}

func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := r.reapBatch(ctx)
			if err != nil {
				r.logger.Error("idempotency reap failed", "err", err)
				continue
			}
			if n > 0 {
				r.logger.Info("expired idempotency keys purged", "count", n)
			}
		}
	}
}

func (r *Reaper) reapBatch(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM appointment_idempotency_keys
		WHERE (tenant_id, idempotency_key) IN (
			SELECT tenant_id, idempotency_key
			FROM appointment_idempotency_keys
			WHERE expires_at < now()
			LIMIT $1
		)
	`, r.batchSize)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
