package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/cefr-exam-engine/internal/config"
	"github.com/stemsi/cefr-exam-engine/internal/model"
)

const (
	SweepBatchSize = 200
	SweepTimeout   = 30 * time.Second
)

// Expirer finalizes one page of overdue sessions after the cursor.
// Implemented by service.ExamSessionService.
type Expirer interface {
	ExpireOverdue(ctx context.Context, after *model.SessionRef, limit int) (model.SweepBatch, error)
}

// Lease grants one instance the right to sweep for the current tick.
type Lease interface {
	Acquire(ctx context.Context) (bool, error)
}

// ExpirySweeper periodically auto-submits active sessions whose deadline has passed.
type ExpirySweeper struct {
	expirer  Expirer
	lease    Lease
	interval time.Duration
	log      zerolog.Logger
}

// NewExpirySweeper creates a sweeper. A nil lease sweeps on every tick.
func NewExpirySweeper(expirer Expirer, lease Lease, interval time.Duration, log zerolog.Logger) *ExpirySweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ExpirySweeper{
		expirer:  expirer,
		lease:    lease,
		interval: interval,
		log:      log.With().Str("component", "expiry_sweeper").Logger(),
	}
}

// Start runs the sweep loop until ctx is cancelled. The first sweep runs immediately.
func (w *ExpirySweeper) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("ExpirySweeper started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("ExpirySweeper stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *ExpirySweeper) sweep(ctx context.Context) {
	if w.lease != nil {
		ok, err := w.lease.Acquire(ctx)
		if err != nil {
			w.log.Warn().Err(err).Msg("lease unavailable, sweeping anyway")
		} else if !ok {
			w.log.Debug().Msg("another instance holds the sweep lease")
			return
		}
	}

	ctx, cancel := context.WithTimeout(ctx, SweepTimeout)
	defer cancel()

	var cursor *model.SessionRef
	total := 0
	for {
		batch, err := w.expirer.ExpireOverdue(ctx, cursor, SweepBatchSize)
		total += batch.Finalized
		if err != nil {
			if ctx.Err() == nil {
				w.log.Error().Err(err).Msg("sweep failed")
			}
			break
		}
		// Sessions that failed stay active, so paging follows the cursor
		// rather than re-listing from the start.
		if batch.Listed < SweepBatchSize || batch.Next == nil {
			break
		}
		cursor = batch.Next
	}
	if total > 0 {
		w.log.Info().Int("count", total).Msg("overdue sessions finalized")
	}
}

// RedisLease is a Lease backed by SET NX PX, shared by every instance.
type RedisLease struct {
	rdb   *redis.Client
	key   string
	owner string
	ttl   time.Duration
}

// NewRedisLease creates a lease that lasts slightly less than one sweep interval.
func NewRedisLease(rdb *redis.Client, interval time.Duration) *RedisLease {
	ttl := interval * 9 / 10
	if ttl <= 0 {
		ttl = time.Second
	}
	return &RedisLease{
		rdb:   rdb,
		key:   config.CacheKey.SweeperLeaseKey(),
		owner: uuid.NewString(),
		ttl:   ttl,
	}
}

// Acquire implements Lease.
func (l *RedisLease) Acquire(ctx context.Context) (bool, error) {
	return l.rdb.SetNX(ctx, l.key, l.owner, l.ttl).Result()
}
