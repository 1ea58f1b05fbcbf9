package storage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DefaultBatchSize is used when a batch size is not configured.
const DefaultBatchSize = 500

// CopyFn is a backend's bulk insert; Repository.CopyFrom satisfies it.
type CopyFn func(ctx context.Context, columns []string, rows [][]any) (int64, error)

// LoadBatches sends rows to copyFn in batches of batchSize and returns the
// number of rows copyFn reported. A progress line is logged per batch. It
// stops at the first error or when ctx is done.
func LoadBatches(
	ctx context.Context,
	columns []string,
	rows [][]any,
	batchSize int,
	copyFn CopyFn,
	log *zap.Logger,
) (int64, error) {
	if copyFn == nil {
		return 0, fmt.Errorf("copyFn must not be nil")
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if log == nil {
		log = zap.NewNop()
	}

	var (
		total   int64
		batches int
		start   = time.Now()
		last    = start
	)
	for lo := 0; lo < len(rows); lo += batchSize {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		hi := lo + batchSize
		if hi > len(rows) {
			hi = len(rows)
		}
		n, err := copyFn(ctx, columns, rows[lo:hi])
		total += n
		if err != nil {
			log.Error("batch insert failed", zap.Int("batch", batches+1),
				zap.Int64("inserted", n), zap.Int64("total", total), zap.Error(err))
			return total, err
		}
		batches++
		now := time.Now()
		since := now.Sub(last)
		rps := 0.0
		if since > 0 {
			rps = float64(n) / since.Seconds()
		}
		log.Debug("batch inserted",
			zap.Int("batch", batches),
			zap.Int64("rows", n),
			zap.Int64("total", total),
			zap.Float64("rows_per_sec", rps),
			zap.Duration("elapsed", now.Sub(start)))
		last = now
	}
	return total, nil
}
