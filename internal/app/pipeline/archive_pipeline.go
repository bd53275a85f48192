package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/tuan204-dev/iot-next/internal/ports"
)

// RunArchivePipeline writes queued readings to sink in batches until ctx ends.
// A batch is removed from the queue only after the sink accepted it; on error
// it stays at the head and is retried after the idle sleep.
func RunArchivePipeline(ctx context.Context, q ports.ReadingQueue, sink ports.Sink, pol ports.Policy, obs ports.Observability) {
	idle := pol.IdleSleep
	if idle <= 0 {
		idle = 50 * time.Millisecond
	}

	for {
		if ctx.Err() != nil {
			return
		}
		obs.SetGauge(ports.MetricArchiveQueueLen, float64(q.Len()))

		batch := q.Peek(pol.MaxBatchSize)
		if len(batch) == 0 {
			if !sleepCtx(ctx, idle) {
				return
			}
			continue
		}

		start := time.Now()
		if err := sink.WriteBatch(ctx, batch); err != nil {
			obs.IncCounter(ports.MetricArchiveFailed, 1)
			obs.LogError("archive_write_failed", err,
				ports.Field{Key: "sink", Value: sink.Name()},
				ports.Field{Key: "batch", Value: len(batch)})
			if !sleepCtx(ctx, idle) {
				return
			}
			continue
		}
		obs.ObserveLatency(ports.MetricArchiveSinkLatency, time.Since(start).Seconds())
		obs.IncCounter(ports.MetricReadingsArchived, float64(len(batch)))
		q.Drop(len(batch))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// FlushArchive writes what is still queued, one attempt per batch, and stops
// at the first failure. It is meant for shutdown after the archive loop has
// exited.
func FlushArchive(ctx context.Context, q ports.ReadingQueue, sink ports.Sink, pol ports.Policy, obs ports.Observability) error {
	for q.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch := q.Peek(pol.MaxBatchSize)
		if err := sink.WriteBatch(ctx, batch); err != nil {
			obs.IncCounter(ports.MetricArchiveFailed, 1)
			return fmt.Errorf("flush %s: %w", sink.Name(), err)
		}
		obs.IncCounter(ports.MetricReadingsArchived, float64(len(batch)))
		q.Drop(len(batch))
	}
	obs.SetGauge(ports.MetricArchiveQueueLen, 0)
	return nil
}
