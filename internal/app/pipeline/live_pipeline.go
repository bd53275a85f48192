package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tuan204-dev/iot-next/internal/domain"
	"github.com/tuan204-dev/iot-next/internal/ports"
)

// RunLivePipeline starts col and hands every reading, in arrival order, to each
// consumer. Readings without a receive time are stamped here so every consumer
// sees the same timestamp. The returned channel is closed once delivery stops,
// which happens when ctx ends or the collector closes its channel.
func RunLivePipeline(ctx context.Context, col ports.Collector, pol ports.Policy, obs ports.Observability, consumers ...ports.Consumer) (<-chan struct{}, error) {
	buf := pol.MaxQueueLen
	if buf < 0 {
		buf = 0
	}
	ch := make(chan *domain.Reading, buf)

	if err := col.Start(ch); err != nil {
		return nil, fmt.Errorf("start collector: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case r, ok := <-ch:
				if !ok {
					return
				}
				if r == nil {
					continue
				}
				if r.ReceivedAt.IsZero() {
					r.ReceivedAt = time.Now()
				}
				obs.IncCounter(ports.MetricReadingsReceived, 1)
				for _, c := range consumers {
					c.Consume(r)
				}
			}
		}
	}()

	return done, nil
}

// Archiver is the consumer that hands readings to the archive queue.
type Archiver struct {
	queue ports.ReadingQueue
	pol   ports.Policy
	obs   ports.Observability
	stop  chan struct{}
	once  sync.Once
}

func NewArchiver(q ports.ReadingQueue, pol ports.Policy, obs ports.Observability) *Archiver {
	return &Archiver{queue: q, pol: pol, obs: obs, stop: make(chan struct{})}
}

func (a *Archiver) Consume(r *domain.Reading) {
	if r.Empty() {
		return
	}
	if !enqueueWithPolicy(a.stop, a.queue, r, a.pol, a.obs) {
		a.obs.IncCounter(ports.MetricArchiveDropped, 1)
	}
}

// Close releases a Consume call blocked on a full queue.
func (a *Archiver) Close() {
	a.once.Do(func() { close(a.stop) })
}

func enqueueWithPolicy(stop <-chan struct{}, q ports.ReadingQueue, r *domain.Reading, pol ports.Policy, obs ports.Observability) bool {
	sleep := pol.IdleSleep
	if sleep <= 0 {
		sleep = 5 * time.Millisecond
	}

	for {
		if ok := q.Enqueue(r); ok {
			return true
		}

		switch pol.OnQueueFull {
		case "block":
			select {
			case <-stop:
				return false
			case <-time.After(sleep):
			}
		case "drop", "reject":
			obs.LogError("archive_queue_full", fmt.Errorf("queue length exceeded capacity %d", pol.MaxQueueLen))
			return false
		default:
			obs.LogError("queue_policy_invalid", fmt.Errorf("policy=%s", pol.OnQueueFull))
			return false
		}
	}
}
