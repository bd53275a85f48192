// Package channel provides an in-process collector that callers push
// readings into.
package channel

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tuan204-dev/iot-next/internal/domain"
	"github.com/tuan204-dev/iot-next/internal/ports"
)

var (
	ErrCollectorStopped    = errors.New("channel collector: stopped")
	ErrCollectorNotStarted = errors.New("channel collector: not started")
)

type Collector struct {
	mu      sync.RWMutex
	out     chan<- *domain.Reading
	started bool
	stopped chan struct{}
	once    sync.Once
	now     func() time.Time
}

func New() *Collector {
	return &Collector{stopped: make(chan struct{}), now: time.Now}
}

func (c *Collector) Start(out chan<- *domain.Reading) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return errors.New("channel collector already started")
	}
	select {
	case <-c.stopped:
		return ErrCollectorStopped
	default:
	}
	c.out = out
	c.started = true
	return nil
}

func (c *Collector) Stop() error {
	c.once.Do(func() { close(c.stopped) })
	return nil
}

// Publish hands a copy of r to the pipeline. It blocks while the pipeline is
// busy, until ctx is done or the collector stops.
func (c *Collector) Publish(ctx context.Context, r domain.Reading) error {
	c.mu.RLock()
	out, started := c.out, c.started
	c.mu.RUnlock()
	if !started {
		return ErrCollectorNotStarted
	}

	cp := r.Clone()
	if cp.ReceivedAt.IsZero() {
		cp.ReceivedAt = c.now()
	}

	select {
	case <-c.stopped:
		return ErrCollectorStopped
	default:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.stopped:
		return ErrCollectorStopped
	case out <- cp:
		return nil
	}
}

var _ ports.Collector = (*Collector)(nil)
