package livetrend

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tuan204-dev/iot-next/internal/domain"
)

// ErrChannelSinkClosed is returned when a channel sink is written to after being closed.
var ErrChannelSinkClosed = errors.New("livetrend: channel sink closed")

// BatchFunc is invoked with ordered batches dequeued from the archive queue.
type BatchFunc func(ctx context.Context, batch []Reading) error

// NewCallbackSink adapts a BatchFunc into a Sink so callers can archive
// readings without defining a type. A returned error keeps the batch queued
// for retry.
func NewCallbackSink(name string, fn BatchFunc) Sink {
	if name == "" {
		name = "callback"
	}
	return &callbackSink{name: name, fn: fn}
}

// NewChannelSink exposes batches via a channel; it returns the sink, the read-only channel,
// and a close function that the caller should invoke during shutdown.
func NewChannelSink(name string, buffer int) (Sink, <-chan []Reading, func()) {
	if name == "" {
		name = "channel"
	}
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan []Reading, buffer)
	s := &channelSink{
		name:   name,
		ch:     ch,
		closed: make(chan struct{}),
	}
	return s, ch, func() { s.close() }
}

type callbackSink struct {
	name string
	fn   BatchFunc
}

func (s *callbackSink) WriteBatch(ctx context.Context, readings []*domain.Reading) error {
	if s.fn == nil {
		return fmt.Errorf("callback sink %q: nil handler", s.name)
	}
	if len(readings) == 0 {
		return nil
	}
	return s.fn(ctx, copyBatch(readings))
}

func (s *callbackSink) Name() string { return s.name }

type channelSink struct {
	name   string
	ch     chan []Reading
	closed chan struct{}
	once   sync.Once
	// mu keeps close(ch) from racing a pending send.
	mu sync.RWMutex
}

func (s *channelSink) WriteBatch(ctx context.Context, readings []*domain.Reading) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	select {
	case <-s.closed:
		return ErrChannelSinkClosed
	default:
	}

	if len(readings) == 0 {
		return nil
	}

	batch := copyBatch(readings)

	select {
	case <-s.closed:
		return ErrChannelSinkClosed
	case <-ctx.Done():
		return ctx.Err()
	case s.ch <- batch:
		return nil
	}
}

func (s *channelSink) Name() string { return s.name }

func (s *channelSink) close() {
	s.once.Do(func() {
		close(s.closed)
		s.mu.Lock()
		close(s.ch)
		s.mu.Unlock()
	})
}

// copyBatch detaches the batch from the queue's readings.
func copyBatch(readings []*domain.Reading) []Reading {
	out := make([]Reading, 0, len(readings))
	for _, r := range readings {
		if r == nil {
			continue
		}
		out = append(out, *r.Clone())
	}
	return out
}
