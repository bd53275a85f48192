package channel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tuan204-dev/iot-next/internal/domain"
)

func TestPublishDeliversCopy(t *testing.T) {
	c := New()
	fixed := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	c.now = func() time.Time { return fixed }

	out := make(chan *domain.Reading, 1)
	if err := c.Start(out); err != nil {
		t.Fatalf("start: %v", err)
	}

	v := 21.0
	if err := c.Publish(context.Background(), domain.Reading{Temperature: &v}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	v = 99

	got := <-out
	if temp, _ := got.Value(domain.Temperature); temp != 21 {
		t.Fatalf("expected copied value 21, got %v", temp)
	}
	if !got.ReceivedAt.Equal(fixed) {
		t.Fatalf("expected ReceivedAt stamped, got %v", got.ReceivedAt)
	}
}

func TestPublishBeforeStart(t *testing.T) {
	c := New()
	if err := c.Publish(context.Background(), domain.Reading{}); !errors.Is(err, ErrCollectorNotStarted) {
		t.Fatalf("expected ErrCollectorNotStarted, got %v", err)
	}
}

func TestPublishAfterStop(t *testing.T) {
	c := New()
	out := make(chan *domain.Reading)
	if err := c.Start(out); err != nil {
		t.Fatalf("start: %v", err)
	}
	_ = c.Stop()
	_ = c.Stop()

	if err := c.Publish(context.Background(), domain.Reading{}); !errors.Is(err, ErrCollectorStopped) {
		t.Fatalf("expected ErrCollectorStopped, got %v", err)
	}
	if err := c.Start(out); err == nil {
		t.Fatalf("expected restart to fail")
	}
}

func TestPublishHonoursContext(t *testing.T) {
	c := New()
	if err := c.Start(make(chan *domain.Reading)); err != nil {
		t.Fatalf("start: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := c.Publish(ctx, domain.Reading{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
