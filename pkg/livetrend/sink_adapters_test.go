package livetrend

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tuan204-dev/iot-next/internal/domain"
)

func ptr(v float64) *float64 { return &v }

func TestNewCallbackSink(t *testing.T) {
	var received []Reading
	sink := NewCallbackSink("cb", func(_ context.Context, batch []Reading) error {
		received = append(received, batch...)
		return nil
	})

	in := &domain.Reading{Temperature: ptr(21.5), ReceivedAt: time.Unix(1, 0)}
	if err := sink.WriteBatch(context.Background(), []*domain.Reading{in}); err != nil {
		t.Fatalf("WriteBatch returned error: %v", err)
	}
	if len(received) != 1 {
		t.Fatalf("expected 1 batch entry, got %d", len(received))
	}

	*in.Temperature = 99
	got, _ := received[0].Value(Temperature)
	if got != 21.5 {
		t.Fatalf("expected batch to be detached from the queue, got %v", got)
	}
	if !received[0].ReceivedAt.Equal(in.ReceivedAt) {
		t.Fatalf("expected ReceivedAt to be copied")
	}
	if sink.Name() != "cb" {
		t.Fatalf("unexpected name %q", sink.Name())
	}
}

func TestNewCallbackSinkNilHandler(t *testing.T) {
	sink := NewCallbackSink("", nil)
	err := sink.WriteBatch(context.Background(), []*domain.Reading{{Light: ptr(1)}})
	if err == nil {
		t.Fatalf("expected error when callback is nil")
	}
}

func TestNewChannelSink(t *testing.T) {
	sink, ch, closeFn := NewChannelSink("chan", 1)
	defer closeFn()

	errCh := make(chan error, 1)
	go func() {
		errCh <- sink.WriteBatch(context.Background(), []*domain.Reading{{Humidity: ptr(40)}})
	}()

	var batch []Reading
	select {
	case batch = <-ch:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel batch")
	}

	if err := <-errCh; err != nil {
		t.Fatalf("WriteBatch returned error: %v", err)
	}
	if v, ok := batch[0].Value(Humidity); len(batch) != 1 || !ok || v != 40 {
		t.Fatalf("unexpected batch data: %+v", batch)
	}

	closeFn()
	if err := sink.WriteBatch(context.Background(), []*domain.Reading{{Humidity: ptr(1)}}); !errors.Is(err, ErrChannelSinkClosed) {
		t.Fatalf("expected ErrChannelSinkClosed, got %v", err)
	}
	if _, ok := <-ch; ok {
		t.Fatalf("expected channel closed after close")
	}
}

func TestChannelSinkCloseReleasesBlockedWriter(t *testing.T) {
	sink, _, closeFn := NewChannelSink("chan", 0)

	errCh := make(chan error, 1)
	go func() {
		errCh <- sink.WriteBatch(context.Background(), []*domain.Reading{{Light: ptr(1)}})
	}()
	time.Sleep(10 * time.Millisecond)
	closeFn()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrChannelSinkClosed) {
			t.Fatalf("expected ErrChannelSinkClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked writer was not released")
	}
}
