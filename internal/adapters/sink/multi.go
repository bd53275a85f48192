package sink

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tuan204-dev/iot-next/internal/domain"
	"github.com/tuan204-dev/iot-next/internal/ports"
)

// Multi writes every batch to each sink in order. A failure in one sink
// does not stop the others; the batch is reported failed and replayed, so
// members must tolerate duplicates.
type Multi struct {
	sinks []ports.Sink
}

func NewMulti(sinks ...ports.Sink) *Multi {
	return &Multi{sinks: sinks}
}

func (m *Multi) Name() string {
	names := make([]string, len(m.sinks))
	for i, s := range m.sinks {
		names[i] = s.Name()
	}
	return strings.Join(names, "+")
}

func (m *Multi) WriteBatch(ctx context.Context, readings []*domain.Reading) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.WriteBatch(ctx, readings); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

var _ ports.Sink = (*Multi)(nil)
