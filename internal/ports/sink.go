package ports

import (
	"context"

	"github.com/tuan204-dev/iot-next/internal/domain"
)

type Sink interface {
	WriteBatch(ctx context.Context, readings []*domain.Reading) error
	Name() string
}
