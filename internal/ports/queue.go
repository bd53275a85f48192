package ports

import "github.com/tuan204-dev/iot-next/internal/domain"

type ReadingQueue interface {
	Enqueue(r *domain.Reading) bool
	// Peek returns up to max readings from the head without removing them.
	Peek(max int) []*domain.Reading
	// Drop removes n readings from the head.
	Drop(n int)
	Len() int
}
