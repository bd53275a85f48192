package ports

import "github.com/tuan204-dev/iot-next/internal/domain"

// Collector delivers push events into out until Stop is called. After Stop
// returns no further readings are sent.
type Collector interface {
	Start(out chan<- *domain.Reading) error
	Stop() error
}

// Consumer receives every reading, in arrival order, from the live pipeline.
type Consumer interface {
	Consume(r *domain.Reading)
}
