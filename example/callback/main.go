package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	iotnext "github.com/tuan204-dev/iot-next"
)

func main() {
	cfg, err := iotnext.LoadConfig("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	callback := func(_ context.Context, batch []iotnext.Reading) error {
		for _, r := range batch {
			fmt.Printf("%s", r.ReceivedAt.Format(time.RFC3339Nano))
			for _, m := range []iotnext.Metric{iotnext.Temperature, iotnext.Humidity, iotnext.Light} {
				if v, ok := r.Value(m); ok {
					fmt.Printf(" %s=%g", m, v)
				}
			}
			fmt.Println()
		}
		return nil
	}

	rt, err := iotnext.NewRuntime(cfg, iotnext.WithSink(iotnext.NewCallbackSink("stdout", callback)))
	if err != nil {
		log.Fatalf("build runtime: %v", err)
	}

	if err := rt.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalf("runtime error: %v", err)
	}
}
