package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	iotnext "github.com/tuan204-dev/iot-next"
)

func main() {
	cfg, err := iotnext.LoadConfig("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	rt, err := iotnext.NewRuntime(cfg)
	if err != nil {
		log.Fatalf("build runtime: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rt.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalf("live runtime exited: %v", err)
	}
}
