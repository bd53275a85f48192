package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os/signal"
	"syscall"
	"time"

	iotnext "github.com/tuan204-dev/iot-next"
)

// Publishes synthetic readings in-process and prints the merged trend.
func main() {
	cfg := iotnext.DefaultConfig()
	cfg.HTTP.Addr = "127.0.0.1:0"

	sink, batches, closeBatches := iotnext.NewChannelSink("fanout", 32)
	defer closeBatches()

	rt, err := iotnext.NewRuntime(cfg, iotnext.WithSink(sink))
	if err != nil {
		log.Fatalf("build runtime: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rt.Start(ctx); err != nil {
		log.Fatalf("start runtime: %v", err)
	}
	fmt.Printf("serving trend API on http://%s\n", rt.Addr())

	go fanoutWorker("archive", batches)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			if err := rt.Publish(ctx, synthetic()); err != nil {
				log.Printf("publish: %v", err)
				continue
			}
			rows := iotnext.Merge(rt.Window().Snapshot())
			if len(rows) > 0 {
				last := rows[len(rows)-1]
				fmt.Printf("%d rows, newest %s t=%.1f h=%.1f l=%.0f\n", len(rows), last.Time, last.Temperature, last.Humidity, last.Light)
			}
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rt.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("shutdown: %v", err)
	}
}

func synthetic() iotnext.Reading {
	var r iotnext.Reading
	r.Set(iotnext.Temperature, 20+rand.Float64()*8)
	r.Set(iotnext.Humidity, 40+rand.Float64()*30)
	if rand.Intn(3) == 0 {
		r.Set(iotnext.Light, 200+rand.Float64()*600)
	}
	return r
}

func fanoutWorker(name string, batches <-chan []iotnext.Reading) {
	for batch := range batches {
		fmt.Printf("[%s] forwarding %d readings at %s\n", name, len(batch), time.Now().Format(time.RFC3339))
	}
}
