package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/suhail953/wattflow"
)

func main() {
	flow, err := wattflow.Conf("../config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mirror, records, closeRecords := wattflow.NewChannelMirror("fanout", 32)
	defer closeRecords()

	go fanoutWorker("ingest", records)

	if err := flow.Run(ctx, wattflow.StreamOutMirror(mirror)); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("runtime error: %v", err)
	}
}

func fanoutWorker(name string, records <-chan wattflow.Record) {
	for rec := range records {
		fmt.Printf("[%s] %s from %s: %d samples at %s\n",
			name, rec.Mac, rec.Source, len(rec.Samples), time.Now().Format(time.RFC3339))
	}
}
