package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"github.com/suhail953/wattflow"
)

func main() {
	flow, err := wattflow.Conf("../config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := flow.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("runtime exited: %v", err)
	}
}
