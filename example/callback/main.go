package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/suhail953/wattflow/pkg/wattflow"
)

func main() {
	flow, err := wattflow.Conf("../config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	callback := func(_ context.Context, rec wattflow.Record) error {
		for _, sample := range rec.Samples {
			fmt.Printf("%s mac=%s source=%s ts=%d power=%s voltage=%s\n",
				rec.ReceivedAt.Format(time.RFC3339Nano),
				rec.Mac,
				rec.Source,
				sample.Timestamp,
				fmtReading(sample.Power),
				fmtReading(sample.Voltage),
			)
		}
		return nil
	}

	if err := flow.Run(ctx, wattflow.StreamOutCallback("stdout", callback)); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("runtime error: %v", err)
	}
}

func fmtReading(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *v)
}
