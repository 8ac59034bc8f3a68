package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/suhail953/wattflow"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "wattflow",
		Short:        "Wattmon telemetry ingestion over MQTT and HTTP",
		SilenceUsage: true,
	}
	root.AddCommand(newRunCmd(), newValidateCmd(), newStatsCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the broker, HTTP API and store using the provided config",
		RunE: func(cmd *cobra.Command, _ []string) error {
			flow, err := wattflow.Conf(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
			slog.SetDefault(logger)
			flow.Options(wattflow.WithLogger(logger))

			if err := flow.Run(ctx); err != nil {
				return err
			}
			logger.Info("wattflow stopped")
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "Path to configuration file (defaults + environment when empty)")
	return cmd
}

func newValidateCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate a config file without starting the runtime",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := wattflow.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config %s looks good: store=%s mqtt=%s http=%s\n",
				displayPath(cfgPath), cfg.Store.Driver, cfg.MQTT.Mode, cfg.HTTP.Addr)
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "Path to configuration file to validate")
	return cmd
}

func newStatsCmd() *cobra.Command {
	var (
		url      string
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Poll the Prometheus metrics endpoint and print live counters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return streamStats(ctx, cmd, url, interval)
		},
	}
	cmd.Flags().StringVar(&url, "url", "http://localhost:9100/metrics", "Prometheus metrics endpoint")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "Refresh interval")
	return cmd
}

func streamStats(ctx context.Context, cmd *cobra.Command, url string, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	fmt.Fprintf(cmd.OutOrStdout(), "Streaming metrics from %s (Ctrl+C to stop)\n", url)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			line, err := metricsSnapshot(ctx, url)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "stats error: %v\n", err)
				continue
			}
			fmt.Fprintln(cmd.OutOrStdout(), line)
		}
	}
}

var statsTargets = []string{
	"wattflow_records_committed_total",
	"wattflow_samples_ingested_total",
	"wattflow_ingest_failed_total",
	"wattflow_mqtt_clients",
	"wattflow_store_connected",
	"wattflow_stored_records",
}

func metricsSnapshot(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %s", resp.Status)
	}

	values := make(map[string]float64, len(statsTargets))
	var rejected float64
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "wattflow_ingest_rejected_total{") {
			var v float64
			if _, err := fmt.Sscanf(line[strings.LastIndexByte(line, ' ')+1:], "%g", &v); err == nil {
				rejected += v
			}
			continue
		}
		for _, key := range statsTargets {
			if strings.HasPrefix(line, key+" ") {
				var v float64
				if _, err := fmt.Sscanf(line, key+" %g", &v); err == nil {
					values[key] = v
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}

	return fmt.Sprintf("[%s] records=%.0f samples=%.0f rejected=%.0f failed=%.0f clients=%.0f store_up=%.0f stored=%.0f",
		time.Now().Format(time.RFC3339),
		values["wattflow_records_committed_total"],
		values["wattflow_samples_ingested_total"],
		rejected,
		values["wattflow_ingest_failed_total"],
		values["wattflow_mqtt_clients"],
		values["wattflow_store_connected"],
		values["wattflow_stored_records"],
	), nil
}

func displayPath(p string) string {
	if p == "" {
		return "(defaults)"
	}
	return p
}
