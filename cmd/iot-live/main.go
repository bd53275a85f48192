package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	iotnext "github.com/tuan204-dev/iot-next"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run":
		err = runCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "stats":
		err = statsCommand(os.Args[2:])
	case "trend":
		err = trendCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		log.Fatalf("iot-live %s: %v", cmd, err)
	}
}

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := iotnext.LoadConfig(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	rt, err := iotnext.NewRuntime(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return rt.Run(ctx)
}

func validateCommand(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to configuration file to validate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := iotnext.LoadConfig(*cfgPath)
	if err != nil {
		return err
	}
	fmt.Printf("config %s looks good (source=%s, http=%s)\n", *cfgPath, cfg.Source.Kind, cfg.HTTP.Addr)
	return nil
}

func statsCommand(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	endpoint := fs.String("url", "http://localhost:9100/metrics", "Prometheus metrics endpoint")
	interval := fs.Duration("interval", 2*time.Second, "Refresh interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	fmt.Printf("Streaming metrics from %s (Ctrl+C to stop)\n", *endpoint)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := printMetricsSnapshot(ctx, *endpoint); err != nil {
				fmt.Fprintf(os.Stderr, "stats error: %v\n", err)
			}
		}
	}
}

var statsTargets = []string{
	"iot_readings_received_total",
	"iot_readings_archived_total",
	"iot_archive_dropped_total",
	"iot_archive_queue_length",
	"iot_live_sessions",
}

func printMetricsSnapshot(ctx context.Context, endpoint string) error {
	body, err := get(ctx, endpoint)
	if err != nil {
		return err
	}
	defer body.Close()

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(body)
	if err != nil {
		return fmt.Errorf("parse metrics: %w", err)
	}

	fmt.Printf("[%s]", time.Now().Format(time.RFC3339))
	for _, name := range statsTargets {
		fmt.Printf(" %s=%g", name, familyValue(families[name]))
	}
	fmt.Println()
	return nil
}

func familyValue(mf *dto.MetricFamily) float64 {
	if mf == nil || len(mf.GetMetric()) == 0 {
		return 0
	}
	m := mf.GetMetric()[0]
	switch mf.GetType() {
	case dto.MetricType_COUNTER:
		return m.GetCounter().GetValue()
	case dto.MetricType_GAUGE:
		return m.GetGauge().GetValue()
	default:
		return m.GetUntyped().GetValue()
	}
}

func trendCommand(args []string) error {
	fs := flag.NewFlagSet("trend", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:9100", "Base URL of a running iot-live")
	metric := fs.String("metric", "light", "Metric to highlight: temperature, humidity or light")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	body, err := get(ctx, *addr+"/api/trend?metric="+url.QueryEscape(*metric))
	if err != nil {
		return err
	}
	defer body.Close()

	var trend struct {
		Metric string             `json:"metric"`
		Unit   string             `json:"unit"`
		Rows   []iotnext.ChartRow `json:"rows"`
	}
	if err := json.NewDecoder(body).Decode(&trend); err != nil {
		return fmt.Errorf("decode trend: %w", err)
	}

	fmt.Printf("%s (%s), %d rows\n", trend.Metric, trend.Unit, len(trend.Rows))
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "time\ttemperature\thumidity\tlight\t")
	for _, r := range trend.Rows {
		fmt.Fprintf(tw, "%s\t%.1f\t%.1f\t%.0f\t\n", r.Time, r.Temperature, r.Humidity, r.Light)
	}
	return tw.Flush()
}

func get(ctx context.Context, target string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return resp.Body, nil
}

func printUsage() {
	fmt.Printf(`iot-live CLI

Usage:
  iot-live <command> [flags]

Commands:
  run        Start the live trend service using the provided config
  validate   Load and validate a config file without starting the service
  stats      Poll the Prometheus metrics endpoint and print live counters
  trend      Print the merged trend rows of a running service

Examples:
  iot-live run -config ./data/config.yaml
  iot-live validate -config ./data/config.yaml
  iot-live stats -url http://localhost:9100/metrics -interval 1s
  iot-live trend -addr http://localhost:9100 -metric temperature
`)
}
