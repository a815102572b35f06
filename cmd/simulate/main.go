// Command simulate streams synthetic sightings into the identity tracker.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/okian/sightline/internal/adapters/mq/kafka"
	"github.com/okian/sightline/internal/simulate"
	"github.com/okian/sightline/pkg/logger"
)

func main() {
	// .env file is optional
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &simulate.Config{}
	var start string

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Stream synthetic camera sightings into the identity tracker",
		Long: `simulate generates walk-bys of a synthetic customer population across a
set of cameras and submits every frame either to POST /sightings or to the
sighting topic on Kafka.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if start != "" {
				ts, err := time.Parse(time.RFC3339, start)
				if err != nil {
					return fmt.Errorf("invalid --start: %w", err)
				}
				cfg.Start = ts.UTC()
			}
			return run(cmd.Context(), cfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.Transport, "transport", simulate.TransportHTTP, "Submission transport: http or kafka")
	f.StringVar(&cfg.BaseURL, "url", envOr("IDT_SIMULATE_URL", "http://localhost:8000"), "Base URL of the service")
	f.StringVar(&cfg.Brokers, "brokers", envOr("IDT_KAFKA_BOOTSTRAP_SERVERS", "localhost:9092"), "Kafka bootstrap servers")
	f.StringVar(&cfg.Topic, "topic", envOr("IDT_KAFKA_CONSUMER_TOPIC", "camera-sighting-events"), "Kafka sighting topic")
	f.IntVar(&cfg.Customers, "customers", 20, "Size of the simulated customer population")
	f.IntVar(&cfg.Cameras, "cameras", 4, "Number of cameras")
	f.IntVar(&cfg.Visits, "visits", 100, "Number of walk-bys to generate")
	f.IntVar(&cfg.SightingsPerVisit, "frames", 3, "Sightings per walk-by")
	f.DurationVar(&cfg.FrameInterval, "interval", time.Second, "Time between frames of one walk-by")
	f.StringVar(&start, "start", "", "RFC3339 timestamp of the first sighting (default now)")
	f.Uint64Var(&cfg.Seed, "seed", uint64(time.Now().UnixNano()), "Random seed")
	f.IntVar(&cfg.Workers, "workers", 4, "Concurrent submitters")
	f.DurationVar(&cfg.Timeout, "timeout", 10*time.Second, "HTTP request timeout")
	f.BoolVar(&cfg.Verbose, "verbose", false, "Log every failed submission")
	return cmd
}

func run(parent context.Context, cfg *simulate.Config) error {
	if err := logger.Init(); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cfg.Validate(); err != nil {
		return err
	}

	var sink simulate.Sink
	switch cfg.Transport {
	case simulate.TransportKafka:
		p, err := kafka.NewProducer(cfg.Brokers, cfg.Topic)
		if err != nil {
			return err
		}
		defer p.Close()
		sink = simulate.NewKafkaSink(p)
	default:
		sink = simulate.NewHTTPSink(cfg.BaseURL, cfg.Timeout)
	}

	stats, err := simulate.Run(ctx, cfg, sink, os.Stderr)
	fmt.Printf("\ngenerated=%d submitted=%d failed=%d duration=%s\n",
		stats.Generated, stats.Submitted, stats.Failed, stats.Duration.Round(time.Millisecond))
	return err
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
