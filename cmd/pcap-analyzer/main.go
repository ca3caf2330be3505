package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"PcapLens/internal/config"
	"PcapLens/internal/pipeline"
	"PcapLens/internal/pkg/logging"
	"PcapLens/internal/publisher"

	"github.com/spf13/cobra"
)

var cmd Cmd

// Cmd is the command line arguments.
type Cmd struct {
	ConfigPath string
	Input      string
	OutputDir  string
	Workers    int
	Publish    bool
	LogLevel   string
}

var rootCmd = &cobra.Command{
	Use:   "pcap-analyzer",
	Short: "Reduce a packet capture into bounded reports for troubleshooting",
	Run: func(_ *cobra.Command, _ []string) {
		if err := run(cmd); err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
			if errors.Is(err, pipeline.ErrOutput) {
				fmt.Fprintf(os.Stderr, "Output in %s is incomplete and should not be used.\n", cmd.OutputDir)
			}
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.Flags().StringVarP(&cmd.ConfigPath, "config", "c", "", "Path to the configuration file")
	rootCmd.Flags().StringVarP(&cmd.Input, "input", "i", "", "Input capture file (pcap or pcapng)")
	rootCmd.Flags().StringVarP(&cmd.OutputDir, "output-dir", "o", "ai_analysis", "Directory for the report artifacts")
	rootCmd.Flags().IntVarP(&cmd.Workers, "workers", "w", 0, "Number of classifier partitions (overrides config)")
	rootCmd.Flags().BoolVar(&cmd.Publish, "publish", false, "Publish the report to NATS (overrides config)")
	rootCmd.Flags().StringVar(&cmd.LogLevel, "log-level", "", "Log level (overrides config)")
	rootCmd.MarkFlagRequired("input")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd Cmd) error {
	cfg, err := config.LoadConfig(cmd.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Workers > 0 {
		cfg.Analyzer.NumWorkers = cmd.Workers
	}
	if cmd.Publish {
		cfg.Publisher.Enabled = true
	}
	if cmd.LogLevel != "" {
		cfg.Log.Level = cmd.LogLevel
	}

	log, err := logging.New(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer log.Sync()

	options := []pipeline.Option{pipeline.WithLog(log)}
	if cfg.Publisher.Enabled {
		pub, err := publisher.NewPublisher(cfg.Publisher, log)
		if err != nil {
			return err
		}
		defer pub.Close()
		options = append(options, pipeline.WithPublisher(pub))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bundle, err := pipeline.New(cfg, options...).Prepare(ctx, cmd.Input, cmd.OutputDir)
	if err != nil {
		return err
	}

	s := bundle.Summary
	log.Infof("Report written to %s: %d packets, %d errors (%d resets, %d retransmissions, %d DNS failures, %d HTTP errors)",
		cmd.OutputDir, s.Metadata.TotalPackets, s.ErrorSummary.TotalErrors,
		s.ErrorSummary.TCPResets, s.ErrorSummary.TCPRetransmissions,
		s.ErrorSummary.DNSFailures, s.ErrorSummary.HTTPErrors)
	return nil
}
