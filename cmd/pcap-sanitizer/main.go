package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"PcapLens/internal/config"
	"PcapLens/internal/pipeline"
	"PcapLens/internal/pkg/logging"

	"github.com/spf13/cobra"
)

var cmd Cmd

// Cmd is the command line arguments.
type Cmd struct {
	ConfigPath           string
	Input                string
	Output               string
	NoPreservePrivateIPs bool
	LogLevel             string
}

var rootCmd = &cobra.Command{
	Use:   "pcap-sanitizer",
	Short: "Anonymize a packet capture while preserving its traffic shape",
	Run: func(_ *cobra.Command, _ []string) {
		if err := run(cmd); err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.Flags().StringVarP(&cmd.ConfigPath, "config", "c", "", "Path to the configuration file")
	rootCmd.Flags().StringVarP(&cmd.Input, "input", "i", "", "Input capture file (pcap or pcapng)")
	rootCmd.Flags().StringVarP(&cmd.Output, "output", "o", "", "Output capture file (default: sanitized_capture_<timestamp>.cap next to the input)")
	rootCmd.Flags().BoolVar(&cmd.NoPreservePrivateIPs, "no-preserve-private-ips", false, "Map private addresses into the documentation range as well")
	rootCmd.Flags().StringVar(&cmd.LogLevel, "log-level", "", "Log level (overrides config)")
	rootCmd.MarkFlagRequired("input")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

// defaultOutput names the output after the current time, next to the input.
func defaultOutput(input string, now time.Time) string {
	return filepath.Join(filepath.Dir(input), "sanitized_capture_"+now.Format("20060102_150405")+".cap")
}

func run(cmd Cmd) error {
	cfg, err := config.LoadConfig(cmd.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.NoPreservePrivateIPs {
		cfg.Sanitizer.PreserveInternalIPs = false
	}
	if cmd.LogLevel != "" {
		cfg.Log.Level = cmd.LogLevel
	}
	if cmd.Output == "" {
		cmd.Output = defaultOutput(cmd.Input, time.Now())
	}

	log, err := logging.New(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stats, err := pipeline.New(cfg, pipeline.WithLog(log)).Sanitize(ctx, cmd.Input, cmd.Output)
	if err != nil {
		return err
	}

	fmt.Printf("Sanitized %d packets into %s\n", stats.TotalPackets, cmd.Output)
	fmt.Printf("  IP addresses anonymized:  %d\n", stats.IPAnonymized)
	fmt.Printf("  MAC addresses anonymized: %d\n", stats.MACAnonymized)
	fmt.Printf("  DNS messages sanitized:   %d\n", stats.DNSSanitized)
	fmt.Printf("  HTTP headers redacted:    %d\n", stats.HTTPSanitized)
	fmt.Printf("  TLS server names:         %d\n", stats.TLSSanitized)
	fmt.Printf("  Sensitive data removed:   %d\n", stats.SensitiveDataRemoved)
	if stats.RewriteFailures > 0 {
		fmt.Printf("  Payloads left unchanged:  %d\n", stats.RewriteFailures)
	}
	return nil
}
