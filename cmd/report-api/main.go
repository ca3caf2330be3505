package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"PcapLens/internal/api"
	"PcapLens/internal/config"
	"PcapLens/internal/pkg/logging"
	"PcapLens/internal/publisher"
	"PcapLens/internal/query"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var cmd Cmd

// Cmd is the command line arguments.
type Cmd struct {
	ConfigPath  string
	ListenAddr  string
	ReportsRoot string
	Ingest      bool
}

var rootCmd = &cobra.Command{
	Use:   "report-api",
	Short: "Serve exported capture reports over HTTP",
	Run: func(_ *cobra.Command, _ []string) {
		if err := run(cmd); err != nil {
			if errors.As(err, &Interrupted{}) {
				return
			}
			fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.Flags().StringVarP(&cmd.ConfigPath, "config", "c", "", "Path to the configuration file")
	rootCmd.Flags().StringVar(&cmd.ListenAddr, "listen", "", "Listen address (overrides config)")
	rootCmd.Flags().StringVar(&cmd.ReportsRoot, "reports-root", "", "Directory holding report directories (overrides config)")
	rootCmd.Flags().BoolVar(&cmd.Ingest, "ingest", false, "Store reports published on NATS below the reports root")
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
	if cmd.ListenAddr != "" {
		cfg.API.ListenAddr = cmd.ListenAddr
	}
	if cmd.ReportsRoot != "" {
		cfg.API.ReportsRoot = cmd.ReportsRoot
	}

	log, err := logging.New(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer log.Sync()

	ctx := context.Background()
	options := []api.Option{api.WithLog(log)}

	// Stored reports are served from the first enabled ClickHouse writer.
	for _, def := range cfg.Analyzer.Writers {
		if !def.Enabled || def.Type != "clickhouse" {
			continue
		}
		querier, err := query.NewClickHouseQuerier(ctx, def.ClickHouse)
		if err != nil {
			log.Warnw("stored reports disabled", "error", err)
			break
		}
		options = append(options, api.WithQuerier(querier))
		break
	}

	if cmd.Ingest {
		sub, err := publisher.NewSubscriber(cfg.Publisher, cfg.API.ReportsRoot, log)
		if err != nil {
			return err
		}
		defer sub.Close()
		if err := sub.Start(); err != nil {
			return fmt.Errorf("failed to subscribe: %w", err)
		}
	}

	server := api.NewServer(cfg.API.ReportsRoot, options...)

	wg, ctx := errgroup.WithContext(ctx)
	wg.Go(func() error {
		return server.Run(ctx, cfg.API.ListenAddr)
	})
	wg.Go(func() error {
		err := WaitInterrupted(ctx)
		log.Infof("caught signal: %v", err)
		return err
	})
	return wg.Wait()
}

type Interrupted struct {
	os.Signal
}

func (m Interrupted) Error() string {
	return m.String()
}

// WaitInterrupted blocks until either SIGINT or SIGTERM signal is received or
// the provided context is canceled.
func WaitInterrupted(ctx context.Context) error {
	ch := make(chan os.Signal, 1)

	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	select {
	case v := <-ch:
		return Interrupted{Signal: v}
	case <-ctx.Done():
		return ctx.Err()
	}
}
