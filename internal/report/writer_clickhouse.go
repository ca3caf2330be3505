package report

import (
	"context"
	"fmt"
	"time"

	"PcapLens/internal/config"
	"PcapLens/internal/core/model"
	"PcapLens/internal/factory"
	writermodel "PcapLens/internal/model"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

func init() {
	factory.RegisterWriter("clickhouse", func(def config.WriterDef, _ *config.Config, log *zap.SugaredLogger) (writermodel.Writer, error) {
		return NewClickHouseWriter(def.ClickHouse, log), nil
	})
}

var createTableStatements = []string{`
CREATE TABLE IF NOT EXISTS capture_conversations (
    Capture         String,
    Rank            UInt32,
    Conversation    String,
    Packets         UInt64,
    Bytes           UInt64,
    DurationSeconds Float64,
    TopFlag         String
) ENGINE = MergeTree()
ORDER BY (Capture, Rank);
`, `
CREATE TABLE IF NOT EXISTS capture_error_events (
    Capture   String,
    Kind      LowCardinality(String),
    PacketNum UInt64,
    Timestamp DateTime64(6),
    Src       String,
    Dst       String,
    Detail    String
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(Timestamp)
ORDER BY (Capture, Kind, PacketNum);
`}

// ClickHouseWriter inserts conversations and error events into ClickHouse.
// The connection is opened on the first Write.
type ClickHouseWriter struct {
	cfg  config.ClickHouseConfig
	conn driver.Conn
	log  *zap.SugaredLogger
}

// NewClickHouseWriter creates a new ClickHouse writer.
func NewClickHouseWriter(cfg config.ClickHouseConfig, log *zap.SugaredLogger) *ClickHouseWriter {
	return &ClickHouseWriter{cfg: cfg, log: log}
}

func (w *ClickHouseWriter) Name() string { return "clickhouse" }

func (w *ClickHouseWriter) connect(ctx context.Context) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", w.cfg.Host, w.cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: w.cfg.Database,
			Username: w.cfg.Username,
			Password: w.cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, backoff.Permanent(err)
	}

	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}
	return conn, nil
}

func (w *ClickHouseWriter) ensureConn(ctx context.Context) error {
	if w.conn != nil {
		return nil
	}

	tries := max(w.cfg.ConnectTries, 1)
	conn, err := backoff.Retry(ctx, func() (driver.Conn, error) {
		conn, err := w.connect(ctx)
		if err != nil {
			w.log.Warnw("clickhouse connect failed", "host", w.cfg.Host, "error", err)
		}
		return conn, err
	},
		backoff.WithBackOff(&backoff.ExponentialBackOff{
			InitialInterval:     backoff.DefaultInitialInterval,
			RandomizationFactor: backoff.DefaultRandomizationFactor,
			Multiplier:          backoff.DefaultMultiplier,
			MaxInterval:         10 * time.Second,
		}),
		backoff.WithMaxTries(tries),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	for _, stmt := range createTableStatements {
		if err := conn.Exec(ctx, stmt); err != nil {
			conn.Close()
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	w.log.Info("Successfully connected to ClickHouse and ensured tables exist.")
	w.conn = conn
	return nil
}

// Write inserts the bundle's conversations and error events.
func (w *ClickHouseWriter) Write(ctx context.Context, bundle *model.Bundle, _ string) error {
	if err := w.ensureConn(ctx); err != nil {
		return err
	}

	conversations := ConversationRows(bundle)
	if len(conversations) > 0 {
		batch, err := w.conn.PrepareBatch(ctx, "INSERT INTO capture_conversations")
		if err != nil {
			return fmt.Errorf("failed to prepare batch: %w", err)
		}
		for _, r := range conversations {
			if err := batch.Append(r.Capture, r.Rank, r.Conversation, r.Packets, r.Bytes, r.DurationSeconds, r.TopFlag); err != nil {
				return fmt.Errorf("failed to append conversation to batch: %w", err)
			}
		}
		if err := batch.Send(); err != nil {
			return fmt.Errorf("failed to send batch: %w", err)
		}
	}

	events := ErrorEventRows(bundle)
	if len(events) > 0 {
		batch, err := w.conn.PrepareBatch(ctx, "INSERT INTO capture_error_events")
		if err != nil {
			return fmt.Errorf("failed to prepare batch: %w", err)
		}
		for _, r := range events {
			if err := batch.Append(r.Capture, r.Kind, r.PacketNum, r.Timestamp, r.Src, r.Dst, r.Detail); err != nil {
				return fmt.Errorf("failed to append error event to batch: %w", err)
			}
		}
		if err := batch.Send(); err != nil {
			return fmt.Errorf("failed to send batch: %w", err)
		}
	}

	w.log.Infof("Wrote %d conversations and %d error events to ClickHouse", len(conversations), len(events))
	return nil
}

// Close releases the connection if one was opened.
func (w *ClickHouseWriter) Close() error {
	if w.conn == nil {
		return nil
	}
	return w.conn.Close()
}
