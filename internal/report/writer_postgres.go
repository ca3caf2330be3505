package report

import (
	"context"
	"fmt"
	"time"

	"PcapLens/internal/config"
	"PcapLens/internal/core/model"
	"PcapLens/internal/factory"
	writermodel "PcapLens/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

func init() {
	factory.RegisterWriter("postgres", func(def config.WriterDef, _ *config.Config, log *zap.SugaredLogger) (writermodel.Writer, error) {
		if def.Postgres.URL == "" {
			return nil, fmt.Errorf("postgres writer requires a url")
		}
		return NewPostgresWriter(def.Postgres, log), nil
	})
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS capture_conversations (
    capture          TEXT NOT NULL,
    rank             INTEGER NOT NULL,
    conversation     TEXT NOT NULL,
    packets          BIGINT NOT NULL,
    bytes            BIGINT NOT NULL,
    duration_seconds DOUBLE PRECISION NOT NULL,
    top_flag         TEXT NOT NULL,
    PRIMARY KEY (capture, rank)
);
CREATE TABLE IF NOT EXISTS capture_error_events (
    capture    TEXT NOT NULL,
    kind       TEXT NOT NULL,
    packet_num BIGINT NOT NULL,
    ts         TIMESTAMPTZ NOT NULL,
    src        TEXT NOT NULL,
    dst        TEXT NOT NULL,
    detail     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS capture_error_events_capture_idx ON capture_error_events (capture, kind);
`

// PostgresWriter stores conversations and error events in Postgres. Rows of
// a previous export of the same capture are replaced.
type PostgresWriter struct {
	cfg  config.PostgresConfig
	pool *pgxpool.Pool
	log  *zap.SugaredLogger
}

// NewPostgresWriter creates a new Postgres writer. The pool is created on
// the first Write.
func NewPostgresWriter(cfg config.PostgresConfig, log *zap.SugaredLogger) *PostgresWriter {
	return &PostgresWriter{cfg: cfg, log: log}
}

func (w *PostgresWriter) Name() string { return "postgres" }

func (w *PostgresWriter) ensurePool(ctx context.Context) error {
	if w.pool != nil {
		return nil
	}

	poolCfg, err := pgxpool.ParseConfig(w.cfg.URL)
	if err != nil {
		return fmt.Errorf("unable to parse database URL: %w", err)
	}
	if w.cfg.MaxConns > 0 {
		poolCfg.MaxConns = w.cfg.MaxConns
	}
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("unable to connect to database: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return fmt.Errorf("failed to create tables: %w", err)
	}
	w.pool = pool
	return nil
}

// Write replaces the capture's rows inside one transaction.
func (w *PostgresWriter) Write(ctx context.Context, bundle *model.Bundle, _ string) error {
	if err := w.ensurePool(ctx); err != nil {
		return err
	}

	conversations := ConversationRows(bundle)
	events := ErrorEventRows(bundle)
	capture := bundle.Summary.Metadata.SourceFile

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, table := range []string{"capture_conversations", "capture_error_events"} {
		if _, err := tx.Exec(ctx, "DELETE FROM "+table+" WHERE capture = $1", capture); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"capture_conversations"},
		[]string{"capture", "rank", "conversation", "packets", "bytes", "duration_seconds", "top_flag"},
		pgx.CopyFromSlice(len(conversations), func(i int) ([]any, error) {
			r := conversations[i]
			return []any{r.Capture, int32(r.Rank), r.Conversation, int64(r.Packets), int64(r.Bytes), r.DurationSeconds, r.TopFlag}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("copy conversations: %w", err)
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"capture_error_events"},
		[]string{"capture", "kind", "packet_num", "ts", "src", "dst", "detail"},
		pgx.CopyFromSlice(len(events), func(i int) ([]any, error) {
			r := events[i]
			return []any{r.Capture, r.Kind, int64(r.PacketNum), r.Timestamp, r.Src, r.Dst, r.Detail}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("copy error events: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	w.log.Infof("Wrote %d conversations and %d error events to Postgres", len(conversations), len(events))
	return nil
}

// Close releases the pool if one was created.
func (w *PostgresWriter) Close() error {
	if w.pool != nil {
		w.pool.Close()
	}
	return nil
}
