// Package query reads exported reports back from ClickHouse.
package query

import (
	"context"
	"fmt"
	"strings"

	"PcapLens/internal/config"
	"PcapLens/internal/core/model"
	"PcapLens/internal/report"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// KindCount is the number of stored events of one kind.
type KindCount struct {
	Kind  string `json:"kind"`
	Count uint64 `json:"count"`
}

// ErrorQuery selects stored error events. Empty fields do not filter.
type ErrorQuery struct {
	Capture string
	Kind    string
	Src     string
	Limit   int
}

// Querier defines the interface for querying stored reports.
type Querier interface {
	Captures(ctx context.Context) ([]string, error)
	ErrorCounts(ctx context.Context, capture string) ([]KindCount, error)
	ErrorEvents(ctx context.Context, q ErrorQuery) ([]report.ErrorEventRow, error)
}

// clickhouseQuerier implements the Querier interface for ClickHouse.
type clickhouseQuerier struct {
	conn clickhouse.Conn
}

// NewClickHouseQuerier creates a new querier for ClickHouse.
func NewClickHouseQuerier(ctx context.Context, cfg config.ClickHouseConfig) (Querier, error) {
	conn, err := connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}
	return &clickhouseQuerier{conn: conn}, nil
}

func connect(ctx context.Context, cfg config.ClickHouseConfig) (clickhouse.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}
	return conn, nil
}

// Captures lists the captures that have stored conversations.
func (q *clickhouseQuerier) Captures(ctx context.Context) ([]string, error) {
	rows, err := q.conn.Query(ctx, "SELECT DISTINCT Capture FROM capture_conversations ORDER BY Capture")
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	captures := []string{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("failed to scan capture: %w", err)
		}
		captures = append(captures, c)
	}
	return captures, rows.Err()
}

// ErrorCounts counts the stored events of a capture per kind.
func (q *clickhouseQuerier) ErrorCounts(ctx context.Context, capture string) ([]KindCount, error) {
	rows, err := q.conn.Query(ctx, `
		SELECT Kind, count() AS Total
		FROM capture_error_events
		WHERE Capture = ?
		GROUP BY Kind
		ORDER BY Total DESC, Kind
	`, capture)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	counts := []KindCount{}
	for rows.Next() {
		var c KindCount
		if err := rows.Scan(&c.Kind, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan error count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// ErrorEvents returns the stored events matching q in packet order.
func (q *clickhouseQuerier) ErrorEvents(ctx context.Context, eq ErrorQuery) ([]report.ErrorEventRow, error) {
	stmt, args, err := buildErrorQuery(eq)
	if err != nil {
		return nil, err
	}

	rows, err := q.conn.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	events := []report.ErrorEventRow{}
	for rows.Next() {
		var e report.ErrorEventRow
		if err := rows.Scan(&e.Capture, &e.Kind, &e.PacketNum, &e.Timestamp, &e.Src, &e.Dst, &e.Detail); err != nil {
			return nil, fmt.Errorf("failed to scan error event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// buildErrorQuery builds the event query. Only known kinds are accepted so
// the caller gets an error instead of an empty result for a typo.
func buildErrorQuery(eq ErrorQuery) (string, []any, error) {
	var queryBuilder strings.Builder
	queryBuilder.WriteString(`
		SELECT Capture, Kind, PacketNum, Timestamp, Src, Dst, Detail
		FROM capture_error_events
	`)

	var whereClauses []string
	args := []any{}

	if eq.Capture == "" {
		return "", nil, fmt.Errorf("capture is required")
	}
	whereClauses = append(whereClauses, "Capture = ?")
	args = append(args, eq.Capture)

	if eq.Kind != "" {
		if !knownKind(eq.Kind) {
			return "", nil, fmt.Errorf("unsupported event kind: %s", eq.Kind)
		}
		whereClauses = append(whereClauses, "Kind = ?")
		args = append(args, eq.Kind)
	}
	if eq.Src != "" {
		whereClauses = append(whereClauses, "Src LIKE ?")
		args = append(args, eq.Src+"%")
	}

	queryBuilder.WriteString(" WHERE " + strings.Join(whereClauses, " AND "))
	queryBuilder.WriteString(" ORDER BY PacketNum, Kind")
	if eq.Limit > 0 {
		queryBuilder.WriteString(" LIMIT ?")
		args = append(args, eq.Limit)
	}
	return queryBuilder.String(), args, nil
}

func knownKind(kind string) bool {
	for k := model.KindTCPReset; k <= model.KindICMPUnreachable; k++ {
		if k.String() == kind {
			return true
		}
	}
	return false
}
