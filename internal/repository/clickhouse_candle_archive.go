package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"FinWatch/internal/domain/models"
	pkgch "FinWatch/pkg/clickhouse"
	applogger "FinWatch/pkg/logger"
)

const candleTable = "candles"

// CandleSchema returns the DDL for the candle archive in database db.
func CandleSchema(db string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
            symbol LowCardinality(String),
            interval LowCardinality(String),
            open_time DateTime64(3, 'UTC'),
            close_time DateTime64(3, 'UTC'),
            open Decimal(38, 12),
            high Decimal(38, 12),
            low Decimal(38, 12),
            close Decimal(38, 12),
            inserted_at DateTime DEFAULT now()
        ) ENGINE = ReplacingMergeTree(inserted_at)
        ORDER BY (symbol, interval, open_time)`, db, candleTable),
	}
}

// CHCandleArchive implements CandleArchive backed by ClickHouse.
type CHCandleArchive struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

// NewCHCandleArchive wraps a connected client.
func NewCHCandleArchive(ch *pkgch.Client, l *applogger.Logger) *CHCandleArchive {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHCandleArchive{db: ch.DB(), table: ch.Database() + "." + candleTable, l: l}
}

// StoreBatch inserts finalized candles using multi-row VALUES in chunks.
func (s *CHCandleArchive) StoreBatch(ctx context.Context, records []models.CandleRecord) error {
	const chunkSize = 2000
	start := time.Now()
	for lo := 0; lo < len(records); lo += chunkSize {
		hi := lo + chunkSize
		if hi > len(records) {
			hi = len(records)
		}
		q, args := buildCandleInsert(s.table, records[lo:hi])
		if q == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.l.Error("clickhouse candle insert failed",
				applogger.String("table", s.table),
				applogger.Int("rows", hi-lo),
				applogger.Error(err),
			)
			return fmt.Errorf("insert candles: %w", err)
		}
	}
	s.l.Debug("clickhouse candle insert ok",
		applogger.Int("rows", len(records)),
		applogger.Duration("duration", time.Since(start)),
	)
	return nil
}

func (s *CHCandleArchive) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op; the pool is owned by pkg/clickhouse.Client.
func (s *CHCandleArchive) Close() error {
	return nil
}

func buildCandleInsert(table string, records []models.CandleRecord) (string, []interface{}) {
	values := make([]string, 0, len(records))
	args := make([]interface{}, 0, len(records)*8)
	for _, r := range records {
		if r.Symbol == "" || r.Candle.OpenTime.IsZero() {
			continue
		}
		values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			r.Symbol,
			r.Interval,
			r.Candle.OpenTime.UTC(),
			r.Candle.CloseTime.UTC(),
			r.Candle.Open,
			r.Candle.High,
			r.Candle.Low,
			r.Candle.Close,
		)
	}
	if len(values) == 0 {
		return "", nil
	}
	q := fmt.Sprintf("INSERT INTO %s (symbol, interval, open_time, close_time, open, high, low, close) VALUES %s",
		table, strings.Join(values, ","))
	return q, args
}
