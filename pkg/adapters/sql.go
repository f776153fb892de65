package adapters

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// SQLAdapter reads rollups from a relational table, typically the daily
// disk_usage or session_stats tables filled by the ingestion pipeline.
//
// Query must select a "ts" column (timestamp, date or RFC3339 text) and a
// "value" column, and take exactly one positional parameter: the start of the
// collection window. Placeholders are written as '?' and rebound to the
// driver's bindvar style, e.g.
//
//	SELECT date AS ts, used_gb AS value, free_gb AS free, total_gb AS total
//	FROM disk_usage WHERE date >= ? ORDER BY date
//
// Any other selected column is passed through as a float64 row field.
type SQLAdapter struct {
	db    *sqlx.DB
	query string
}

// OpenSQL opens a connection pool for driver ("postgres" or "sqlite") and
// returns an adapter running query. The pool is opened lazily.
func OpenSQL(driver, dsn, query string) (*SQLAdapter, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sql adapter: open %s: %w", driver, err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)
	return NewSQLAdapter(db, query), nil
}

// NewSQLAdapter wraps an existing pool.
func NewSQLAdapter(db *sqlx.DB, query string) *SQLAdapter {
	return &SQLAdapter{db: db, query: db.Rebind(query)}
}

func (s *SQLAdapter) Name() string { return "sql" }

// Close releases the underlying pool.
func (s *SQLAdapter) Close() error { return s.db.Close() }

// Collect implements Adapter.
func (s *SQLAdapter) Collect(ctx context.Context, windowSeconds int) (*DataFrame, error) {
	if s.db == nil || s.query == "" {
		return &DataFrame{}, errors.New("sql adapter: db and query are required")
	}
	start := time.Now().UTC().Add(-time.Duration(windowSeconds) * time.Second)

	rs, err := s.db.QueryxContext(ctx, s.query, start)
	if err != nil {
		return &DataFrame{}, fmt.Errorf("sql adapter: query: %w", err)
	}
	defer rs.Close()

	var rows []Row
	for rs.Next() {
		raw := make(map[string]any)
		if err := rs.MapScan(raw); err != nil {
			return &DataFrame{}, fmt.Errorf("sql adapter: scan: %w", err)
		}

		v, ok := raw["value"]
		if !ok {
			return &DataFrame{}, errors.New("sql adapter: query must select a 'value' column")
		}
		if v == nil || raw["ts"] == nil {
			continue
		}

		ts, err := sqlTime(raw["ts"])
		if err != nil {
			return &DataFrame{}, fmt.Errorf("sql adapter: column ts: %w", err)
		}
		row := Row{"ts": ts}
		for col, v := range raw {
			if col == "ts" || v == nil {
				continue
			}
			f, err := sqlFloat(v)
			if err != nil {
				return &DataFrame{}, fmt.Errorf("sql adapter: column %s: %w", col, err)
			}
			row[col] = f
		}
		rows = append(rows, row)
	}
	if err := rs.Err(); err != nil {
		return &DataFrame{}, fmt.Errorf("sql adapter: rows: %w", err)
	}

	return &DataFrame{Rows: finalizeRows(rows)}, nil
}

var sqlTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
	time.DateOnly,
}

func sqlTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case int64:
		return time.Unix(t, 0).UTC(), nil
	case []byte:
		return parseSQLTime(string(t))
	case string:
		return parseSQLTime(t)
	default:
		return time.Time{}, fmt.Errorf("unsupported type %T", v)
	}
}

func parseSQLTime(s string) (time.Time, error) {
	for _, layout := range sqlTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}

func sqlFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case []byte:
		return strconv.ParseFloat(string(n), 64)
	case string:
		return strconv.ParseFloat(n, 64)
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}
