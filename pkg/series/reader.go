package series

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/HatiCode/foresight/pkg/adapters"
)

// Reader fetches the daily series of one target through an adapter.
type Reader struct {
	name    string
	adapter adapters.Adapter
	field   string
	agg     Aggregation
	timeout time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures a Reader.
type Option func(*Reader)

// WithField reads the given row column instead of "value".
func WithField(field string) Option { return func(r *Reader) { r.field = field } }

// WithAggregation sets how same-day rows collapse (default last).
func WithAggregation(agg Aggregation) Option { return func(r *Reader) { r.agg = agg } }

// WithTimeout bounds each read (default 30s).
func WithTimeout(d time.Duration) Option { return func(r *Reader) { r.timeout = d } }

// WithClock overrides the clock used to compute the window.
func WithClock(now func() time.Time) Option { return func(r *Reader) { r.now = now } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(r *Reader) { r.logger = l } }

// NewReader returns a Reader named name on top of adapter.
func NewReader(name string, adapter adapters.Adapter, opts ...Option) *Reader {
	r := &Reader{
		name:    name,
		adapter: adapter,
		agg:     AggLast,
		timeout: DefaultTimeout,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Name identifies the target in logs and errors.
func (r *Reader) Name() string { return r.name }

// ReadSeries returns one point per day in [today-lookbackDays, today],
// ascending. It fails with ErrDataUnavailable when the adapter errors, the
// call times out or the window holds no usable points.
func (r *Reader) ReadSeries(ctx context.Context, lookbackDays int) ([]Point, error) {
	rows, from, to, err := r.collect(ctx, lookbackDays)
	if err != nil {
		return nil, err
	}
	points := clip(Bucket(rows, r.field, r.agg), from, to)
	if len(points) == 0 {
		return nil, fmt.Errorf("%s: no points in the last %d days: %w", r.name, lookbackDays, ErrDataUnavailable)
	}
	return points, nil
}

// ReadSnapshots is ReadSeries for capacity targets whose rows carry used,
// free and total columns.
func (r *Reader) ReadSnapshots(ctx context.Context, lookbackDays int) ([]CapacitySnapshot, error) {
	rows, from, to, err := r.collect(ctx, lookbackDays)
	if err != nil {
		return nil, err
	}
	all := Snapshots(rows)
	out := all[:0]
	for _, s := range all {
		if !s.Date.Before(from) && !s.Date.After(to) {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: no snapshots in the last %d days: %w", r.name, lookbackDays, ErrDataUnavailable)
	}
	return out, nil
}

func (r *Reader) collect(ctx context.Context, lookbackDays int) ([]adapters.Row, time.Time, time.Time, error) {
	if lookbackDays < 1 {
		lookbackDays = 1
	}
	to := Day(r.now())
	from := to.AddDate(0, 0, -lookbackDays)

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	// One extra day so the first day of the window is complete.
	window := (lookbackDays + 1) * 86400
	df, err := r.adapter.Collect(ctx, window)
	if err != nil {
		r.logger.Warn("source read failed", "metric", r.name, "adapter", r.adapter.Name(), "error", err)
		return nil, from, to, fmt.Errorf("%s: %s: %v: %w", r.name, r.adapter.Name(), err, ErrDataUnavailable)
	}
	if df == nil {
		return nil, from, to, fmt.Errorf("%s: %s returned no frame: %w", r.name, r.adapter.Name(), ErrDataUnavailable)
	}
	r.logger.Debug("source read", "metric", r.name, "adapter", r.adapter.Name(), "rows", len(df.Rows))
	return df.Rows, from, to, nil
}

func clip(points []Point, from, to time.Time) []Point {
	out := points[:0]
	for _, p := range points {
		if !p.Date.Before(from) && !p.Date.After(to) {
			out = append(out, p)
		}
	}
	return out
}
