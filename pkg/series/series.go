// Package series turns adapter rows into dated daily series.
//
// A Reader owns one target: it calls its adapter for the lookback window,
// collapses rows into one point per UTC day and reports ErrDataUnavailable
// when nothing usable comes back.
package series

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/HatiCode/foresight/pkg/adapters"
)

// ErrDataUnavailable is returned when the source fails, times out or has no
// points in the requested window.
var ErrDataUnavailable = errors.New("data unavailable")

// DefaultTimeout bounds a single ReadSeries call.
const DefaultTimeout = 30 * time.Second

// Point is one daily observation. Date is midnight UTC.
type Point struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// CapacitySnapshot is a daily disk reading. Used+Free == Total is assumed
// upstream; only Used feeds the trend model.
type CapacitySnapshot struct {
	Date  time.Time `json:"date"`
	Used  float64   `json:"used"`
	Free  float64   `json:"free"`
	Total float64   `json:"total"`
}

// Point projects the snapshot onto its used value.
func (c CapacitySnapshot) Point() Point {
	return Point{Date: c.Date, Value: c.Used}
}

// Aggregation decides how several rows falling on the same day collapse.
type Aggregation string

const (
	AggLast Aggregation = "last"
	AggSum  Aggregation = "sum"
	AggMean Aggregation = "mean"
	AggMax  Aggregation = "max"
)

// ParseAggregation validates s. An empty string means AggLast.
func ParseAggregation(s string) (Aggregation, error) {
	switch a := Aggregation(s); a {
	case "":
		return AggLast, nil
	case AggLast, AggSum, AggMean, AggMax:
		return a, nil
	default:
		return "", fmt.Errorf("unknown aggregation %q (must be last, sum, mean, or max)", s)
	}
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}

// Values returns the values of points in order.
func Values(points []Point) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Value
	}
	return out
}

// Bucket collapses rows into one point per UTC day, ascending. field selects
// the row column to read ("value" when empty). Rows with a missing or
// unparseable timestamp or value are skipped. Days without rows are not
// synthesized.
func Bucket(rows []adapters.Row, field string, agg Aggregation) []Point {
	if field == "" {
		field = "value"
	}
	type acc struct {
		last, sum, max float64
		lastTS         time.Time
		n              int
	}
	days := make(map[time.Time]*acc)

	for _, row := range rows {
		ts, ok := rowTime(row["ts"])
		if !ok {
			continue
		}
		v, ok := rowFloat(row[field])
		if !ok {
			continue
		}
		d := Day(ts)
		a := days[d]
		if a == nil {
			a = &acc{max: math.Inf(-1)}
			days[d] = a
		}
		if a.n == 0 || !ts.Before(a.lastTS) {
			a.last, a.lastTS = v, ts
		}
		a.sum += v
		a.max = math.Max(a.max, v)
		a.n++
	}

	points := make([]Point, 0, len(days))
	for d, a := range days {
		var v float64
		switch agg {
		case AggSum:
			v = a.sum
		case AggMean:
			v = a.sum / float64(a.n)
		case AggMax:
			v = a.max
		default:
			v = a.last
		}
		points = append(points, Point{Date: d, Value: v})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
	return points
}

// Snapshots collapses capacity rows into one snapshot per day, keeping the
// latest row of each day. Missing free is derived from total-used.
func Snapshots(rows []adapters.Row) []CapacitySnapshot {
	byDay := make(map[time.Time]CapacitySnapshot)
	latest := make(map[time.Time]time.Time)

	for _, row := range rows {
		ts, ok := rowTime(row["ts"])
		if !ok {
			continue
		}
		used, ok := rowFloat(row["used"])
		if !ok {
			if used, ok = rowFloat(row["value"]); !ok {
				continue
			}
		}
		d := Day(ts)
		if prev, seen := latest[d]; seen && ts.Before(prev) {
			continue
		}
		total, _ := rowFloat(row["total"])
		free, ok := rowFloat(row["free"])
		if !ok && total > 0 {
			free = total - used
		}
		byDay[d] = CapacitySnapshot{Date: d, Used: used, Free: free, Total: total}
		latest[d] = ts
	}

	out := make([]CapacitySnapshot, 0, len(byDay))
	for _, s := range byDay {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

func rowTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		ts, err := time.Parse(time.RFC3339, t)
		return ts, err == nil
	default:
		return time.Time{}, false
	}
}

func rowFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case string:
		parsed, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
