package adapters

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// SyntheticProfile selects the shape of generated data.
type SyntheticProfile string

const (
	// ProfileCapacity yields one row per day with linear disk growth from
	// 100 to 150 GB plus gaussian noise. Rows carry used, free and total.
	ProfileCapacity SyntheticProfile = "capacity"
	// ProfileActivity yields hourly session counts with a business-hours
	// pattern and a few whole days scaled down or up.
	ProfileActivity SyntheticProfile = "activity"
)

const (
	syntheticTotalGB   = 500.0
	syntheticStartGB   = 100.0
	syntheticEndGB     = 150.0
	syntheticNoiseGB   = 2.0
	syntheticDayLoad   = 100.0
	syntheticNightLoad = 20.0
)

// SyntheticAdapter generates deterministic data for the test mode of the
// run command and for demos. The same Seed always yields the same values.
type SyntheticAdapter struct {
	Profile SyntheticProfile
	Seed    uint64
	// Noise is the standard deviation of capacity noise in GB (default 2).
	Noise float64
	// Now overrides the clock, for tests.
	Now func() time.Time
}

func (s *SyntheticAdapter) Name() string { return "synthetic" }

// Collect implements Adapter.
func (s *SyntheticAdapter) Collect(ctx context.Context, windowSeconds int) (*DataFrame, error) {
	if err := ctx.Err(); err != nil {
		return &DataFrame{}, err
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	today := now().UTC().Truncate(24 * time.Hour)
	days := windowSeconds / DefaultStepSeconds
	if days < 1 {
		days = 1
	}
	rng := rand.New(rand.NewPCG(s.Seed, s.Seed^0x9e3779b97f4a7c15))

	var rows []Row
	switch s.Profile {
	case ProfileActivity:
		rows = s.activity(rng, today, days)
	default:
		rows = s.capacity(rng, today, days)
	}
	return &DataFrame{Rows: finalizeRows(rows)}, nil
}

func (s *SyntheticAdapter) capacity(rng *rand.Rand, today time.Time, days int) []Row {
	noise := s.Noise
	if noise == 0 {
		noise = syntheticNoiseGB
	}
	rows := make([]Row, 0, days)
	for i := 0; i < days; i++ {
		frac := 0.0
		if days > 1 {
			frac = float64(i) / float64(days-1)
		}
		used := syntheticStartGB + (syntheticEndGB-syntheticStartGB)*frac + rng.NormFloat64()*noise
		used = math.Max(0, used)
		rows = append(rows, Row{
			"ts":    today.AddDate(0, 0, i-days+1),
			"value": used,
			"used":  used,
			"free":  syntheticTotalGB - used,
			"total": syntheticTotalGB,
		})
	}
	return rows
}

func (s *SyntheticAdapter) activity(rng *rand.Rand, today time.Time, days int) []Row {
	// Roughly 3% of days, never inside the first week, get a dip or a spike.
	scale := make(map[int]float64)
	if days > 7 {
		n := max(1, days*3/100)
		for len(scale) < n {
			d := 7 + rng.IntN(days-7)
			if rng.IntN(2) == 0 {
				scale[d] = 0.3
			} else {
				scale[d] = 3
			}
		}
	}

	rows := make([]Row, 0, days*24)
	for i := 0; i < days; i++ {
		day := today.AddDate(0, 0, i-days+1)
		for h := 0; h < 24; h++ {
			var v float64
			if h >= 9 && h <= 18 {
				v = syntheticDayLoad + rng.NormFloat64()*10
			} else {
				v = syntheticNightLoad + rng.NormFloat64()*5
			}
			if f, ok := scale[i]; ok {
				v *= f
			}
			rows = append(rows, Row{
				"ts":    day.Add(time.Duration(h) * time.Hour),
				"value": math.Max(0, v),
			})
		}
	}
	return rows
}
