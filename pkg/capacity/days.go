package capacity

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
)

// DaysToLimit is either a finite, non-negative number of days or Unbounded.
// The zero value is Unbounded. It encodes as JSON null and SQL NULL when
// unbounded, never as an infinity.
type DaysToLimit struct {
	days    int
	bounded bool
}

// Unbounded means the projected series never reaches the ceiling.
func Unbounded() DaysToLimit { return DaysToLimit{} }

// Days returns a bounded value. Negative n is clamped to 0.
func Days(n int) DaysToLimit {
	if n < 0 {
		n = 0
	}
	return DaysToLimit{days: n, bounded: true}
}

// IsUnbounded reports whether no limit is projected.
func (d DaysToLimit) IsUnbounded() bool { return !d.bounded }

// Get returns the day count and whether it is bounded.
func (d DaysToLimit) Get() (int, bool) { return d.days, d.bounded }

// Less reports whether d is bounded and strictly below n.
func (d DaysToLimit) Less(n int) bool { return d.bounded && d.days < n }

func (d DaysToLimit) String() string {
	if !d.bounded {
		return "unbounded"
	}
	return strconv.Itoa(d.days)
}

// MarshalJSON implements json.Marshaler.
func (d DaysToLimit) MarshalJSON() ([]byte, error) {
	if !d.bounded {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(d.days)), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *DaysToLimit) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*d = Unbounded()
		return nil
	}
	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("days to limit: %w", err)
	}
	*d = Days(n)
	return nil
}

// Value implements driver.Valuer.
func (d DaysToLimit) Value() (driver.Value, error) {
	if !d.bounded {
		return nil, nil
	}
	return int64(d.days), nil
}

// Scan implements sql.Scanner.
func (d *DaysToLimit) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = Unbounded()
	case int64:
		*d = Days(int(v))
	case float64:
		*d = Days(int(v))
	case []byte:
		n, err := strconv.Atoi(string(v))
		if err != nil {
			return fmt.Errorf("days to limit: %w", err)
		}
		*d = Days(n)
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("days to limit: %w", err)
		}
		*d = Days(n)
	default:
		return fmt.Errorf("days to limit: unsupported type %T", src)
	}
	return nil
}
