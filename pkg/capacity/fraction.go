package capacity

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseFraction parses a limit fraction from percent notation (85%),
// p-notation (p85) or decimal notation (0.85).
//
// Examples:
//   - "85%" → 0.85
//   - "p90" → 0.90
//   - "0.9" → 0.90
//   - "" → 0 (use the full volume)
//
// Returns error if the format is invalid or value is out of range [0, 1].
func ParseFraction(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	var percentStr string
	switch {
	case strings.HasSuffix(s, "%"):
		percentStr = strings.TrimSuffix(s, "%")
	case strings.HasPrefix(strings.ToLower(s), "p"):
		percentStr = s[1:]
	}
	if percentStr != "" {
		percent, err := strconv.ParseFloat(strings.TrimSpace(percentStr), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid percentage %q: %w", s, err)
		}
		if percent < 0 || percent > 100 {
			return 0, fmt.Errorf("percentage %v out of range [0, 100]", percent)
		}
		return percent / 100.0, nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid fraction %q: %w", s, err)
	}
	if f < 0 || f > 1 {
		return 0, fmt.Errorf("fraction %v out of range [0, 1]", f)
	}
	return f, nil
}

// FormatFraction formats a fraction as a percentage for display.
//
// Examples:
//   - 0.85 → "85%"
//   - 0.875 → "87.5%"
//   - 0 → "100%"
func FormatFraction(f float64) string {
	if f <= 0 {
		f = 1
	}
	percent := f * 100
	if percent == float64(int(percent)) {
		return fmt.Sprintf("%d%%", int(percent))
	}
	return fmt.Sprintf("%.1f%%", percent)
}
