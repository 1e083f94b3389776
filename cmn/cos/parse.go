// Package cos provides small helpers shared across the engine: size/bool
// parsing and file create/sync-close/remove helpers.
package cos

import (
	"fmt"
	"strconv"
	"strings"
)

var sizeSuffixes = map[string]int64{
	"":   1,
	"b":  1,
	"k":  1 << 10,
	"kb": 1 << 10,
	"m":  1 << 20,
	"mb": 1 << 20,
	"g":  1 << 30,
	"gb": 1 << 30,
}

// S2B parses a human size string such as "8m" or "64KB" into bytes.
func S2B(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	i := 0
	for i < len(s) && (s[i] == '.' || s[i] == '-' || (s[i] >= '0' && s[i] <= '9')) {
		i++
	}
	numPart, suffix := s[:i], strings.ToLower(strings.TrimSpace(s[i:]))
	mult, ok := sizeSuffixes[suffix]
	if !ok {
		return 0, fmt.Errorf("cos: invalid size suffix %q in %q", suffix, s)
	}
	f, err := strconv.ParseFloat(numPart, 64)
	if err != nil {
		return 0, fmt.Errorf("cos: invalid size %q: %w", s, err)
	}
	return int64(f * float64(mult)), nil
}

// ParseBool accepts the usual truthy/falsy spellings used in env overrides.
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "t", "true", "y", "yes", "on":
		return true, nil
	case "0", "f", "false", "n", "no", "off", "":
		return false, nil
	default:
		return false, fmt.Errorf("cos: invalid bool %q", s)
	}
}
