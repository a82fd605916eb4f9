package card

import (
	"fmt"
	"strconv"
	"strings"
)

// Size units in bytes.
const (
	KiB uint64 = 1024
	MiB        = 1024 * KiB
	GiB        = 1024 * MiB
)

// suffixMultipliers maps the size suffixes accepted on the command line to
// byte multipliers. "b" is the traditional 512-byte block.
var suffixMultipliers = []struct {
	Suffix   string
	Multiple uint64
}{
	{"b", 512},
	{"kB", 1000},
	{"K", KiB},
	{"KiB", KiB},
	{"MB", 1000 * 1000},
	{"M", MiB},
	{"MiB", MiB},
	{"GB", 1000 * 1000 * 1000},
	{"G", GiB},
	{"GiB", GiB},
}

// ParseSize converts a decimal number with an optional suffix from
// suffixMultipliers into a byte count. Suffixes are case-sensitive, so "K"
// and "kB" mean different things.
func ParseSize(s string) (uint64, error) {
	digits := 0
	for digits < len(s) && s[digits] >= '0' && s[digits] <= '9' {
		digits++
	}
	if digits == 0 {
		return 0, fmt.Errorf("expecting number but got %q", s)
	}
	value, err := strconv.ParseUint(s[:digits], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("expecting number but got %q", s)
	}

	suffix := s[digits:]
	if suffix == "" {
		return value, nil
	}
	for _, m := range suffixMultipliers {
		if m.Suffix == suffix {
			return value * m.Multiple, nil
		}
	}
	return 0, fmt.Errorf("unknown size multiplier %q", suffix)
}

// SuffixTable renders the accepted size suffixes for help output.
func SuffixTable() string {
	var b strings.Builder
	for _, m := range suffixMultipliers {
		fmt.Fprintf(&b, "  %3s  %d\n", m.Suffix, m.Multiple)
	}
	return b.String()
}

// PrettySize renders a byte count for humans: fractional GiB/MiB, whole KiB,
// bare bytes below that.
func PrettySize(n uint64) string {
	switch {
	case n >= GiB:
		return fmt.Sprintf("%.2f GiB", float64(n)/float64(GiB))
	case n >= MiB:
		return fmt.Sprintf("%.2f MiB", float64(n)/float64(MiB))
	case n >= KiB:
		return fmt.Sprintf("%d KiB", n/KiB)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}

// Percent returns the whole-number percentage of done against total, 0 when
// the total is unknown.
func Percent(done, total uint64) int {
	if total == 0 {
		return 0
	}
	return int(100 * done / total)
}
