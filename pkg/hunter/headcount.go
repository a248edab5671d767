package hunter

import (
	"strconv"
	"strings"
)

// ParseHeadcount turns Hunter's headcount strings ("51-200", "1K-5K",
// "10001+", "37") into a single estimate. Ranges use their midpoint.
func ParseHeadcount(s string) int {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "+"))
	if s == "" {
		return 0
	}
	lo, hi, isRange := strings.Cut(s, "-")
	if !isRange {
		return parseCount(lo)
	}
	a, b := parseCount(lo), parseCount(hi)
	if a == 0 || b == 0 {
		return max(a, b)
	}
	return (a + b) / 2
}

func parseCount(s string) int {
	s = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), ",", ""))
	mult := 1
	if strings.HasSuffix(s, "K") {
		mult = 1000
		s = strings.TrimSuffix(s, "K")
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n * mult
}
