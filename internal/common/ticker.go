package common

import (
	"regexp"
	"strings"
)

// tickerPattern validates symbols: uppercase letter followed by up to 15
// letters, digits, dots or dashes (e.g. "BRK.B", "RDS-A").
var tickerPattern = regexp.MustCompile(`^[A-Z][A-Z0-9.\-]{0,15}$`)

// NormalizeTicker uppercases and trims a symbol.
func NormalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

// IsValidTicker reports whether the (already normalised) symbol matches
// the accepted pattern.
func IsValidTicker(ticker string) bool {
	return tickerPattern.MatchString(ticker)
}

// FilterValidTickers normalises the input list, drops invalid symbols,
// and removes duplicates while preserving order.
func FilterValidTickers(tickers []string) []string {
	seen := make(map[string]struct{}, len(tickers))
	result := make([]string, 0, len(tickers))
	for _, t := range tickers {
		normalized := NormalizeTicker(t)
		if !IsValidTicker(normalized) {
			continue
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		result = append(result, normalized)
	}
	return result
}
