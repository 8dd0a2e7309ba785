package withdraw

import (
	"strconv"
	"strings"
)

// FormatAmount renders value with the given number of decimals as
// "<ticker> <amount>". Trailing fractional zeros and a dangling decimal
// point are dropped; integer digits are never trimmed.
func FormatAmount(value uint64, decimals int, ticker string) string {
	s := strconv.FormatUint(value, 10)
	if decimals > 0 {
		if len(s) <= decimals {
			s = strings.Repeat("0", decimals-len(s)+1) + s
		}
		whole, frac := s[:len(s)-decimals], strings.TrimRight(s[len(s)-decimals:], "0")
		s = whole
		if frac != "" {
			s += "." + frac
		}
	}
	if ticker == "" {
		return s
	}
	return ticker + " " + s
}
