package extractfields

import (
	"regexp"
	"strconv"
	"strings"
)

var priceNoisyChars = regexp.MustCompile(`[^0-9.,]`)

// NormalizePrice implements spec.md §4.7.3's price normalization:
// strip everything but digits/./,; disambiguate European (1.234,56)
// vs US (1,234.56) separators; return nil when unparsable.
func NormalizePrice(raw string) *float64 {
	digits := priceNoisyChars.ReplaceAllString(raw, "")
	if digits == "" {
		return nil
	}

	hasDot := strings.Contains(digits, ".")
	hasComma := strings.Contains(digits, ",")

	var normalized string
	switch {
	case hasDot && hasComma:
		normalized = normalizeMixedSeparators(digits)
	case hasComma:
		normalized = normalizeCommaOnly(digits)
	default:
		normalized = digits
	}

	f, err := strconv.ParseFloat(normalized, 64)
	if err != nil {
		return nil
	}
	return &f
}

// normalizeMixedSeparators handles both "." and "," present: whichever
// occurs last is the decimal separator, the other is thousands.
func normalizeMixedSeparators(digits string) string {
	lastDot := strings.LastIndex(digits, ".")
	lastComma := strings.LastIndex(digits, ",")

	if lastComma > lastDot {
		// European: 1.234,56 -> 1234.56
		withoutThousands := strings.ReplaceAll(digits, ".", "")
		return strings.Replace(withoutThousands, ",", ".", 1)
	}
	// US: 1,234.56 -> 1234.56
	return strings.ReplaceAll(digits, ",", "")
}

// normalizeCommaOnly handles a comma-only value: multiple commas are
// always thousands separators; a single comma with a two-digit tail
// is a decimal point; otherwise it's a thousands separator.
func normalizeCommaOnly(digits string) string {
	if strings.Count(digits, ",") > 1 {
		return strings.ReplaceAll(digits, ",", "")
	}
	idx := strings.Index(digits, ",")
	tail := digits[idx+1:]
	if len(tail) == 2 {
		return strings.Replace(digits, ",", ".", 1)
	}
	return strings.ReplaceAll(digits, ",", "")
}
