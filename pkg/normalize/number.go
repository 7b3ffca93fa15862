// Package normalize turns extractor-produced raw text into typed values:
// locale-aware numbers, scales, currencies, and fiscal periods. It never
// touches provenance — every NormalizedValue is paired with the
// domain.SourceReference the caller already has.
package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Locale selects which separator convention a raw number string follows.
type Locale string

const (
	LocaleIT  Locale = "it" // thousands '.', decimal ','
	LocaleUS  Locale = "us" // thousands ',', decimal '.'
	LocaleAuto Locale = "auto"
)

// NormalizedValue is the parsed, locale-independent result of Number.
type NormalizedValue struct {
	Value        float64
	IsPercentage bool
	IsNegative   bool
	Currency     string
	Confidence   float64
}

var (
	currencySymbols = map[rune]string{'€': "EUR", '$': "USD", '£': "GBP", '¥': "JPY"}
	currencyCodeRe  = regexp.MustCompile(`(?i)\b(EUR|USD|GBP|JPY|CHF)\b`)
	nonNumericRe    = regexp.MustCompile(`[^\d.,\-]`)
)

// Number parses raw, a single extracted cell or label-adjacent value, into
// a NormalizedValue. localeHint selects IT/US disambiguation; when it is
// LocaleAuto, Number infers the locale from the separator pattern itself
// and falls back to IT (the teacher's own fee/ast.go assumes Italian-style
// figures throughout, so that remains the tie-break default per spec.md
// §4.2's "prefer the document's majority locale" rule applied at the
// single-value granularity when no document-level hint is available).
func Number(raw string, localeHint Locale, scaleHint float64, currencyHint string) (NormalizedValue, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || isBlankMarker(trimmed) {
		return NormalizedValue{}, fmt.Errorf("normalize: blank value")
	}

	result := NormalizedValue{Confidence: 1.0, Currency: currencyHint}

	if strings.HasSuffix(trimmed, "%") {
		result.IsPercentage = true
		trimmed = strings.TrimSuffix(trimmed, "%")
		trimmed = strings.TrimSpace(trimmed)
	}

	for symbol, code := range currencySymbols {
		if strings.ContainsRune(trimmed, symbol) {
			result.Currency = code
			trimmed = strings.ReplaceAll(trimmed, string(symbol), "")
		}
	}
	if m := currencyCodeRe.FindString(trimmed); m != "" {
		result.Currency = strings.ToUpper(m)
		trimmed = currencyCodeRe.ReplaceAllString(trimmed, "")
	}
	trimmed = strings.TrimSpace(trimmed)

	if strings.HasPrefix(trimmed, "(") && strings.HasSuffix(trimmed, ")") {
		result.IsNegative = true
		trimmed = strings.TrimSuffix(strings.TrimPrefix(trimmed, "("), ")")
	}
	if strings.HasPrefix(trimmed, "-") {
		result.IsNegative = true
	}

	trimmed = nonNumericRe.ReplaceAllString(trimmed, "")
	trimmed = strings.TrimSpace(trimmed)
	if trimmed == "" {
		return NormalizedValue{}, fmt.Errorf("normalize: no digits in %q", raw)
	}

	locale := localeHint
	if locale == LocaleAuto || locale == "" {
		locale = detectLocale(trimmed)
	}

	canonical, err := toCanonicalDecimal(trimmed, locale)
	if err != nil {
		return NormalizedValue{}, fmt.Errorf("normalize: %w", err)
	}

	value, err := strconv.ParseFloat(canonical, 64)
	if err != nil {
		return NormalizedValue{}, fmt.Errorf("normalize: cannot parse %q as float: %w", canonical, err)
	}
	if result.IsNegative && value > 0 {
		value = -value
	}
	if scaleHint != 0 {
		value *= scaleHint
	}
	result.Value = value
	return result, nil
}

func isBlankMarker(s string) bool {
	switch s {
	case "—", "-", "–", "N/A", "n/a", "":
		return true
	default:
		return false
	}
}

// detectLocale disambiguates "1.234,56" (IT) from "1,234.56" (US) by
// looking at which separator appears last and how many digits follow it:
// a trailing group of exactly 1-2 digits after a comma signals an IT
// decimal comma; a trailing group of exactly 1-2 digits after a dot
// signals a US decimal point. A three-digit trailing group is treated as a
// thousands group only when the other separator does not occur at all;
// otherwise the rightmost separator is the decimal mark ("1.234,567" is IT).
func detectLocale(s string) Locale {
	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")

	if lastComma == -1 && lastDot == -1 {
		return LocaleIT
	}
	if lastComma > lastDot {
		// comma is the rightmost separator: IT unless the trailing group
		// has 3 digits, which would make it a US-style thousands comma
		// with no following decimal part (e.g. "1,234").
		trailing := len(s) - lastComma - 1
		if trailing == 3 && lastDot == -1 {
			return LocaleUS
		}
		return LocaleIT
	}
	// dot is rightmost
	trailing := len(s) - lastDot - 1
	if trailing == 3 && lastComma == -1 {
		return LocaleIT
	}
	return LocaleUS
}

func toCanonicalDecimal(s string, locale Locale) (string, error) {
	switch locale {
	case LocaleIT:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	case LocaleUS:
		s = strings.ReplaceAll(s, ",", "")
	default:
		return "", fmt.Errorf("unknown locale %q", locale)
	}
	return s, nil
}

// Render formats a value back into the Italian-locale string form, used by
// the round-trip invariant in spec.md §8 (normalize(render(x)) == x).
func Render(value float64) string {
	neg := value < 0
	if neg {
		value = -value
	}
	whole := int64(value)
	frac := value - float64(whole)
	wholeStr := groupThousandsIT(whole)
	fracStr := strconv.FormatFloat(frac, 'f', 2, 64)[2:]
	out := wholeStr + "," + fracStr
	if neg {
		out = "(" + out + ")"
	}
	return out
}

func groupThousandsIT(n int64) string {
	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return s
	}
	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	parts = append([]string{s}, parts...)
	return strings.Join(parts, ".")
}
