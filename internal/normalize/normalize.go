// Package normalize holds the pure coercion functions applied to resolved
// payload values before they enter a canonical lead record.
package normalize

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// DefaultCountryCode is prefixed to phone numbers that carry no "+".
const DefaultCountryCode = "55"

var (
	nonNumeric  = regexp.MustCompile(`[^\d.,]`)
	nonPhone    = regexp.MustCompile(`[^\d+]`)
	nonDigit    = regexp.MustCompile(`\D`)
	whitespace  = regexp.MustCompile(`\s+`)
	plusSpacing = regexp.MustCompile(`\s*\+\s*`)
	floatPrefix = regexp.MustCompile(`^(\d+\.?\d*|\.\d+)`)
)

// Clean returns the trimmed string form of v, or "" for nil.
func Clean(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	default:
		if s, ok := v.(interface{ String() string }); ok {
			return strings.TrimSpace(s.String())
		}
		return ""
	}
}

// Email returns the cleaned, lowercased form of v.
func Email(v any) string {
	return strings.ToLower(Clean(v))
}

// Number coerces v to a float64. Numeric input passes through. Strings keep
// only digits, commas and dots, the first comma becomes a decimal dot, and the
// longest leading decimal is parsed. Anything unparseable yields 0.
func Number(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case int32:
		return float64(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Number(t.String())
		}
		return f
	case string:
		s := nonNumeric.ReplaceAllString(t, "")
		s = strings.Replace(s, ",", ".", 1)
		m := floatPrefix.FindString(s)
		if m == "" {
			return 0
		}
		f, err := strconv.ParseFloat(m, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// Phone converts v to an E.164-like string. Everything but digits and "+"
// is dropped. Without a leading "+", one leading zero is stripped and the
// country code is prefixed unless already present. Empty input yields "".
func Phone(v any, countryCode string) string {
	s := Clean(v)
	if s == "" {
		return ""
	}
	if countryCode == "" {
		countryCode = DefaultCountryCode
	}
	digits := nonPhone.ReplaceAllString(s, "")
	if strings.HasPrefix(digits, "+") {
		return "+" + strings.ReplaceAll(digits[1:], "+", "")
	}
	digits = strings.ReplaceAll(digits, "+", "")
	if digits == "" {
		return ""
	}
	digits = strings.TrimPrefix(digits, "0")
	if !strings.HasPrefix(digits, countryCode) {
		digits = countryCode + digits
	}
	return "+" + digits
}

// Digits returns only the decimal digits of s.
func Digits(s string) string {
	return nonDigit.ReplaceAllString(s, "")
}

// Product slugs a product name. Whitespace is collapsed and lowercased; when
// a "+" is present the spaces around it are removed, and all remaining
// whitespace becomes a hyphen. Product(Product(s)) == Product(s).
func Product(s string) string {
	n := strings.ToLower(strings.TrimSpace(s))
	if n == "" {
		return ""
	}
	n = whitespace.ReplaceAllString(n, " ")
	if strings.Contains(n, "+") {
		n = plusSpacing.ReplaceAllString(n, "+")
	}
	return strings.ReplaceAll(n, " ", "-")
}

// Tags parses an explicit action field into a tag list. Arrays pass through
// cleaned. Strings are split on the first delimiter found among ",", ";",
// "|" and newline. Empty entries are dropped.
func Tags(v any) []string {
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s := Clean(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s := strings.TrimSpace(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return []string{}
		}
		for _, sep := range []string{",", ";", "|", "\n"} {
			if strings.Contains(s, sep) {
				var out []string
				for _, part := range strings.Split(s, sep) {
					if p := strings.TrimSpace(part); p != "" {
						out = append(out, p)
					}
				}
				if out == nil {
					out = []string{}
				}
				return out
			}
		}
		return []string{s}
	default:
		return []string{}
	}
}

// EventSlug lowercases an event name and turns underscores into hyphens.
func EventSlug(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-")
}
