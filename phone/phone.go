// Package phone normalizes free-form US/Canada phone strings. International
// numbering outside NANP is intentionally unsupported.
package phone

import (
	"regexp"
	"strings"
)

var (
	nonDigitRE = regexp.MustCompile(`\D+`)
	e164US     = regexp.MustCompile(`\+1\d{10}`)
)

// Digits strips every non-digit character from raw.
func Digits(raw string) string {
	return nonDigitRE.ReplaceAllString(raw, "")
}

// Last10 returns the last ten digits of raw, or "" if fewer than ten exist.
func Last10(raw string) string {
	digits := Digits(raw)
	if len(digits) < 10 {
		return ""
	}
	return digits[len(digits)-10:]
}

// CandidatesFor derives the lookup forms for a raw phone string, in the order
// the CRM search should try them: bare last ten digits, "+1"-prefixed,
// "1"-prefixed, and finally the original string when it already carries a
// leading "+". Candidates are deduplicated. Fewer than ten digits yields nil.
func CandidatesFor(raw string) []string {
	trimmed := strings.TrimSpace(raw)
	last10 := Last10(trimmed)
	if last10 == "" {
		return nil
	}

	candidates := []string{last10, "+1" + last10, "1" + last10}
	if strings.HasPrefix(trimmed, "+") {
		candidates = append(candidates, trimmed)
	}

	seen := make(map[string]bool, len(candidates))
	out := candidates[:0]
	for _, c := range candidates {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

// ToE164 converts raw to "+1XXXXXXXXXX". Eleven digits starting with "1" keep
// their country code; any other string with at least ten digits uses its last
// ten. Fewer than ten digits is unresolvable (ok == false).
func ToE164(raw string) (string, bool) {
	digits := Digits(raw)
	switch {
	case len(digits) == 11 && strings.HasPrefix(digits, "1"):
		return "+" + digits, true
	case len(digits) >= 10:
		return "+1" + digits[len(digits)-10:], true
	default:
		return "", false
	}
}

// ExtractFromText pulls a destination number out of free text, typically a
// chat thread's root message. A literal "+1" followed by ten digits wins;
// otherwise all digits in the text are collapsed and the last ten are used.
func ExtractFromText(text string) (string, bool) {
	if m := e164US.FindString(text); m != "" {
		return m, true
	}
	digits := Digits(text)
	if len(digits) >= 10 {
		return "+1" + digits[len(digits)-10:], true
	}
	return "", false
}
