package subscription

import (
	"strings"
	"unicode"
)

// Leading phrases banks put in front of the payee.
var merchantPrefixes = []string{
	"card payment to",
	"direct debit to",
	"direct debit",
	"standing order to",
	"payment to",
	"purchase at",
}

// Trailing corporate and domain tokens.
var merchantSuffixes = map[string]bool{
	"ltd":     true,
	"limited": true,
	"plc":     true,
	"inc":     true,
	"llc":     true,
	"corp":    true,
	"co":      true,
	"com":     true,
	"uk":      true,
}

// NormalizeMerchant reduces a transaction label to a grouping key: lower-cased,
// punctuation dropped, bank prefixes and corporate suffixes removed.
func NormalizeMerchant(label string) string {
	words := strings.FieldsFunc(strings.ToLower(label), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	key := strings.Join(words, " ")

	for _, p := range merchantPrefixes {
		if key == p {
			return ""
		}
		if strings.HasPrefix(key, p+" ") {
			key = strings.TrimPrefix(key, p+" ")
			break
		}
	}

	words = strings.Fields(key)
	for len(words) > 1 && merchantSuffixes[words[len(words)-1]] {
		words = words[:len(words)-1]
	}
	return strings.Join(words, " ")
}

// hasTerm reports whether term appears in key as whole words.
func hasTerm(key, term string) bool {
	return strings.Contains(" "+key+" ", " "+term+" ")
}
