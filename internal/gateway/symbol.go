package gateway

import (
	"strings"
	"unicode/utf8"
)

const (
	regionalIndicatorA = '\U0001F1E6'
	aliasPrefix        = ":regional_indicator_"
)

// Symbol returns the regional indicator emoji of a proposition letter, e.g. "B" -> "🇧".
func Symbol(letter string) string {
	if len(letter) != 1 {
		return ""
	}

	c := strings.ToUpper(letter)[0]
	if c < 'A' || c > 'Z' {
		return ""
	}

	return string(rune(regionalIndicatorA + rune(c-'A')))
}

// Letter maps a reaction symbol back to its proposition letter.
// Both the emoji and its ":regional_indicator_x:" alias are understood.
func Letter(symbol string) (string, bool) {
	if strings.HasPrefix(symbol, aliasPrefix) && strings.HasSuffix(symbol, ":") {
		c := strings.TrimSuffix(strings.TrimPrefix(symbol, aliasPrefix), ":")
		if len(c) == 1 && c[0] >= 'a' && c[0] <= 'z' {
			return strings.ToUpper(c), true
		}
		return "", false
	}

	r, size := utf8.DecodeRuneInString(symbol)
	if size == 0 || size != len(symbol) {
		return "", false
	}
	if r < regionalIndicatorA || r > regionalIndicatorA+25 {
		return "", false
	}

	return string(rune('A' + (r - regionalIndicatorA))), true
}
