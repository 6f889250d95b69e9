package vault

import (
	"unicode"
	"unicode/utf8"
)

// Strength is advisory feedback on a secret. It never decides whether a
// secret may be saved.
type Strength struct {
	Score int
	Label string
}

var strengthLabels = [...]string{"very weak", "weak", "fair", "good", "strong", "very strong"}

// Evaluate scores secret from 0 to 5: one point for being at least eight
// characters long and one for each of lower case, upper case, digits and
// symbols. Whitespace counts towards length only.
func Evaluate(secret []byte) Strength {
	var lower, upper, digit, symbol bool
	for b := secret; len(b) > 0; {
		r, n := utf8.DecodeRune(b)
		b = b[n:]
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsSpace(r), r == utf8.RuneError:
		default:
			symbol = true
		}
	}

	score := 0
	for _, ok := range []bool{utf8.RuneCount(secret) >= 8, lower, upper, digit, symbol} {
		if ok {
			score++
		}
	}
	return Strength{Score: score, Label: strengthLabels[score]}
}
