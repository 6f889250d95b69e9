package vault

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		secret string
		score  int
		label  string
	}{
		{"", 0, "very weak"},
		{"   ", 0, "very weak"},
		{"abc", 1, "weak"},
		{"abcdefgh", 2, "fair"},
		{"abcdEFGH", 3, "good"},
		{"abcdEF12", 4, "strong"},
		{"X7!kq2Lp", 5, "very strong"},
		{"A1!", 3, "good"},
		{"пароль12", 3, "good"},
	}

	for _, tt := range tests {
		t.Run(tt.secret, func(t *testing.T) {
			got := Evaluate([]byte(tt.secret))
			assert.Equal(t, Strength{Score: tt.score, Label: tt.label}, got)
		})
	}
}
