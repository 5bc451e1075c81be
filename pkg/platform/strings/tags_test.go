package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTags(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{name: "nil stays nil", input: nil, expected: nil},
		{name: "only blanks become nil", input: []string{"", "  ", "\t"}, expected: nil},
		{name: "lowercases", input: []string{"Diabetic"}, expected: []string{"diabetic"}},
		{
			name:     "collapses inner whitespace",
			input:    []string{"  wheelchair \t user  "},
			expected: []string{"wheelchair user"},
		},
		{
			name:     "drops repeats keeping first position",
			input:    []string{"pets", "Diabetic", "PETS", "diabetic", "hearing loop"},
			expected: []string{"pets", "diabetic", "hearing loop"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeTags(tt.input))
		})
	}
}
