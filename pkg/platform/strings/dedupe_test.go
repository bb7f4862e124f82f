package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{name: "nil slice", input: nil, expected: nil},
		{name: "empty slice", input: []string{}, expected: []string{}},
		{name: "trims and drops blanks", input: []string{"  Go ", "", "   "}, expected: []string{"Go"}},
		{name: "keeps first occurrence order", input: []string{"SQL", "Go", "SQL", " Go"}, expected: []string{"SQL", "Go"}},
		{name: "case is significant", input: []string{"Go", "go"}, expected: []string{"Go", "go"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DedupeAndTrim(tt.input))
		})
	}
}

func TestDedupeAndTrimLower(t *testing.T) {
	assert.Equal(t, []string{"go", "postgresql"}, DedupeAndTrimLower([]string{" GO", "PostgreSQL", "go ", ""}))
	assert.Nil(t, DedupeAndTrimLower(nil))
}
