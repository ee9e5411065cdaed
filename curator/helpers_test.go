package curator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMinifyString(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		limit    int
		expected string
	}{
		{
			name:     "String shorter than limit",
			input:    "Short string",
			limit:    20,
			expected: "Short string",
		},
		{
			name:     "String equal to limit",
			input:    "Exactly twenty chars",
			limit:    20,
			expected: "Exactly twenty chars",
		},
		{
			name:     "String with double newlines",
			input:    "Line 1\n\nLine 2\n\nLine 3",
			limit:    15,
			expected: "Line 1\nLine 2\nL",
		},
		{
			name:     "String with bold markdown",
			input:    "Some **bold** text here",
			limit:    15,
			expected: "Some bold text",
		},
	}

	for _, tc := range testCases {
		t.Run(
			tc.name, func(t *testing.T) {
				result := minifyString(tc.input, tc.limit)
				assert.Equal(t, tc.expected, result)
				assert.LessOrEqual(t, len(result), tc.limit)
			},
		)
	}
}

func TestTruncate(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		limit    int
		expected string
	}{
		{
			name:     "String shorter than limit",
			input:    "short",
			limit:    10,
			expected: "short",
		},
		{
			name:     "String equal to limit",
			input:    "ten chars!",
			limit:    10,
			expected: "ten chars!",
		},
		{
			name:     "String longer than limit",
			input:    "this one is too long",
			limit:    7,
			expected: "this on",
		},
		{
			name:     "Multibyte runes kept whole",
			input:    "🧾🧾🧾🧾",
			limit:    2,
			expected: "🧾🧾",
		},
	}

	for _, tc := range testCases {
		t.Run(
			tc.name, func(t *testing.T) {
				assert.Equal(t, tc.expected, truncate(tc.input, tc.limit))
			},
		)
	}
}

func TestWordCount(t *testing.T) {
	assert.Equal(t, 0, wordCount(""))
	assert.Equal(t, 0, wordCount("   \n\t"))
	assert.Equal(t, 3, wordCount("one two three"))
	assert.Equal(t, 3, wordCount("  one\ntwo\t three  "))
}
