package parser

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"clean text unchanged", "Hello, world.\nNext line\tTabbed", "Hello, world.\nNext line\tTabbed"},
		{"invalid utf8 dropped", "abc\xffdef", "abcdef"},
		{"nul and control dropped", "a\x00b\x07c", "abc"},
		{"composed to NFC", "e\u0301", "\u00e9"},
		{"unicode kept", "naïve – ☃", "naïve – ☃"},
		{"empty", "", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Sanitize(tc.input)
			assert.Equal(t, tc.expected, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
}
