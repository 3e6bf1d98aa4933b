package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdf-chat/internal/models"
)

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"report.pdf", "report"},
		{"report.PDF", "report"},
		{"report.json", "report"},
		{"report", "report"},
		{"My Annual Report 2024.pdf", "My_Annual_Report_2024"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\me\notes.pdf`, "notes"},
		{"résumé.pdf", "resume"},
		{"  spaced\tout  .pdf", "spaced_out"},
		{".hidden.pdf", "hidden"},
		{"a;b&c|d.pdf", "abcd"},
		{"v1.2-final.pdf", "v1.2-final"},
		{"data.json.pdf", "data"},
		{"x.pdf.pdf", "x"},
		{"Report.PDF.json", "Report"},
		{"a.pdf;.pdf", "a"},
		{"notes.pdf日.pdf", "notes"},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			got, err := NormalizeKey(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestNormalizeKey_Idempotent(t *testing.T) {
	for _, name := range []string{
		"My Report.pdf", "résumé.json", "v1.2-final",
		"data.json.pdf", "x.pdf.pdf", "a.pdf;.pdf", "notes.pdf日.pdf", "weird .pdf .pdf",
	} {
		once, err := NormalizeKey(name)
		require.NoError(t, err)
		twice, err := NormalizeKey(once)
		require.NoError(t, err)
		assert.Equal(t, once, twice)
	}
}

func TestNormalizeKey_Invalid(t *testing.T) {
	for _, name := range []string{"", "   ", ".pdf", "..", "日本語.pdf", "/"} {
		t.Run(name, func(t *testing.T) {
			_, err := NormalizeKey(name)
			assert.ErrorIs(t, err, models.ErrInvalidInput)
		})
	}
}
