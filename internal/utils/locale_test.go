package contextutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLocale(t *testing.T) {
	tests := []struct {
		input    string
		expected Locale
	}{
		{"en", LocaleEnglish},
		{"en-US", LocaleEnglish},
		{"EN", LocaleEnglish},
		{"pt-BR", LocalePortuguese},
		{"es-MX", LocaleSpanish},
		{"fr-CA", LocaleFrench},
		{"", LocaleEnglish}, // Default fallback
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLocale(tt.input))
		})
	}
}

func TestLocale_DisplayName(t *testing.T) {
	assert.Equal(t, "English", LocaleEnglish.DisplayName())
	assert.Equal(t, "Portuguese", LocalePortuguese.DisplayName())
	assert.Equal(t, "Spanish", LocaleSpanish.DisplayName())
	assert.Equal(t, "English", Locale("zz").DisplayName())
}
