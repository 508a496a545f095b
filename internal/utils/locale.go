package contextutils

import "strings"

// Locale represents a language locale used when asking the LLM to respond
// in the learner's language.
type Locale string

const (
	// LocaleEnglish represents English language
	LocaleEnglish Locale = "en"
	// LocaleSpanish represents Spanish language
	LocaleSpanish Locale = "es"
	// LocalePortuguese represents Portuguese language
	LocalePortuguese Locale = "pt"
	// LocaleFrench represents French language
	LocaleFrench Locale = "fr"
	// LocaleGerman represents German language
	LocaleGerman Locale = "de"
)

// ParseLocale parses a locale string (e.g., "en-US", "pt-BR") and returns the language part
func ParseLocale(localeStr string) Locale {
	parts := strings.Split(localeStr, "-")
	if len(parts) > 0 && parts[0] != "" {
		return Locale(strings.ToLower(parts[0]))
	}
	return LocaleEnglish // Default fallback
}

// DisplayName returns the English name of the locale's language for use in prompts
func (l Locale) DisplayName() string {
	switch l {
	case LocaleSpanish:
		return "Spanish"
	case LocalePortuguese:
		return "Portuguese"
	case LocaleFrench:
		return "French"
	case LocaleGerman:
		return "German"
	default:
		return "English"
	}
}
