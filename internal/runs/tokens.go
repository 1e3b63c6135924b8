package runs

import "unicode/utf8"

// Output budget multipliers, applied to the input length.
const (
	OutputMultiplier     = 3
	AnnotationMultiplier = 1
	ThinkingMultiplier   = 6
)

// MaxTokens returns the completion budget for an input: its length in runes
// times the sum of the multipliers.
func MaxTokens(input string) int {
	return utf8.RuneCountInString(input) * (OutputMultiplier + AnnotationMultiplier + ThinkingMultiplier)
}
