package langdetect

import (
	"strings"

	"github.com/abadojack/whatlanggo"
)

// Detect returns a human-readable language name for the given text, or
// an empty string when the text is too short or ambiguous to classify.
func Detect(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return ""
	}
	return info.Lang.String()
}
