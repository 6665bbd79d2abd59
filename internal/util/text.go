package util

import (
	"regexp"
	"strings"
)

var codeFenceRe = regexp.MustCompile("(?s)```[a-zA-Z0-9+#]*\\s*\n?(.*?)```")

// ExtractCode pulls source code out of a model completion. Models are asked
// for bare code but frequently wrap it in markdown fences or surround it
// with prose anyway, so the fenced block wins when one is present.
func ExtractCode(completion string) string {
	matches := codeFenceRe.FindStringSubmatch(completion)
	if len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}
	return strings.TrimSpace(completion)
}

// TruncateString truncates a string to maxLen runes, appending an ellipsis
// when anything was cut. Rune-based so multi-byte UTF-8 stays intact.
func TruncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}

// FirstLine returns the first non-empty line of s, trimmed.
func FirstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
