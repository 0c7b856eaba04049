// Package filter cleans LLM output before it is stored or sent.
package filter

import (
	"regexp"
	"strings"
)

var (
	thinkRe    = regexp.MustCompile(`(?is)<think>.*?</think>`)
	newlinesRe = regexp.MustCompile(`\n\s*\n\s*\n`)
)

// Normalize removes <think>...</think> blocks (case-insensitive,
// spanning lines), collapses runs of blank lines down to one, and trims
// surrounding whitespace. Normalizing already-normalized text returns
// it unchanged.
func Normalize(text string) string {
	out := thinkRe.ReplaceAllString(text, "")
	for newlinesRe.MatchString(out) {
		out = newlinesRe.ReplaceAllString(out, "\n\n")
	}
	return strings.TrimSpace(out)
}
