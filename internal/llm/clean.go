package llm

import (
	"regexp"
	"strings"
)

var (
	reThink        = regexp.MustCompile(`(?i)</?think>`)
	reReasonTail   = regexp.MustCompile(`(?is)/reason\b.*`)
	reSpecialToken = regexp.MustCompile(`<\|im_[a-z]+\|>`)
)

// CleanModelOutput strips reasoning delimiters, a trailing "/reason"
// directive and everything after it, special token markers, and stray
// backtick fencing. Mechanical normalization only; JSON recovery is the
// salvager's job.
func CleanModelOutput(text string) string {
	text = reThink.ReplaceAllString(text, "")
	text = reReasonTail.ReplaceAllString(text, "")
	text = reSpecialToken.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "``", "")
	text = strings.ReplaceAll(text, "`", "")
	return strings.TrimSpace(text)
}
