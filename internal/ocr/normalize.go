package ocr

import (
	"regexp"
	"strings"
)

var (
	reInnerSpace = regexp.MustCompile(`[ \t]{2,}|\t`)
	reRuleLine   = regexp.MustCompile(`^[_\-=.]{3,}$`)
)

// normalizeSegment trims a segment and collapses runs of spaces and tabs.
// Table rules and underlines read as separators ("-----") come back empty.
func normalizeSegment(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || reRuleLine.MatchString(s) {
		return ""
	}
	return reInnerSpace.ReplaceAllString(s, " ")
}
