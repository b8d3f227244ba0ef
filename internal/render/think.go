package render

import (
	"regexp"
	"strings"
)

var (
	thinkBlockRe = regexp.MustCompile(`(?s)<(think|thinking)>(.*?)</(?:think|thinking)>`)
	thinkOpenRe  = regexp.MustCompile(`(?s)<(?:think|thinking)>(.*)$`)
)

// SplitThink pulls reasoning blocks out of a model reply. Every closed
// <think> or <thinking> block is collected in order; an opening tag that is
// never closed (a reply cut off by the token limit) swallows the rest of the
// text.
func SplitThink(content string) (think, response string, found bool) {
	var parts []string
	rest := thinkBlockRe.ReplaceAllStringFunc(content, func(block string) string {
		m := thinkBlockRe.FindStringSubmatch(block)
		if body := strings.TrimSpace(m[2]); body != "" {
			parts = append(parts, body)
		}
		found = true
		return ""
	})

	if m := thinkOpenRe.FindStringSubmatchIndex(rest); m != nil {
		if body := strings.TrimSpace(rest[m[2]:m[3]]); body != "" {
			parts = append(parts, body)
		}
		rest = rest[:m[0]]
		found = true
	}

	if !found {
		return "", content, false
	}
	return strings.Join(parts, "\n\n"), strings.TrimSpace(rest), true
}
