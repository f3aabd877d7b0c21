package postprocess

import (
	"regexp"
	"strings"
)

// applyGrammarPass applies a small table of conservative, unconditionally
// safe suggestions. No suggestion here can change the meaning of the
// transcript, so unlike a real grammar/style checker there is no
// "reject if any suggestion is unsafe" branch to implement: every rule in
// this table already qualifies.
func applyGrammarPass(text string) string {
	text = collapseRepeatedSpaces.ReplaceAllString(text, " ")
	text = removeDuplicateAdjacentWords(text)
	text = strayCommaBeforeTerminator.ReplaceAllString(text, "$1")
	return text
}

var (
	collapseRepeatedSpaces    = regexp.MustCompile(` {2,}`)
	strayCommaBeforeTerminator = regexp.MustCompile(`,\s*([.!?])`)
	wordToken                  = regexp.MustCompile(`\w+`)
)

func removeDuplicateAdjacentWords(text string) string {
	words := wordToken.FindAllStringIndex(text, -1)
	var out strings.Builder
	last := 0
	for i := 1; i < len(words); i++ {
		prev, cur := words[i-1], words[i]
		if strings.TrimSpace(text[prev[1]:cur[0]]) == "" && strings.EqualFold(text[prev[0]:prev[1]], text[cur[0]:cur[1]]) {
			out.WriteString(text[last:prev[1]])
			last = cur[1]
		}
	}
	out.WriteString(text[last:])
	return out.String()
}
