// Package markdown renders comment text into display markup.
//
// This is a fixed substitution set, not a markdown parser: bold, italic,
// inline code, line breaks, and @mentions. The result is computed once at
// write time and stored on the comment record.
package markdown

import (
	"html"
	"regexp"
)

// Rule order matters: bold runs before italic because the double-asterisk
// delimiter is a superset of the single one, and escaping runs before
// everything so user input can never smuggle raw markup through.
var (
	boldPattern    = regexp.MustCompile(`\*\*([^*\n]+)\*\*`)
	italicPattern  = regexp.MustCompile(`\*([^*\n]+)\*`)
	codePattern    = regexp.MustCompile("`([^`\n]+)`")
	newlinePattern = regexp.MustCompile(`\r?\n`)
	mentionPattern = regexp.MustCompile(`@(\w+)`)
)

// Format transforms raw comment content into display markup. It is pure and
// deterministic: the same input always produces the same output.
func Format(content string) string {
	formatted := html.EscapeString(content)
	formatted = boldPattern.ReplaceAllString(formatted, "<strong>$1</strong>")
	formatted = italicPattern.ReplaceAllString(formatted, "<em>$1</em>")
	formatted = codePattern.ReplaceAllString(formatted, "<code>$1</code>")
	formatted = newlinePattern.ReplaceAllString(formatted, "<br>")
	formatted = mentionPattern.ReplaceAllString(formatted, `<span class="mention">@$1</span>`)
	return formatted
}

// Mentions returns the distinct @tokens found in raw content, in order of
// first appearance. Tokens are advisory: they are not checked against real
// user ids.
func Mentions(content string) []string {
	matches := mentionPattern.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	tokens := make([]string, 0, len(matches))
	for _, match := range matches {
		token := match[1]
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		tokens = append(tokens, token)
	}
	return tokens
}
