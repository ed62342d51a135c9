package normalize

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	primaryDocumentPattern = regexp.MustCompile(`(?is)<DOCUMENT>\s*<TYPE>(?:10-K|10-Q|20-F).*?<TEXT>(.*?)</TEXT>`)
	firstTextPattern       = regexp.MustCompile(`(?is)<TEXT>(.*?)</TEXT>`)

	xbrlMemberToken = regexp.MustCompile(`\b[a-z0-9][a-z0-9-]*:[A-Za-z0-9_]+Member\b`)
	xbrlToken       = regexp.MustCompile(`\b[a-z0-9][a-z0-9-]*:[A-Za-z0-9_]+\b`)
	whitespaceRun   = regexp.MustCompile(`\s+`)
)

// skippedElements never contribute visible text.
var skippedElements = map[string]bool{
	"script":    true,
	"style":     true,
	"head":      true,
	"title":     true,
	"noscript":  true,
	"ix:header": true,
}

// CleanFiling converts an SEC full-submission file or a standalone HTML
// filing into cropped plain text with collapsed whitespace.
func CleanFiling(raw string) string {
	body := raw
	if m := primaryDocumentPattern.FindStringSubmatch(raw); m != nil {
		body = m[1]
	} else if m := firstTextPattern.FindStringSubmatch(raw); m != nil {
		body = m[1]
	}

	text := HTMLText(body)
	text = xbrlMemberToken.ReplaceAllString(text, "")
	text = xbrlToken.ReplaceAllString(text, "")
	text = Crop(text)
	return CollapseWhitespace(text)
}

// HTMLText returns the visible text of an HTML fragment. Text nodes are
// separated by a single space; block boundaries are kept as newlines so the
// crop heuristics still see line structure.
func HTMLText(markup string) string {
	z := html.NewTokenizer(strings.NewReader(markup))
	var b strings.Builder
	skipDepth := 0

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			// io.EOF or malformed input; either way return what was read
			return strings.TrimSpace(b.String())

		case html.StartTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if skippedElements[tag] {
				skipDepth++
			}
			if isBlock(tag) {
				b.WriteByte('\n')
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if skippedElements[tag] && skipDepth > 0 {
				skipDepth--
			}
			if isBlock(tag) {
				b.WriteByte('\n')
			}

		case html.SelfClosingTagToken:
			name, _ := z.TagName()
			if string(name) == "br" {
				b.WriteByte('\n')
			}

		case html.TextToken:
			if skipDepth > 0 {
				continue
			}
			text := strings.TrimSpace(string(z.Text()))
			if text == "" {
				continue
			}
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(text)
		}
	}
}

// CollapseWhitespace replaces every whitespace run with a single space.
func CollapseWhitespace(text string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))
}

func isBlock(tag string) bool {
	switch tag {
	case "p", "div", "br", "tr", "table", "li", "h1", "h2", "h3", "h4", "h5", "h6", "section":
		return true
	}
	return false
}
