package corpus

import (
	"strings"

	"golang.org/x/net/html"
)

// skipText lists elements whose text never belongs to a review
var skipText = map[string]bool{
	"script": true,
	"style":  true,
	"head":   true,
}

// blockElements break words when their tags are removed
var blockElements = map[string]bool{
	"br": true, "p": true, "div": true, "li": true, "tr": true, "td": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "blockquote": true,
}

// StripMarkup returns the visible text of an HTML fragment with entities
// decoded and whitespace collapsed. Plain text passes through unchanged
// apart from whitespace.
func StripMarkup(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return collapseSpace(s)
	}

	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	skipDepth := 0

	for {
		switch z.Next() {
		case html.ErrorToken:
			return collapseSpace(b.String())

		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if skipText[tag] {
				skipDepth++
			}
			if blockElements[tag] {
				b.WriteByte(' ')
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if skipText[tag] && skipDepth > 0 {
				skipDepth--
			}
			if blockElements[tag] {
				b.WriteByte(' ')
			}

		case html.TextToken:
			if skipDepth == 0 {
				b.Write(z.Text())
			}
		}
	}
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
