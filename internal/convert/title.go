// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

// titleParser keeps its state in a per-call context, so one instance is shared.
var titleParser = goldmark.New(goldmark.WithExtensions(extension.GFM)).Parser()

// maxTitleLen bounds titles taken from headings, in runes.
const maxTitleLen = 200

// Title returns the text of the first level 1 or level 2 heading in
// markdown, or "" when there is none.
func Title(markdown string) string {
	src := []byte(markdown)
	doc := titleParser.Parse(text.NewReader(src))

	var title string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		if h.Level > 2 {
			return ast.WalkSkipChildren, nil
		}
		if t := strings.TrimSpace(inlineText(h, src)); t != "" {
			title = t
			return ast.WalkStop, nil
		}
		return ast.WalkSkipChildren, nil
	})

	if r := []rune(title); len(r) > maxTitleLen {
		title = strings.TrimSpace(string(r[:maxTitleLen]))
	}
	return title
}

// inlineText concatenates the literal text below n, dropping markup such as
// emphasis and link destinations.
func inlineText(n ast.Node, src []byte) string {
	var b strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch v := c.(type) {
		case *ast.Text:
			b.Write(v.Segment.Value(src))
			if v.SoftLineBreak() || v.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(v.Value)
		default:
			b.WriteString(inlineText(c, src))
		}
	}
	return b.String()
}
