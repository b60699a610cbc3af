package html

import (
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Elements that start on a new line and end one.
var blockTags = map[atom.Atom]struct{}{
	atom.Address:    {},
	atom.Article:    {},
	atom.Blockquote: {},
	atom.Div:        {},
	atom.Footer:     {},
	atom.Header:     {},
	atom.Hr:         {},
	atom.Ol:         {},
	atom.Pre:        {},
	atom.Section:    {},
	atom.Table:      {},
	atom.Tr:         {},
	atom.Ul:         {},
}

// Elements followed by a blank line.
var paragraphTags = map[atom.Atom]struct{}{
	atom.P:  {},
	atom.H1: {},
	atom.H2: {},
	atom.H3: {},
	atom.H4: {},
	atom.H5: {},
	atom.H6: {},
}

// Elements whose content never shows up in a rendered email.
var skippedTags = map[atom.Atom]struct{}{
	atom.Head:     {},
	atom.Script:   {},
	atom.Style:    {},
	atom.Title:    {},
	atom.Template: {},
}

// textWriter accumulates plain text, collapsing whitespace the way a
// browser would and keeping track of line breaks so we never emit more
// than one blank line in a row.
type textWriter struct {
	b        strings.Builder
	newlines int // trailing newlines in b
	space    bool
}

func (w *textWriter) text(s string) {
	if s == "" {
		return
	}
	if unicode.IsSpace(rune(s[0])) {
		w.space = true
	}
	for _, f := range strings.Fields(s) {
		if w.space && w.b.Len() > 0 && w.newlines == 0 {
			w.b.WriteByte(' ')
		}
		w.b.WriteString(f)
		w.newlines = 0
		w.space = true
	}
	w.space = unicode.IsSpace(rune(s[len(s)-1]))
}

// lineBreak forces a newline, up to one blank line.
func (w *textWriter) lineBreak() {
	if w.b.Len() == 0 || w.newlines >= 2 {
		return
	}
	w.b.WriteByte('\n')
	w.newlines++
	w.space = false
}

// ensureLines makes sure the text ends with at least n newlines.
func (w *textWriter) ensureLines(n int) {
	for w.b.Len() > 0 && w.newlines < n {
		w.b.WriteByte('\n')
		w.newlines++
	}
	w.space = false
}

func (w *textWriter) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		w.text(n.Data)
		return
	case html.DocumentNode:
		w.children(n)
		return
	case html.ElementNode:
	default:
		return
	}

	if _, ok := skippedTags[n.DataAtom]; ok {
		return
	}

	switch n.DataAtom {
	case atom.Br:
		w.lineBreak()
		return
	case atom.Img:
		if alt := attr(n, "alt"); alt != "" {
			w.text(" " + alt + " ")
		}
		return
	case atom.Li:
		w.ensureLines(1)
		w.b.WriteString("-")
		w.newlines = 0
		w.space = true
		w.children(n)
		w.ensureLines(1)
		return
	case atom.Td, atom.Th:
		w.space = true
		w.children(n)
		w.space = true
		return
	case atom.A:
		start := w.b.Len()
		w.children(n)
		href := attr(n, "href")
		label := strings.TrimSpace(w.b.String()[start:])
		if href != "" && href != label && !strings.HasPrefix(href, "#") &&
			strings.TrimPrefix(href, "mailto:") != label {
			w.text(" (" + href + ")")
		}
		return
	}

	if _, ok := paragraphTags[n.DataAtom]; ok {
		w.ensureLines(1)
		w.children(n)
		w.ensureLines(2)
		return
	}
	if _, ok := blockTags[n.DataAtom]; ok {
		w.ensureLines(1)
		w.children(n)
		w.ensureLines(1)
		return
	}
	w.children(n)
}

func (w *textWriter) children(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// PlainText renders the text content of an HTML tree for the text/plain
// alternative of an email.
func PlainText(n *html.Node) string {
	var w textWriter
	w.walk(n)

	lines := strings.Split(w.b.String(), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRightFunc(l, unicode.IsSpace)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
