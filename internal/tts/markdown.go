package tts

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// SpeechText reduces markdown to the text a listener should hear: markup is
// dropped, code blocks and raw HTML are skipped, and headings, paragraphs
// and list items each end in a sentence break.
func SpeechText(markdown string) string {
	source := []byte(markdown)
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	var buf strings.Builder
	walkSpeech(doc, source, &buf)

	return strings.Join(strings.Fields(buf.String()), " ")
}

func walkSpeech(node ast.Node, source []byte, buf *strings.Builder) {
	switch n := node.(type) {
	case *ast.CodeBlock, *ast.FencedCodeBlock, *ast.HTMLBlock, *ast.RawHTML, *ast.AutoLink:
		return

	case *ast.Text:
		buf.Write(n.Segment.Value(source))
		if n.SoftLineBreak() || n.HardLineBreak() {
			buf.WriteByte(' ')
		}
		return

	case *ast.String:
		buf.Write(n.Value)
		return

	case *ast.Heading, *ast.Paragraph, *ast.ListItem:
		walkChildren(n, source, buf)
		endSentence(buf)
		return

	case *ast.ThematicBreak:
		endSentence(buf)
		return
	}

	walkChildren(node, source, buf)
}

func walkChildren(node ast.Node, source []byte, buf *strings.Builder) {
	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		walkSpeech(c, source, buf)
	}
}

// endSentence terminates the text written so far with a period unless it
// already ends in punctuation.
func endSentence(buf *strings.Builder) {
	s := strings.TrimRight(buf.String(), " ")
	if s == "" {
		return
	}
	if !strings.ContainsAny(s[len(s)-1:], ".!?:;") {
		buf.WriteByte('.')
	}
	buf.WriteByte(' ')
}
