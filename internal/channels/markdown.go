package channels

import (
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"

	"github.com/millwright-ai/millwright/internal/logging"
)

// telegramMarkdown parses assistant replies before conversion to Telegram
// HTML. Strikethrough is the only extension Telegram's tag subset can
// represent.
var telegramMarkdown = goldmark.New(goldmark.WithExtensions(extension.Strikethrough))

// formatTelegram renders markdown as Telegram HTML. ok is false when
// rendering fails, in which case the caller should send the text unformatted.
func formatTelegram(source string) (string, bool) {
	formatted, err := renderTelegram(source, telegramMarkdown)
	if err != nil {
		logging.Logger().Warn("telegram markdown rendering failed", "err", err)
		return "", false
	}
	return formatted, true
}

// renderTelegram converts markdown to the HTML subset Telegram accepts: b, i,
// s, a, code, pre, and blockquote. Headings become bold lines. Images and raw
// HTML have no Telegram rendering and are omitted.
func renderTelegram(source string, md goldmark.Markdown) (string, error) {
	if md == nil {
		return "", errors.New("no markdown parser configured")
	}
	src := []byte(source)
	root := md.Parser().Parse(text.NewReader(src))

	var b strings.Builder
	for node := root.FirstChild(); node != nil; node = node.NextSibling() {
		writeTelegramBlock(&b, node, src)
	}
	return b.String(), nil
}

func writeTelegramBlock(b *strings.Builder, node ast.Node, source []byte) {
	switch n := node.(type) {
	case *ast.Heading:
		b.WriteString("<b>")
		writeTelegramInline(b, n, source)
		b.WriteString("</b>\n")
	case *ast.FencedCodeBlock:
		writeTelegramCodeLines(b, n, source)
		writeTelegramBlockGap(b, n)
	case *ast.CodeBlock:
		writeTelegramCodeLines(b, n, source)
		writeTelegramBlockGap(b, n)
	case *ast.List:
		writeTelegramList(b, n, source, "")
		if n.NextSibling() != nil {
			b.WriteString("\n")
		}
	case *ast.Blockquote:
		b.WriteString("<blockquote>")
		for child := n.FirstChild(); child != nil; child = child.NextSibling() {
			if child != n.FirstChild() {
				b.WriteString("\n")
			}
			writeTelegramInline(b, child, source)
		}
		b.WriteString("</blockquote>")
		writeTelegramBlockGap(b, n)
	case *ast.ThematicBreak, *ast.HTMLBlock:
		// No Telegram rendering.
	default:
		writeTelegramInline(b, node, source)
		writeTelegramBlockGap(b, node)
	}
}

// writeTelegramBlockGap separates paragraph-style blocks with a blank line.
// The last block ends without one so short replies stay trim.
func writeTelegramBlockGap(b *strings.Builder, node ast.Node) {
	if node.NextSibling() != nil {
		b.WriteString("\n\n")
	}
}

func writeTelegramCodeLines(b *strings.Builder, node ast.Node, source []byte) {
	b.WriteString("<pre><code>")
	lines := node.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		b.WriteString(html.EscapeString(string(line.Value(source))))
	}
	b.WriteString("</code></pre>")
}

// writeTelegramList renders list items as plain marker lines. Telegram has no
// list tags, so markers stay textual and nested lists indent by two spaces.
func writeTelegramList(b *strings.Builder, list *ast.List, source []byte, indent string) {
	index := list.Start
	if index <= 0 {
		index = 1
	}
	for item := list.FirstChild(); item != nil; item = item.NextSibling() {
		b.WriteString(indent)
		if list.IsOrdered() {
			fmt.Fprintf(b, "%d. ", index)
			index++
		} else {
			b.WriteString("- ")
		}
		for block := item.FirstChild(); block != nil; block = block.NextSibling() {
			if nested, ok := block.(*ast.List); ok {
				b.WriteString("\n")
				writeTelegramList(b, nested, source, indent+"  ")
				continue
			}
			writeTelegramInline(b, block, source)
		}
		if !strings.HasSuffix(b.String(), "\n") {
			b.WriteString("\n")
		}
	}
}

func writeTelegramInline(b *strings.Builder, node ast.Node, source []byte) {
	_ = ast.Walk(node, func(child ast.Node, entering bool) (ast.WalkStatus, error) {
		switch n := child.(type) {
		case *ast.Text:
			if entering {
				b.WriteString(html.EscapeString(string(n.Segment.Value(source))))
				if n.SoftLineBreak() || n.HardLineBreak() {
					b.WriteString("\n")
				}
			}
		case *ast.String:
			if entering {
				b.WriteString(html.EscapeString(string(n.Value)))
			}
		case *ast.Emphasis:
			tag := "i"
			if n.Level >= 2 {
				tag = "b"
			}
			if entering {
				b.WriteString("<" + tag + ">")
			} else {
				b.WriteString("</" + tag + ">")
			}
		case *extast.Strikethrough:
			if entering {
				b.WriteString("<s>")
			} else {
				b.WriteString("</s>")
			}
		case *ast.CodeSpan:
			if entering {
				b.WriteString("<code>")
			} else {
				b.WriteString("</code>")
			}
		case *ast.Link:
			if entering {
				b.WriteString(`<a href="` + html.EscapeString(string(n.Destination)) + `">`)
			} else {
				b.WriteString("</a>")
			}
		case *ast.AutoLink:
			if entering {
				url := html.EscapeString(string(n.URL(source)))
				label := html.EscapeString(string(n.Label(source)))
				b.WriteString(`<a href="` + url + `">` + label + `</a>`)
			}
		case *ast.Image, *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
}
