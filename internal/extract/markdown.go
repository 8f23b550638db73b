package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/toc"
)

// Markdown renders Markdown to plain text. Blocks are separated by blank lines
// and every H1/H2 heading is replaced by its full section path
// ("Installation > Prerequisites") so that chunks keep their section context.
type Markdown struct {
	parser goldmark.Markdown
}

// NewMarkdown creates a Markdown extractor configured with the goldmark parser.
func NewMarkdown() *Markdown {
	return &Markdown{
		parser: goldmark.New(
			goldmark.WithParserOptions(
				parser.WithAutoHeadingID(),
			),
		),
	}
}

func (m *Markdown) Extract(ctx context.Context, data []byte, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	doc := m.parser.Parser().Parse(text.NewReader(data))

	tree, err := toc.Inspect(doc, data,
		toc.MinDepth(1),
		toc.MaxDepth(2),
		toc.Compact(true),
	)
	if err != nil {
		return "", fmt.Errorf("inspect headings: %w", err)
	}
	paths := make(map[string]string)
	collectPaths(tree.Items, nil, paths)

	var blocks []string
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		var b strings.Builder
		if h, ok := n.(*ast.Heading); ok {
			if path, ok := paths[headingID(h)]; ok {
				blocks = append(blocks, path)
				continue
			}
		}
		writeText(&b, n, data)
		if s := strings.TrimSpace(b.String()); s != "" {
			blocks = append(blocks, s)
		}
	}
	return strings.Join(blocks, "\n\n"), nil
}

// collectPaths maps heading ids to their "Parent > Child" section path.
func collectPaths(items toc.Items, ancestors []string, out map[string]string) {
	for _, item := range items {
		current := append(append([]string(nil), ancestors...), string(item.Title))
		if len(item.ID) > 0 {
			out[string(item.ID)] = strings.Join(current, " > ")
		}
		collectPaths(item.Items, current, out)
	}
}

func headingID(h *ast.Heading) string {
	id, ok := h.AttributeString("id")
	if !ok {
		return ""
	}
	if b, ok := id.([]byte); ok {
		return string(b)
	}
	return ""
}

// writeText appends the visible text of n and its descendants.
func writeText(b *strings.Builder, n ast.Node, source []byte) {
	switch v := n.(type) {
	case *ast.Text:
		b.Write(v.Segment.Value(source))
		if v.SoftLineBreak() || v.HardLineBreak() {
			b.WriteByte('\n')
		}
		return
	case *ast.String:
		b.Write(v.Value)
		return
	case *ast.AutoLink:
		b.Write(v.Label(source))
		return
	case *ast.CodeBlock, *ast.FencedCodeBlock:
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			b.Write(seg.Value(source))
		}
		return
	case *ast.HTMLBlock, *ast.RawHTML, *ast.ThematicBreak:
		return
	}

	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		writeText(b, c, source)
		if c.Type() == ast.TypeBlock && c.NextSibling() != nil {
			b.WriteByte('\n')
		}
	}
}
