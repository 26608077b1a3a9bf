package document

import (
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// KindSpan is the node kind of a bracketed span.
var KindSpan = ast.NewNodeKind("Span")

// Span is an inline `[text]{attrs}` element rendered as <span attrs>text</span>.
type Span struct {
	ast.BaseInline
}

func (n *Span) Kind() ast.NodeKind {
	return KindSpan
}

func (n *Span) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, nil, nil)
}

// spanOpener marks an unclosed `[` of a bracketed span while the rest of the line is
// parsed. It never survives to rendering: the closing `]{...}` or CloseBlock replaces it.
type spanOpener struct {
	ast.BaseInline
	Segment text.Segment
	bottom  ast.Node
}

var kindSpanOpener = ast.NewNodeKind("SpanOpener")

func (n *spanOpener) Kind() ast.NodeKind {
	return kindSpanOpener
}

func (n *spanOpener) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, nil, nil)
}

var spanOpenersKey = parser.NewContextKey()

func spanOpeners(pc parser.Context) []*spanOpener {
	if v := pc.Get(spanOpenersKey); v != nil {
		return v.([]*spanOpener)
	}
	return nil
}

type spanParser struct{}

func (s *spanParser) Trigger() []byte {
	return []byte{'[', ']'}
}

// Parse opens a span only when the `[` has a matching `]` followed by a valid attribute
// block; everything else falls through to the link parser. The text in between is parsed
// as ordinary inline markdown and wrapped once the closing bracket is reached.
func (s *spanParser) Parse(parent ast.Node, block text.Reader, pc parser.Context) ast.Node {
	line, segment := block.PeekLine()
	if line[0] == '[' {
		return s.open(line, segment, block, pc)
	}
	return s.close(block, pc)
}

func (s *spanParser) open(line []byte, segment text.Segment, block text.Reader, pc parser.Context) ast.Node {
	closeAt := matchingBracket(line)
	if closeAt < 0 || closeAt+1 >= len(line) || line[closeAt+1] != '{' {
		return nil
	}

	savedLine, savedPosition := block.Position()
	block.Advance(closeAt + 1)
	_, ok := parser.ParseAttributes(block)
	block.SetPosition(savedLine, savedPosition)
	if !ok {
		return nil
	}

	block.Advance(1)
	opener := &spanOpener{Segment: segment.WithStop(segment.Start + 1)}
	if d := pc.LastDelimiter(); d != nil {
		opener.bottom = d
	}
	pc.Set(spanOpenersKey, append(spanOpeners(pc), opener))
	return opener
}

func (s *spanParser) close(block text.Reader, pc parser.Context) ast.Node {
	openers := spanOpeners(pc)
	if len(openers) == 0 {
		return nil
	}

	block.Advance(1)
	attrs, ok := parser.ParseAttributes(block)
	if !ok {
		return nil
	}

	opener := openers[len(openers)-1]
	pc.Set(spanOpenersKey, openers[:len(openers)-1])

	span := &Span{}
	for _, attr := range attrs {
		span.SetAttribute(attr.Name, attributeBytes(attr.Value))
	}

	parser.ProcessDelimiters(opener.bottom, pc)
	parent := opener.Parent()
	for c := opener.NextSibling(); c != nil; {
		next := c.NextSibling()
		parent.RemoveChild(parent, c)
		span.AppendChild(span, c)
		c = next
	}
	parent.RemoveChild(parent, opener)
	return span
}

// CloseBlock turns openers whose closing bracket was swallowed by another construct
// (a code span, say) back into literal text.
func (s *spanParser) CloseBlock(parent ast.Node, block text.Reader, pc parser.Context) {
	for _, opener := range spanOpeners(pc) {
		if opener.Parent() != nil {
			ast.MergeOrReplaceTextSegment(opener.Parent(), opener, opener.Segment)
		}
	}
	pc.Set(spanOpenersKey, nil)
}

// matchingBracket returns the index of the ']' closing the '[' at line[0], or -1.
func matchingBracket(line []byte) int {
	depth := 0
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '\\':
			i++
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return i
			}
		case '\n':
			return -1
		}
	}
	return -1
}

// attributeBytes normalizes parsed values so the HTML renderer can write them.
func attributeBytes(v any) []byte {
	switch value := v.(type) {
	case []byte:
		return value
	case string:
		return []byte(value)
	default:
		return []byte(fmt.Sprint(value))
	}
}

type spanRenderer struct{}

func (r *spanRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindSpan, r.renderSpan)
}

func (r *spanRenderer) renderSpan(w util.BufWriter, source []byte, n ast.Node, entering bool) (ast.WalkStatus, error) {
	if entering {
		_, _ = w.WriteString("<span")
		if n.Attributes() != nil {
			html.RenderAttributes(w, n, nil)
		}
		_ = w.WriteByte('>')
	} else {
		_, _ = w.WriteString("</span>")
	}
	return ast.WalkContinue, nil
}

type bracketedSpans struct{}

// BracketedSpans adds `[text]{.class #id key=value}` inline spans to goldmark.
var BracketedSpans goldmark.Extender = &bracketedSpans{}

func (e *bracketedSpans) Extend(m goldmark.Markdown) {
	m.Parser().AddOptions(parser.WithInlineParsers(
		util.Prioritized(&spanParser{}, 100),
	))
	m.Renderer().AddOptions(renderer.WithNodeRenderers(
		util.Prioritized(&spanRenderer{}, 500),
	))
}
