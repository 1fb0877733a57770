package render

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/xxxsen/redpen/internal/textrange"
)

const (
	AttrAnnotationID   = "data-annotation-id"
	AttrAnnotationType = "data-annotation-type"
)

// Options are presentation flags layered over computed segments. Toggling
// similarity visibility changes styling only; the spans and their offsets are
// computed identically either way.
type Options struct {
	SimilarityVisible bool
}

// PageHTML serializes rendered paragraphs into the page markup the
// materializer and selection resolution operate on: one paragraph element per
// paragraph tagged with its index, one span per annotated segment.
func PageHTML(pageNumber int, paragraphs []ParagraphRender, opts Options) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, `<div %s="%d">`, textrange.AttrPage, pageNumber)
	for _, p := range paragraphs {
		fmt.Fprintf(&sb, `<p %s="%d">`, textrange.AttrParagraph, p.Index)
		for _, seg := range p.Segments {
			if seg.Annotation == nil {
				sb.WriteString(html.EscapeString(seg.Text))
				continue
			}
			fmt.Fprintf(&sb, `<span %s="%s" %s="%s" class="%s">%s</span>`,
				AttrAnnotationID, html.EscapeString(seg.Annotation.ID),
				AttrAnnotationType, string(seg.Annotation.Type),
				spanClass(seg.Annotation, opts),
				html.EscapeString(seg.Text))
		}
		sb.WriteString("</p>")
	}
	sb.WriteString("</div>")
	return sb.String()
}

func spanClass(a *Annotation, opts Options) string {
	classes := []string{"hl", "hl-" + string(a.Type)}
	if a.Type == AnnotationSimilarity && !opts.SimilarityVisible {
		classes = append(classes, "hl-hidden")
	}
	if a.Color != "" {
		classes = append(classes, "hl-color-"+a.Color)
	}
	return strings.Join(classes, " ")
}

// ParsePageHTML parses page markup back into the node tree that range
// anchoring and the highlight materializer mutate. Returns the page container
// element.
func ParsePageHTML(markup string) (*html.Node, error) {
	ctx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(markup), ctx)
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		if n.Type == html.ElementNode {
			if _, ok := textrange.NodeAttr(n, textrange.AttrPage); ok {
				return n, nil
			}
		}
	}
	return nil, fmt.Errorf("no page container in markup")
}

// SerializeNode renders a node tree back to markup.
func SerializeNode(n *html.Node) (string, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// MarkdownHTML renders markdown bodies (comments, summary notes, chat
// replies) for the rendered-page payload.
func MarkdownHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}
