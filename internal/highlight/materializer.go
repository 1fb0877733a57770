package highlight

import (
	"context"
	"errors"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/xxxsen/redpen/internal/model"
	"github.com/xxxsen/redpen/internal/textrange"
)

// Materialized wrappers carry their own attribute namespace so cleanup never
// touches the declarative renderer's annotation spans.
const (
	AttrHighlightID   = "data-highlight-id"
	AttrHighlightType = "data-highlight-type"
	AttrSelected      = "data-selected"
)

var (
	ErrCollapsedRange = errors.New("cannot wrap a collapsed range")
	ErrSplitBoundary  = errors.New("range boundaries not under one paragraph")
)

// Wrap mutates the page tree to surround the range with a span carrying the
// highlight id and type. A range inside a single text node takes the direct
// path (split the node, insert the wrapper); otherwise the contents between
// the boundaries are extracted into the wrapper and the wrapper re-inserted,
// mirroring the surroundContents → extractContents+insertNode fallback.
func Wrap(r *textrange.Range, id, highlightType string) (*html.Node, error) {
	if r.Collapsed() {
		return nil, ErrCollapsedRange
	}
	if r.StartNode == r.EndNode {
		return wrapSingleTextNode(r, id, highlightType)
	}
	return wrapExtracted(r, id, highlightType)
}

func newWrapper(id, highlightType string) *html.Node {
	return &html.Node{
		Type:     html.ElementNode,
		Data:     "span",
		DataAtom: atom.Span,
		Attr: []html.Attribute{
			{Key: AttrHighlightID, Val: id},
			{Key: AttrHighlightType, Val: highlightType},
		},
	}
}

func wrapSingleTextNode(r *textrange.Range, id, highlightType string) (*html.Node, error) {
	node := r.StartNode
	parent := node.Parent
	if parent == nil || node.Type != html.TextNode {
		return nil, ErrSplitBoundary
	}
	data := node.Data
	if r.StartOffset < 0 || r.EndOffset > len(data) || r.StartOffset >= r.EndOffset {
		return nil, textrange.ErrStructureMismatch
	}
	wrapper := newWrapper(id, highlightType)
	wrapper.AppendChild(&html.Node{Type: html.TextNode, Data: data[r.StartOffset:r.EndOffset]})

	if r.StartOffset > 0 {
		parent.InsertBefore(&html.Node{Type: html.TextNode, Data: data[:r.StartOffset]}, node)
	}
	parent.InsertBefore(wrapper, node)
	if r.EndOffset < len(data) {
		parent.InsertBefore(&html.Node{Type: html.TextNode, Data: data[r.EndOffset:]}, node)
	}
	parent.RemoveChild(node)
	return wrapper, nil
}

// wrapExtracted handles ranges spanning several nodes. Both boundaries must
// live under the same paragraph element; the affected run of that paragraph's
// children is moved into the wrapper. A boundary nested below another element
// is taken whole rather than split, which is coarser than a browser's
// extractContents but preserves text content and document flow.
func wrapExtracted(r *textrange.Range, id, highlightType string) (*html.Node, error) {
	startPara, _ := textrange.AncestorWithAttr(r.StartNode, textrange.AttrParagraph)
	endPara, _ := textrange.AncestorWithAttr(r.EndNode, textrange.AttrParagraph)
	if startPara == nil || startPara != endPara {
		return nil, ErrSplitBoundary
	}
	para := startPara

	startTop := topAncestorUnder(para, r.StartNode)
	endTop := topAncestorUnder(para, r.EndNode)
	if startTop == nil || endTop == nil {
		return nil, ErrSplitBoundary
	}

	// Split boundary text nodes that sit directly under the paragraph so only
	// the selected text moves into the wrapper.
	if startTop == r.StartNode && r.StartNode.Type == html.TextNode && r.StartOffset > 0 {
		keep := &html.Node{Type: html.TextNode, Data: r.StartNode.Data[:r.StartOffset]}
		para.InsertBefore(keep, startTop)
		r.StartNode.Data = r.StartNode.Data[r.StartOffset:]
	}
	if endTop == r.EndNode && r.EndNode.Type == html.TextNode && r.EndOffset < len(r.EndNode.Data) {
		tail := &html.Node{Type: html.TextNode, Data: r.EndNode.Data[r.EndOffset:]}
		if endTop.NextSibling != nil {
			para.InsertBefore(tail, endTop.NextSibling)
		} else {
			para.AppendChild(tail)
		}
		r.EndNode.Data = r.EndNode.Data[:r.EndOffset]
	}

	wrapper := newWrapper(id, highlightType)
	para.InsertBefore(wrapper, startTop)
	for node := startTop; node != nil; {
		next := node.NextSibling
		para.RemoveChild(node)
		wrapper.AppendChild(node)
		if node == endTop {
			break
		}
		node = next
	}
	return wrapper, nil
}

func topAncestorUnder(parent, n *html.Node) *html.Node {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Parent == parent {
			return cur
		}
	}
	return nil
}

// FindByID returns the materialized wrapper carrying the id, or nil.
func FindByID(page *html.Node, id string) *html.Node {
	var found *html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		for child := n.FirstChild; child != nil && found == nil; child = child.NextSibling {
			if v, ok := textrange.NodeAttr(child, AttrHighlightID); ok && v == id {
				found = child
				return
			}
			walk(child)
		}
	}
	walk(page)
	return found
}

// Restore re-materializes persisted comments onto a freshly rendered page
// tree. Idempotent: comments whose wrapper already exists are skipped. A
// comment whose offsets no longer fit the tree is skipped with a warning
// rather than failing the whole restore.
func Restore(ctx context.Context, page *html.Node, boundaries []textrange.ParagraphBoundary, comments []model.Comment) []string {
	var skipped []string
	for _, comment := range comments {
		if FindByID(page, comment.ID) != nil {
			continue
		}
		rng, err := textrange.OffsetsToRange(comment.StartOffset, comment.EndOffset, page, boundaries)
		if err != nil {
			logutil.GetLogger(ctx).Warn("skip comment restore: offsets no longer match page",
				zap.String("comment_id", comment.ID),
				zap.Int("start", comment.StartOffset),
				zap.Int("end", comment.EndOffset),
				zap.Error(err))
			skipped = append(skipped, comment.ID)
			continue
		}
		if _, err := Wrap(rng, comment.ID, comment.Type); err != nil {
			logutil.GetLogger(ctx).Warn("skip comment restore: wrap failed",
				zap.String("comment_id", comment.ID), zap.Error(err))
			skipped = append(skipped, comment.ID)
		}
	}
	return skipped
}

// Cleanup unwraps every materialized wrapper whose id is not in alive,
// replacing it with a plain text node carrying its text content so document
// flow is preserved. Returns the number of wrappers removed.
func Cleanup(page *html.Node, alive map[string]struct{}) int {
	var stale []*html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			if id, ok := textrange.NodeAttr(child, AttrHighlightID); ok {
				if _, live := alive[id]; !live {
					stale = append(stale, child)
					continue
				}
			}
			walk(child)
		}
	}
	walk(page)
	for _, wrapper := range stale {
		unwrap(wrapper)
	}
	return len(stale)
}

func unwrap(wrapper *html.Node) {
	parent := wrapper.Parent
	if parent == nil {
		return
	}
	text := textrange.NodeText(wrapper)
	if text != "" {
		parent.InsertBefore(&html.Node{Type: html.TextNode, Data: text}, wrapper)
	}
	parent.RemoveChild(wrapper)
}

// SetSelected toggles the selected style state of a wrapper. Attribute-only:
// text content and offsets are untouched.
func SetSelected(page *html.Node, id string, selected bool) bool {
	wrapper := FindByID(page, id)
	if wrapper == nil {
		return false
	}
	if selected {
		textrange.SetNodeAttr(wrapper, AttrSelected, "true")
	} else {
		textrange.RemoveNodeAttr(wrapper, AttrSelected)
	}
	return true
}
