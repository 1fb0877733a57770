package textrange

import (
	"errors"
	"strconv"

	"golang.org/x/net/html"
)

// AttrParagraph marks rendered paragraph elements with their paragraph index.
const AttrParagraph = "data-paragraph"

// AttrPage marks the rendered page container with its page number.
const AttrPage = "data-page"

var (
	// ErrRangeNotAnchored is returned when a range's boundary containers
	// cannot be found under any paragraph of the given page tree.
	ErrRangeNotAnchored = errors.New("range not anchored in page")
	// ErrStructureMismatch is returned when stored offsets no longer fit the
	// page tree's text content.
	ErrStructureMismatch = errors.New("page structure does not match offsets")
)

// Range is a pair of boundary points into a rendered page tree, analogous to
// a DOM Range: each boundary is a text node plus a character offset into it.
type Range struct {
	StartNode   *html.Node
	StartOffset int
	EndNode     *html.Node
	EndOffset   int
}

func (r *Range) Collapsed() bool {
	return r == nil || (r.StartNode == r.EndNode && r.StartOffset == r.EndOffset)
}

// Clone copies the boundary points. The referenced nodes are shared; cloning
// insulates the boundaries themselves from later reassignment, which is all
// the stability later offset computation needs.
func (r *Range) Clone() *Range {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

func NodeAttr(n *html.Node, key string) (string, bool) {
	if n == nil || n.Type != html.ElementNode {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func SetNodeAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func RemoveNodeAttr(n *html.Node, key string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}

// ParagraphElements collects the page tree's paragraph elements in document
// order, keyed by their paragraph-index attribute.
func ParagraphElements(page *html.Node) []*html.Node {
	var out []*html.Node
	walkPreOrder(page, func(n *html.Node) bool {
		if _, ok := NodeAttr(n, AttrParagraph); ok {
			out = append(out, n)
			return false
		}
		return true
	})
	return out
}

// ParagraphIndex reads the paragraph-index attribute of an element.
func ParagraphIndex(el *html.Node) (int, bool) {
	v, ok := NodeAttr(el, AttrParagraph)
	if !ok {
		return 0, false
	}
	idx, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return idx, true
}

// TextNodes returns the text nodes under el in pre-order, depth-first order,
// which is the order their content concatenates to the paragraph text.
func TextNodes(el *html.Node) []*html.Node {
	var out []*html.Node
	walkPreOrder(el, func(n *html.Node) bool {
		if n.Type == html.TextNode {
			out = append(out, n)
		}
		return true
	})
	return out
}

// NodeText concatenates the text content under n.
func NodeText(n *html.Node) string {
	text := ""
	for _, tn := range TextNodes(n) {
		text += tn.Data
	}
	return text
}

// AncestorWithAttr walks up from n to the first element carrying the given
// attribute, n itself included.
func AncestorWithAttr(n *html.Node, key string) (*html.Node, string) {
	for cur := n; cur != nil; cur = cur.Parent {
		if v, ok := NodeAttr(cur, key); ok {
			return cur, v
		}
	}
	return nil, ""
}

// RangeToOffsets converts a range over the page tree into page-text offsets
// by accumulating text-node lengths paragraph by paragraph until each
// boundary container is reached. When both boundaries share one text node the
// end is derived directly from the start. Boundaries not found under any
// paragraph yield ErrRangeNotAnchored; callers may then fall back to
// EstimateOffsetFromPoint, which is approximate by design.
func RangeToOffsets(r *Range, page *html.Node, boundaries []ParagraphBoundary) (int, int, error) {
	if r == nil || r.StartNode == nil || r.EndNode == nil {
		return 0, 0, ErrRangeNotAnchored
	}
	start, okStart := locateTextPosition(r.StartNode, r.StartOffset, page, boundaries)
	if !okStart {
		return 0, 0, ErrRangeNotAnchored
	}
	if r.StartNode == r.EndNode {
		return start, start + (r.EndOffset - r.StartOffset), nil
	}
	end, okEnd := locateTextPosition(r.EndNode, r.EndOffset, page, boundaries)
	if !okEnd {
		return 0, 0, ErrRangeNotAnchored
	}
	return start, end, nil
}

func locateTextPosition(target *html.Node, offsetInNode int, page *html.Node, boundaries []ParagraphBoundary) (int, bool) {
	for _, para := range ParagraphElements(page) {
		idx, ok := ParagraphIndex(para)
		if !ok || idx < 0 || idx >= len(boundaries) {
			continue
		}
		acc := 0
		for _, tn := range TextNodes(para) {
			if tn == target {
				return boundaries[idx].Start + acc + offsetInNode, true
			}
			acc += len(tn.Data)
		}
	}
	return 0, false
}

// OffsetsToRange is the inverse walk: it re-locates the text-node positions
// for stored page offsets. A start == end pair yields a collapsed range with
// both boundaries at that position. Returns ErrStructureMismatch when the
// tree's text no longer covers the offsets (content changed since they were
// computed).
func OffsetsToRange(start, end int, page *html.Node, boundaries []ParagraphBoundary) (*Range, error) {
	if end < start {
		return nil, ErrStructureMismatch
	}
	if end == start {
		pos, ok := PageOffsetToParagraphOffset(start, boundaries)
		if !ok {
			return nil, ErrStructureMismatch
		}
		node, offset, err := placeLocalOffset(page, pos.ParagraphIndex, pos.LocalOffset, true)
		if err != nil {
			return nil, err
		}
		return &Range{StartNode: node, StartOffset: offset, EndNode: node, EndOffset: offset}, nil
	}
	spans := ResolveSpan(start, end, boundaries)
	if len(spans) == 0 {
		return nil, ErrStructureMismatch
	}
	first, last := spans[0], spans[len(spans)-1]
	startNode, startOffset, err := placeLocalOffset(page, first.ParagraphIndex, first.Start, false)
	if err != nil {
		return nil, err
	}
	endNode, endOffset, err := placeLocalOffset(page, last.ParagraphIndex, last.End, true)
	if err != nil {
		return nil, err
	}
	return &Range{StartNode: startNode, StartOffset: startOffset, EndNode: endNode, EndOffset: endOffset}, nil
}

func placeLocalOffset(page *html.Node, paragraphIndex, local int, preferEnd bool) (*html.Node, int, error) {
	var para *html.Node
	for _, el := range ParagraphElements(page) {
		if idx, ok := ParagraphIndex(el); ok && idx == paragraphIndex {
			para = el
			break
		}
	}
	if para == nil {
		return nil, 0, ErrStructureMismatch
	}
	nodes := TextNodes(para)
	acc := 0
	for _, tn := range nodes {
		nodeLen := len(tn.Data)
		within := local < acc+nodeLen
		if preferEnd {
			within = local <= acc+nodeLen
		}
		if within && local >= acc {
			return tn, local - acc, nil
		}
		acc += nodeLen
	}
	// Offset exactly at the paragraph's end lands after the last text node.
	if len(nodes) > 0 && local == acc {
		lastNode := nodes[len(nodes)-1]
		return lastNode, len(lastNode.Data), nil
	}
	return nil, 0, ErrStructureMismatch
}

// FallbackConfig holds the empirically tuned constants for the coarse
// line/column offset estimate. Configuration, not contract.
type FallbackConfig struct {
	LineHeightPx int
	CharsPerLine int
}

// EstimateOffsetFromPoint approximates a page offset from a vertical pixel
// offset relative to the page's top. The result is a coarse estimate and must
// never be treated as an exact anchor.
func EstimateOffsetFromPoint(relativeY float64, cfg FallbackConfig) int {
	if cfg.LineHeightPx <= 0 || cfg.CharsPerLine <= 0 || relativeY < 0 {
		return 0
	}
	line := int(relativeY) / cfg.LineHeightPx
	return line * cfg.CharsPerLine
}

// walkPreOrder visits n and its descendants depth-first; visit returning
// false prunes the subtree below that node.
func walkPreOrder(n *html.Node, visit func(*html.Node) bool) {
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if visit(child) {
			walkPreOrder(child, visit)
		}
	}
}
