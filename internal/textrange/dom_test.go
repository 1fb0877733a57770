package textrange

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const testPageMarkup = `<div data-page="1">` +
	`<p data-paragraph="0">Hello <b>world</b>.</p>` +
	`<p data-paragraph="1">Second paragraph here.</p>` +
	`</div>`

func parseTestPage(t *testing.T, markup string) *html.Node {
	t.Helper()
	ctx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(markup), ctx)
	require.NoError(t, err)
	for _, n := range nodes {
		if _, ok := NodeAttr(n, AttrPage); ok {
			return n
		}
	}
	t.Fatal("no page container in markup")
	return nil
}

func TestParagraphElementsAndText(t *testing.T) {
	page := parseTestPage(t, testPageMarkup)
	paras := ParagraphElements(page)
	require.Len(t, paras, 2)
	require.Equal(t, "Hello world.", NodeText(paras[0]))
	require.Equal(t, "Second paragraph here.", NodeText(paras[1]))

	idx, ok := ParagraphIndex(paras[1])
	require.True(t, ok)
	require.Equal(t, 1, idx)
}

func TestOffsetsToRangeRoundTrip(t *testing.T) {
	page := parseTestPage(t, testPageMarkup)
	boundaries := ComputeParagraphBoundaries("Hello world.\n\nSecond paragraph here.")

	tests := []struct {
		name  string
		start int
		end   int
	}{
		{name: "spanning element boundary", start: 6, end: 11},
		{name: "inside one text node", start: 1, end: 4},
		{name: "cross paragraph", start: 6, end: 20},
		{name: "whole first paragraph", start: 0, end: 12},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rng, err := OffsetsToRange(tc.start, tc.end, page, boundaries)
			require.NoError(t, err)
			require.False(t, rng.Collapsed())

			start, end, err := RangeToOffsets(rng, page, boundaries)
			require.NoError(t, err)
			require.Equal(t, tc.start, start)
			require.Equal(t, tc.end, end)
		})
	}
}

func TestOffsetsToRangeCollapsed(t *testing.T) {
	page := parseTestPage(t, testPageMarkup)
	boundaries := ComputeParagraphBoundaries("Hello world.\n\nSecond paragraph here.")

	tests := []struct {
		name   string
		offset int
	}{
		{name: "inside a text node", offset: 3},
		{name: "at an element boundary", offset: 6},
		{name: "at end of paragraph", offset: 12},
		{name: "at end of page", offset: 36},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rng, err := OffsetsToRange(tc.offset, tc.offset, page, boundaries)
			require.NoError(t, err)
			require.True(t, rng.Collapsed())
			require.Same(t, rng.StartNode, rng.EndNode)

			start, end, err := RangeToOffsets(rng, page, boundaries)
			require.NoError(t, err)
			require.Equal(t, tc.offset, start)
			require.Equal(t, tc.offset, end)
		})
	}

	_, err := OffsetsToRange(99, 99, page, boundaries)
	require.ErrorIs(t, err, ErrStructureMismatch)
}

func TestOffsetsToRangeSelectsBoundaryNodes(t *testing.T) {
	page := parseTestPage(t, testPageMarkup)
	boundaries := ComputeParagraphBoundaries("Hello world.\n\nSecond paragraph here.")

	rng, err := OffsetsToRange(6, 11, page, boundaries)
	require.NoError(t, err)
	require.Equal(t, "world", rng.StartNode.Data)
	require.Equal(t, 0, rng.StartOffset)
	require.Equal(t, "world", rng.EndNode.Data)
	require.Equal(t, 5, rng.EndOffset)
}

func TestOffsetsToRangeStructureMismatch(t *testing.T) {
	page := parseTestPage(t, testPageMarkup)
	// Boundaries describe a longer paragraph than the tree actually holds.
	boundaries := ComputeParagraphBoundaries("Hello world. And then some more text.\n\nSecond paragraph here.")

	_, err := OffsetsToRange(20, 30, page, boundaries)
	require.ErrorIs(t, err, ErrStructureMismatch)
}

func TestRangeToOffsetsNotAnchored(t *testing.T) {
	page := parseTestPage(t, testPageMarkup)
	boundaries := ComputeParagraphBoundaries("Hello world.\n\nSecond paragraph here.")

	orphan := &html.Node{Type: html.TextNode, Data: "elsewhere"}
	_, _, err := RangeToOffsets(&Range{StartNode: orphan, StartOffset: 0, EndNode: orphan, EndOffset: 3}, page, boundaries)
	require.ErrorIs(t, err, ErrRangeNotAnchored)
}

func TestRangeSameNodeFastPath(t *testing.T) {
	page := parseTestPage(t, testPageMarkup)
	boundaries := ComputeParagraphBoundaries("Hello world.\n\nSecond paragraph here.")

	rng, err := OffsetsToRange(1, 4, page, boundaries)
	require.NoError(t, err)
	require.Same(t, rng.StartNode, rng.EndNode)

	start, end, err := RangeToOffsets(rng, page, boundaries)
	require.NoError(t, err)
	require.Equal(t, 1, start)
	require.Equal(t, 4, end)
}

func TestEstimateOffsetFromPoint(t *testing.T) {
	cfg := FallbackConfig{LineHeightPx: 24, CharsPerLine: 80}

	require.Equal(t, 0, EstimateOffsetFromPoint(0, cfg))
	require.Equal(t, 0, EstimateOffsetFromPoint(23, cfg))
	require.Equal(t, 160, EstimateOffsetFromPoint(50, cfg))
	require.Equal(t, 0, EstimateOffsetFromPoint(-5, cfg))
	require.Equal(t, 0, EstimateOffsetFromPoint(100, FallbackConfig{}))
}
