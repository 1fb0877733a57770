package selection

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/xxxsen/redpen/internal/render"
	"github.com/xxxsen/redpen/internal/textrange"
)

const testContent = "Hello world.\n\nSecond paragraph here."

func testRange(t *testing.T, start, end int) *textrange.Range {
	t.Helper()
	paragraphs := render.Page(testContent, nil)
	markup := render.PageHTML(3, paragraphs, render.Options{SimilarityVisible: true})
	tree, err := render.ParsePageHTML(markup)
	require.NoError(t, err)
	boundaries := textrange.ComputeParagraphBoundaries(testContent)
	rng, err := textrange.OffsetsToRange(start, end, tree, boundaries)
	require.NoError(t, err)
	return rng
}

func TestCaptureReturnsState(t *testing.T) {
	rng := testRange(t, 6, 11)
	state := Capture(Input{
		Range:         rng,
		Text:          "world",
		SelectionRect: Rect{Left: 100, Top: 200, Width: 60, Height: 20},
		ContainerRect: Rect{Left: 50, Top: 100},
		ScrollTop:     10,
		ScrollLeft:    20,
	}, Options{ActionBarWidthPx: 320})

	require.NotNil(t, state)
	require.Equal(t, "world", state.Text)
	require.Equal(t, 3, state.PageNumber)
	// center(130) - barWidth/2(160) - containerLeft(50) + scrollLeft(20)
	require.Equal(t, -60.0, state.Position.X)
	// top(200) - containerTop(100) + scrollTop(10)
	require.Equal(t, 110.0, state.Position.Y)

	// The stored range is a clone: reassigning the original's boundaries must
	// not move the captured one.
	require.NotSame(t, rng, state.Range)
	rng.StartOffset = 0
	require.Equal(t, 6, state.Range.StartOffset)
}

func TestCaptureDismissals(t *testing.T) {
	valid := testRange(t, 6, 11)
	collapsed := testRange(t, 6, 6)
	orphan := &textrange.Range{
		StartNode: &html.Node{Type: html.TextNode, Data: "floating"},
		EndNode:   &html.Node{Type: html.TextNode, Data: "floating"},
		EndOffset: 8,
	}
	orphan.EndNode = orphan.StartNode

	tests := []struct {
		name string
		in   Input
	}{
		{name: "nil range", in: Input{Text: "world"}},
		{name: "collapsed range", in: Input{Range: collapsed, Text: "world"}},
		{name: "whitespace only text", in: Input{Range: valid, Text: "   \n\t"}},
		{name: "empty text", in: Input{Range: valid, Text: ""}},
		{name: "outside any page", in: Input{Range: orphan, Text: "floating"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Nil(t, Capture(tc.in, Options{ActionBarWidthPx: 320}))
		})
	}
}

func TestAnchorIgnoresScrollIndependentGeometry(t *testing.T) {
	rng := testRange(t, 0, 5)
	base := Input{
		Range:         rng,
		Text:          "Hello",
		SelectionRect: Rect{Left: 80, Top: 150, Width: 40},
		ContainerRect: Rect{Left: 0, Top: 0},
	}
	unscrolled := Capture(base, Options{ActionBarWidthPx: 100})
	require.NotNil(t, unscrolled)

	scrolled := base
	scrolled.ScrollTop = 300
	scrolled.ScrollLeft = 50
	withScroll := Capture(scrolled, Options{ActionBarWidthPx: 100})
	require.NotNil(t, withScroll)

	// Scroll shifts the anchor by exactly the scroll amount, keeping it glued
	// to the same document position.
	require.Equal(t, unscrolled.Position.X+50, withScroll.Position.X)
	require.Equal(t, unscrolled.Position.Y+300, withScroll.Position.Y)
}
