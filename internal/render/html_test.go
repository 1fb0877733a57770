package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/redpen/internal/textrange"
)

func TestPageHTMLMarkup(t *testing.T) {
	paragraphs := Page("Hello world.", []Annotation{
		{ID: "h1", Type: AnnotationSimilarity, Start: 6, End: 11},
	})
	markup := PageHTML(1, paragraphs, Options{SimilarityVisible: true})

	require.Contains(t, markup, `<div data-page="1">`)
	require.Contains(t, markup, `<p data-paragraph="0">`)
	require.Contains(t, markup, `data-annotation-id="h1"`)
	require.Contains(t, markup, `data-annotation-type="similarity"`)
	require.Contains(t, markup, `class="hl hl-similarity"`)
	require.NotContains(t, markup, "hl-hidden")
}

func TestPageHTMLHiddenSimilarityIsStyleOnly(t *testing.T) {
	paragraphs := Page("Hello world.", []Annotation{
		{ID: "h1", Type: AnnotationSimilarity, Start: 6, End: 11},
	})
	visible := PageHTML(1, paragraphs, Options{SimilarityVisible: true})
	hidden := PageHTML(1, paragraphs, Options{SimilarityVisible: false})

	require.Contains(t, hidden, "hl-hidden")
	// The span and its identity survive either way.
	require.Contains(t, hidden, `data-annotation-id="h1"`)
	require.Equal(t,
		strings.ReplaceAll(visible, `class="hl hl-similarity"`, ""),
		strings.ReplaceAll(hidden, `class="hl hl-similarity hl-hidden"`, ""))
}

func TestPageHTMLEscapesContent(t *testing.T) {
	paragraphs := Page("a <b> & c", nil)
	markup := PageHTML(1, paragraphs, Options{})
	require.Contains(t, markup, "a &lt;b&gt; &amp; c")
}

func TestParsePageHTMLRoundTrip(t *testing.T) {
	pageText := "Hello world.\n\nSecond paragraph here."
	paragraphs := Page(pageText, []Annotation{
		{ID: "h1", Type: AnnotationSimilarity, Start: 6, End: 11},
	})
	markup := PageHTML(3, paragraphs, Options{SimilarityVisible: true})

	tree, err := ParsePageHTML(markup)
	require.NoError(t, err)
	v, ok := textrange.NodeAttr(tree, textrange.AttrPage)
	require.True(t, ok)
	require.Equal(t, "3", v)

	paras := textrange.ParagraphElements(tree)
	require.Len(t, paras, 2)
	require.Equal(t, "Hello world.", textrange.NodeText(paras[0]))
	require.Equal(t, "Second paragraph here.", textrange.NodeText(paras[1]))

	out, err := SerializeNode(tree)
	require.NoError(t, err)
	require.Contains(t, out, `data-annotation-id="h1"`)
}

func TestParsePageHTMLNoContainer(t *testing.T) {
	_, err := ParsePageHTML("<p>loose paragraph</p>")
	require.Error(t, err)
}

func TestMarkdownHTML(t *testing.T) {
	out, err := MarkdownHTML("# Title\n\nsome *emphasis*")
	require.NoError(t, err)
	require.Contains(t, out, "<h1>Title</h1>")
	require.Contains(t, out, "<em>emphasis</em>")
}
