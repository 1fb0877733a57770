package textrange

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeParagraphBoundaries(t *testing.T) {
	pageText := "Hello world.\n\nSecond paragraph here."
	boundaries := ComputeParagraphBoundaries(pageText)
	require.Len(t, boundaries, 2)

	require.Equal(t, 0, boundaries[0].Start)
	require.Equal(t, 12, boundaries[0].End)
	require.Equal(t, "Hello world.", boundaries[0].Text)

	require.Equal(t, 14, boundaries[1].Start)
	require.Equal(t, 36, boundaries[1].End)
	require.Equal(t, "Second paragraph here.", boundaries[1].Text)
}

func TestComputeParagraphBoundariesEmptyParagraph(t *testing.T) {
	boundaries := ComputeParagraphBoundaries("a\n\n\n\nb")
	require.Len(t, boundaries, 3)
	require.Equal(t, 1, boundaries[0].End)
	require.Equal(t, 3, boundaries[1].Start)
	require.Equal(t, 3, boundaries[1].End)
	require.Equal(t, 5, boundaries[2].Start)
}

func TestPageOffsetToParagraphOffset(t *testing.T) {
	boundaries := ComputeParagraphBoundaries("Hello world.\n\nSecond paragraph here.")

	tests := []struct {
		name       string
		offset     int
		wantPara   int
		wantLocal  int
		wantExists bool
	}{
		{name: "start of first paragraph", offset: 0, wantPara: 0, wantLocal: 0, wantExists: true},
		{name: "inside first paragraph", offset: 5, wantPara: 0, wantLocal: 5, wantExists: true},
		{name: "end of first paragraph", offset: 12, wantPara: 0, wantLocal: 12, wantExists: true},
		{name: "inside separator gap snaps back", offset: 13, wantPara: 0, wantLocal: 12, wantExists: true},
		{name: "start of second paragraph", offset: 14, wantPara: 1, wantLocal: 0, wantExists: true},
		{name: "end of page", offset: 36, wantPara: 1, wantLocal: 22, wantExists: true},
		{name: "past end", offset: 37, wantExists: false},
		{name: "negative", offset: -1, wantExists: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := PageOffsetToParagraphOffset(tc.offset, boundaries)
			require.Equal(t, tc.wantExists, ok)
			if !ok {
				return
			}
			require.Equal(t, tc.wantPara, got.ParagraphIndex)
			require.Equal(t, tc.wantLocal, got.LocalOffset)
		})
	}
}

func TestPageOffsetEmptyParagraphOwnsSharedPosition(t *testing.T) {
	boundaries := ComputeParagraphBoundaries("a\n\n\n\nb")
	got, ok := PageOffsetToParagraphOffset(3, boundaries)
	require.True(t, ok)
	require.Equal(t, 1, got.ParagraphIndex)
	require.Equal(t, 0, got.LocalOffset)
}

func TestResolveSpanCrossParagraph(t *testing.T) {
	boundaries := ComputeParagraphBoundaries("Hello world.\n\nSecond paragraph here.")
	spans := ResolveSpan(6, 20, boundaries)
	require.Len(t, spans, 2)
	require.Equal(t, ParagraphSpan{ParagraphIndex: 0, Start: 6, End: 12}, spans[0])
	require.Equal(t, ParagraphSpan{ParagraphIndex: 1, Start: 0, End: 6}, spans[1])
}

func TestResolveSpanSingleParagraph(t *testing.T) {
	boundaries := ComputeParagraphBoundaries("Hello world.\n\nSecond paragraph here.")
	spans := ResolveSpan(6, 11, boundaries)
	require.Len(t, spans, 1)
	require.Equal(t, ParagraphSpan{ParagraphIndex: 0, Start: 6, End: 11}, spans[0])
}

func TestResolveSpanDegenerate(t *testing.T) {
	boundaries := ComputeParagraphBoundaries("Hello world.")
	require.Nil(t, ResolveSpan(5, 5, boundaries))
	require.Nil(t, ResolveSpan(8, 3, boundaries))
}

func TestReconstructedLength(t *testing.T) {
	boundaries := ComputeParagraphBoundaries("Hello world.\n\nSecond paragraph here.")
	require.Equal(t, 36, ReconstructedLength(boundaries))
	require.Equal(t, 0, ReconstructedLength(nil))
}
