package textrange

import "strings"

// ParagraphGap is the width of the join separator between paragraphs in
// reconstructed page text. Every persisted offset in every overlay was
// computed against this width; changing it invalidates all of them.
const ParagraphGap = 2

const paragraphSeparator = "\n\n"

// ParagraphBoundary records one paragraph's cumulative [Start, End) offsets
// within reconstructed page text. End-Start equals len(Text); the next
// paragraph starts at End+ParagraphGap.
type ParagraphBoundary struct {
	Index int
	Start int
	End   int
	Text  string
}

func ComputeParagraphBoundaries(pageText string) []ParagraphBoundary {
	parts := strings.Split(pageText, paragraphSeparator)
	boundaries := make([]ParagraphBoundary, 0, len(parts))
	cursor := 0
	for i, text := range parts {
		b := ParagraphBoundary{Index: i, Start: cursor, End: cursor + len(text), Text: text}
		boundaries = append(boundaries, b)
		cursor = b.End + ParagraphGap
	}
	return boundaries
}

type ParagraphOffset struct {
	ParagraphIndex int
	LocalOffset    int
}

// PageOffsetToParagraphOffset locates the paragraph owning pageOffset. An
// offset equal to a paragraph's End (including an empty paragraph's shared
// Start==End position) resolves to that paragraph's end rather than the next
// paragraph's start; offsets inside the separator gap snap to the preceding
// paragraph's end. Resolve start/end pairs together via ResolveSpan instead
// of calling this twice.
func PageOffsetToParagraphOffset(pageOffset int, boundaries []ParagraphBoundary) (ParagraphOffset, bool) {
	if pageOffset < 0 {
		return ParagraphOffset{}, false
	}
	for _, b := range boundaries {
		if pageOffset < b.Start {
			return ParagraphOffset{}, false
		}
		if pageOffset <= b.End {
			return ParagraphOffset{ParagraphIndex: b.Index, LocalOffset: pageOffset - b.Start}, true
		}
		next := b.End + ParagraphGap
		if pageOffset < next {
			return ParagraphOffset{ParagraphIndex: b.Index, LocalOffset: b.End - b.Start}, true
		}
	}
	return ParagraphOffset{}, false
}

// ParagraphSpan is a paragraph-local sub-range of a page-level span.
type ParagraphSpan struct {
	ParagraphIndex int
	Start          int
	End            int
}

// ResolveSpan clips the page-level range [start, end) to the paragraphs it
// overlaps, in paragraph-local coordinates clamped to [0, len(paragraph)].
// A range crossing a paragraph boundary yields one span per paragraph; it is
// never represented as a single cross-paragraph span.
func ResolveSpan(start, end int, boundaries []ParagraphBoundary) []ParagraphSpan {
	if end <= start {
		return nil
	}
	var spans []ParagraphSpan
	for _, b := range boundaries {
		if start >= b.End || end <= b.Start {
			continue
		}
		localStart := clamp(start-b.Start, 0, b.End-b.Start)
		localEnd := clamp(end-b.Start, 0, b.End-b.Start)
		if localEnd > localStart {
			spans = append(spans, ParagraphSpan{ParagraphIndex: b.Index, Start: localStart, End: localEnd})
		}
	}
	return spans
}

// ReconstructedLength is the total page text length including separator gaps.
func ReconstructedLength(boundaries []ParagraphBoundary) int {
	if len(boundaries) == 0 {
		return 0
	}
	last := boundaries[len(boundaries)-1]
	return last.End
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
