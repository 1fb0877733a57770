package render

import (
	"sort"

	"github.com/xxxsen/redpen/internal/textrange"
)

type AnnotationType string

const (
	AnnotationSimilarity AnnotationType = "similarity"
	AnnotationComment    AnnotationType = "comment"
	AnnotationGrading    AnnotationType = "grading"
	AnnotationCustom     AnnotationType = "custom"
)

// Annotation is a source-agnostic offset-tagged span: similarity highlights,
// comment spans, grading marks and custom highlights all reduce to this
// before rendering. Offsets are page-level.
type Annotation struct {
	ID    string
	Type  AnnotationType
	Start int
	End   int
	Color string
}

// Segment is one emitted piece of a paragraph: plain text when Annotation is
// nil, an annotated span otherwise. Offsets are paragraph-local.
type Segment struct {
	Start      int
	End        int
	Text       string
	Annotation *Annotation
}

type ParagraphRender struct {
	Index    int
	Text     string
	Segments []Segment
}

// Page composites all annotation layers for one page into ordered,
// non-overlapping segments per paragraph. Annotations of the same type are
// assumed non-overlapping by the data contract; when two genuinely overlap
// the later one silently consumes text already claimed by the earlier (the
// cursor never moves backwards, so emitted segments stay monotonic). That
// behavior is undefined upstream and deliberately not "fixed" here.
func Page(pageText string, annotations []Annotation) []ParagraphRender {
	boundaries := textrange.ComputeParagraphBoundaries(pageText)
	out := make([]ParagraphRender, 0, len(boundaries))
	for _, b := range boundaries {
		out = append(out, renderParagraph(b, annotations))
	}
	return out
}

func renderParagraph(b textrange.ParagraphBoundary, annotations []Annotation) ParagraphRender {
	paraLen := b.End - b.Start
	local := make([]localAnnotation, 0)
	for i := range annotations {
		a := &annotations[i]
		// Strict overlap test: touching at a boundary is not overlap.
		if a.Start >= b.End || a.End <= b.Start {
			continue
		}
		start := clamp(a.Start-b.Start, 0, paraLen)
		end := clamp(a.End-b.Start, 0, paraLen)
		if end <= start {
			continue
		}
		local = append(local, localAnnotation{start: start, end: end, ann: a})
	}
	// Similarity is the dominant visual layer: on equal start it is processed
	// first so narrower comment/grading spans never interrupt it.
	sort.SliceStable(local, func(i, j int) bool {
		if local[i].start != local[j].start {
			return local[i].start < local[j].start
		}
		return typeWeight(local[i].ann.Type) < typeWeight(local[j].ann.Type)
	})

	segments := make([]Segment, 0, len(local)*2+1)
	cursor := 0
	for _, la := range local {
		if la.end <= cursor {
			continue
		}
		start := la.start
		if start < cursor {
			start = cursor
		}
		if start > cursor {
			segments = append(segments, Segment{Start: cursor, End: start, Text: b.Text[cursor:start]})
		}
		segments = append(segments, Segment{Start: start, End: la.end, Text: b.Text[start:la.end], Annotation: la.ann})
		cursor = la.end
	}
	if cursor < paraLen {
		segments = append(segments, Segment{Start: cursor, End: paraLen, Text: b.Text[cursor:paraLen]})
	}
	return ParagraphRender{Index: b.Index, Text: b.Text, Segments: segments}
}

type localAnnotation struct {
	start int
	end   int
	ann   *Annotation
}

func typeWeight(t AnnotationType) int {
	if t == AnnotationSimilarity {
		return 0
	}
	return 1
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
