package model

import (
	"testing"

	"github.com/stretchr/testify/require"

	appErr "github.com/xxxsen/redpen/internal/pkg/errors"
)

func validDocument() *Document {
	return &Document{
		ID:    "doc-1",
		Title: "Essay on testing",
		Pages: []Page{
			{Number: 1, Content: "Hello world.\n\nSecond paragraph here."},
		},
		Highlights: []Highlight{
			{ID: "h1", MatchCardID: "mc1", StartOffset: 6, EndOffset: 11, Text: "world", Page: 1},
		},
		MatchCards: []MatchCard{
			{ID: "mc1", SourceName: "Wikipedia", SimilarityPercent: 25, Matches: []MatchInstance{{HighlightID: "h1", Text: "world"}}},
		},
	}
}

func TestDocumentValidateOK(t *testing.T) {
	require.NoError(t, validDocument().Validate())
}

func TestDocumentValidateFailures(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(d *Document)
		wantField string
	}{
		{name: "missing id", mutate: func(d *Document) { d.ID = "" }, wantField: "id"},
		{name: "missing pages", mutate: func(d *Document) { d.Pages = nil }, wantField: "pages"},
		{name: "duplicate page number", mutate: func(d *Document) {
			d.Pages = append(d.Pages, Page{Number: 1, Content: "again"})
		}, wantField: "pages[1].number"},
		{name: "highlight unknown card", mutate: func(d *Document) {
			d.Highlights[0].MatchCardID = "nope"
		}, wantField: "highlights[0].matchCardId"},
		{name: "highlight unknown page", mutate: func(d *Document) {
			d.Highlights[0].Page = 9
		}, wantField: "highlights[0].page"},
		{name: "highlight offsets reversed", mutate: func(d *Document) {
			d.Highlights[0].StartOffset = 11
			d.Highlights[0].EndOffset = 6
		}, wantField: "highlights[0]"},
		{name: "match references unknown highlight", mutate: func(d *Document) {
			d.MatchCards[0].Matches[0].HighlightID = "nope"
		}, wantField: "matchCards[0].matches[0].highlightId"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			doc := validDocument()
			tc.mutate(doc)
			err := doc.Validate()
			fe, ok := appErr.AsFieldError(err)
			require.True(t, ok)
			require.Equal(t, tc.wantField, fe.Field)
		})
	}
}

func TestDocumentLookups(t *testing.T) {
	doc := validDocument()
	require.NotNil(t, doc.PageByNumber(1))
	require.Nil(t, doc.PageByNumber(2))
	require.NotNil(t, doc.MatchCardByID("mc1"))
	require.Nil(t, doc.MatchCardByID("mc2"))
	require.NotNil(t, doc.HighlightByID("h1"))
	require.Nil(t, doc.HighlightByID("h2"))
}
