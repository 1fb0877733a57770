package model

import (
	"fmt"

	appErr "github.com/xxxsen/redpen/internal/pkg/errors"
)

// Document is the immutable base layer of a review. Fetched once per session
// and never mutated in place; everything user-generated lives in UserState.
type Document struct {
	ID         string      `json:"id"`
	Title      string      `json:"title"`
	Author     string      `json:"author"`
	Pages      []Page      `json:"pages"`
	Highlights []Highlight `json:"highlights"`
	MatchCards []MatchCard `json:"matchCards"`
}

// Page content is raw text with paragraphs separated by a double newline.
type Page struct {
	Number  int    `json:"number"`
	Content string `json:"content"`
}

// Highlight is a similarity annotation owned by the base document. Offsets
// are character positions within the reconstructed page text (paragraphs
// joined with the fixed 2-character separator), not the raw content string.
type Highlight struct {
	ID          string `json:"id"`
	MatchCardID string `json:"matchCardId"`
	StartOffset int    `json:"startOffset"`
	EndOffset   int    `json:"endOffset"`
	Text        string `json:"text"`
	Page        int    `json:"page"`
	IsExcluded  bool   `json:"isExcluded"`
}

type MatchCard struct {
	ID                string          `json:"id"`
	SourceType        string          `json:"sourceType"`
	SourceName        string          `json:"sourceName"`
	SourceURL         string          `json:"sourceUrl,omitempty"`
	SimilarityPercent float64         `json:"similarityPercent"`
	MatchedWordCount  int             `json:"matchedWordCount"`
	Matches           []MatchInstance `json:"matches"`
}

type MatchInstance struct {
	HighlightID string `json:"highlightId"`
	Text        string `json:"text"`
}

func (d *Document) PageByNumber(n int) *Page {
	for i := range d.Pages {
		if d.Pages[i].Number == n {
			return &d.Pages[i]
		}
	}
	return nil
}

func (d *Document) MatchCardByID(id string) *MatchCard {
	for i := range d.MatchCards {
		if d.MatchCards[i].ID == id {
			return &d.MatchCards[i]
		}
	}
	return nil
}

func (d *Document) HighlightByID(id string) *Highlight {
	for i := range d.Highlights {
		if d.Highlights[i].ID == id {
			return &d.Highlights[i]
		}
	}
	return nil
}

// Validate checks the document shape contract, including referential
// integrity between highlights and match cards in both directions.
func (d *Document) Validate() error {
	if d.ID == "" {
		return appErr.NewFieldError("id", "required")
	}
	if d.Title == "" {
		return appErr.NewFieldError("title", "required")
	}
	if len(d.Pages) == 0 {
		return appErr.NewFieldError("pages", "must contain at least one page")
	}
	pageNumbers := make(map[int]struct{}, len(d.Pages))
	for i, p := range d.Pages {
		if p.Number <= 0 {
			return appErr.NewFieldError(fmt.Sprintf("pages[%d].number", i), "must be positive")
		}
		if _, dup := pageNumbers[p.Number]; dup {
			return appErr.NewFieldError(fmt.Sprintf("pages[%d].number", i), "duplicate page number")
		}
		pageNumbers[p.Number] = struct{}{}
	}
	cards := make(map[string]struct{}, len(d.MatchCards))
	for i, mc := range d.MatchCards {
		if mc.ID == "" {
			return appErr.NewFieldError(fmt.Sprintf("matchCards[%d].id", i), "required")
		}
		cards[mc.ID] = struct{}{}
	}
	highlights := make(map[string]struct{}, len(d.Highlights))
	for i, h := range d.Highlights {
		field := fmt.Sprintf("highlights[%d]", i)
		if h.ID == "" {
			return appErr.NewFieldError(field+".id", "required")
		}
		if h.StartOffset < 0 || h.EndOffset < h.StartOffset {
			return appErr.NewFieldError(field, "offsets out of order")
		}
		if _, ok := pageNumbers[h.Page]; !ok {
			return appErr.NewFieldError(field+".page", "unknown page")
		}
		if _, ok := cards[h.MatchCardID]; !ok {
			return appErr.NewFieldError(field+".matchCardId", "no matching match card")
		}
		highlights[h.ID] = struct{}{}
	}
	for i, mc := range d.MatchCards {
		for j, m := range mc.Matches {
			if _, ok := highlights[m.HighlightID]; !ok {
				return appErr.NewFieldError(fmt.Sprintf("matchCards[%d].matches[%d].highlightId", i, j), "no matching highlight")
			}
		}
	}
	return nil
}
