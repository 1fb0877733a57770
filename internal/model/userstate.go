package model

import (
	"encoding/json"

	appErr "github.com/xxxsen/redpen/internal/pkg/errors"
	"github.com/xxxsen/redpen/internal/pkg/timeutil"
)

// UserStateVersion is the current overlay schema version. Loaded overlays
// carrying an older tag are migrated field-by-field before use.
const UserStateVersion = "2"

const (
	CommentSourceManual       = "manual"
	CommentSourceChat         = "chat"
	CommentSourceAISuggestion = "ai-suggestion"
)

// UserState is the mutable overlay persisted per document id, layered over
// the immutable base Document.
type UserState struct {
	DocumentID       string                     `json:"documentId"`
	Version          string                     `json:"version"`
	Comments         []Comment                  `json:"comments"`
	PointAnnotations []PointAnnotation          `json:"pointAnnotations"`
	TextualContent   TextualContent             `json:"textualContent"`
	Grading          Grading                    `json:"grading"`
	CustomHighlights []CustomHighlight          `json:"customHighlights"`
	Metadata         map[string]json.RawMessage `json:"metadata"`
	CreatedAt        int64                      `json:"createdAt"`
	LastModified     int64                      `json:"lastModified"`
}

// Comment anchors user feedback to a text range. Offsets follow the same
// reconstructed-page-text convention as Highlight.
type Comment struct {
	ID          string   `json:"id"`
	Type        string   `json:"type"`
	Content     string   `json:"content"`
	Text        string   `json:"text"`
	Position    Position `json:"position"`
	Page        int      `json:"page"`
	StartOffset int      `json:"startOffset"`
	EndOffset   int      `json:"endOffset"`
	CreatedAt   int64    `json:"createdAt"`
	UpdatedAt   int64    `json:"updatedAt"`
	Source      string   `json:"source"`
}

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PointAnnotation is positioned by percentage coordinates on a page, fully
// independent of the text offset model.
type PointAnnotation struct {
	ID        string        `json:"id"`
	Type      string        `json:"type"`
	Position  PointPosition `json:"position"`
	Content   string        `json:"content"`
	TextSize  int           `json:"textSize,omitempty"`
	TextColor string        `json:"textColor,omitempty"`
	CreatedAt int64         `json:"createdAt"`
	UpdatedAt int64         `json:"updatedAt"`
}

type PointPosition struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Page int     `json:"page"`
}

type TextualContent struct {
	Notes []Note `json:"notes"`
}

type Note struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	UpdatedAt int64  `json:"updatedAt"`
}

// Grading is the stored shape; the working shape used by review sessions maps
// grade/maxGrade/feedback onto score/maxScore/description.
type Grading struct {
	RubricScores    []RubricScore      `json:"rubricScores"`
	GradingCriteria []GradingCriterion `json:"gradingCriteria"`
}

type RubricScore struct {
	CriterionID string  `json:"criterionId"`
	Grade       float64 `json:"grade"`
	MaxGrade    float64 `json:"maxGrade"`
	Feedback    string  `json:"feedback"`
}

type GradingCriterion struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	MaxGrade    float64 `json:"maxGrade"`
}

type CustomHighlight struct {
	ID          string `json:"id"`
	Color       string `json:"color"`
	Page        int    `json:"page"`
	StartOffset int    `json:"startOffset"`
	EndOffset   int    `json:"endOffset"`
	Text        string `json:"text"`
	CreatedAt   int64  `json:"createdAt"`
}

// NewEmptyUserState builds the overlay a never-before-opened document gets.
// Container fields are non-nil so serialization is stable from the start.
func NewEmptyUserState(documentID string) *UserState {
	now := timeutil.NowMillis()
	return &UserState{
		DocumentID:       documentID,
		Version:          UserStateVersion,
		Comments:         []Comment{},
		PointAnnotations: []PointAnnotation{},
		TextualContent:   TextualContent{Notes: []Note{}},
		Grading:          Grading{RubricScores: []RubricScore{}, GradingCriteria: []GradingCriterion{}},
		CustomHighlights: []CustomHighlight{},
		Metadata:         map[string]json.RawMessage{},
		CreatedAt:        now,
		LastModified:     now,
	}
}

// userStateFieldKinds lists every required overlay field with the JSON
// container kind it must decode to. Import validation walks this table so a
// malformed payload is rejected naming the first offending field.
var userStateFieldKinds = []struct {
	name string
	kind byte // '[' array, '{' object, 's' string, 'n' number
}{
	{"documentId", 's'},
	{"version", 's'},
	{"comments", '['},
	{"pointAnnotations", '['},
	{"textualContent", '{'},
	{"grading", '{'},
	{"customHighlights", '['},
	{"metadata", '{'},
	{"createdAt", 'n'},
	{"lastModified", 'n'},
}

// ValidateUserStateJSON distinguishes wire errors (ErrMalformedJSON, nil map)
// from shape violations (FieldError naming the field, map still returned so
// callers can migrate or keep unknown fields intact).
func ValidateUserStateJSON(data []byte) (map[string]json.RawMessage, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, appErr.ErrMalformedJSON
	}
	for _, f := range userStateFieldKinds {
		value, ok := raw[f.name]
		if !ok {
			return raw, appErr.NewFieldError(f.name, "missing")
		}
		if !jsonKindMatches(value, f.kind) {
			return raw, appErr.NewFieldError(f.name, "wrong type")
		}
	}
	return raw, nil
}

func jsonKindMatches(raw json.RawMessage, kind byte) bool {
	i := 0
	for i < len(raw) && (raw[i] == ' ' || raw[i] == '\t' || raw[i] == '\n' || raw[i] == '\r') {
		i++
	}
	if i >= len(raw) {
		return false
	}
	switch kind {
	case '[', '{':
		return raw[i] == kind
	case 's':
		return raw[i] == '"'
	case 'n':
		return raw[i] == '-' || (raw[i] >= '0' && raw[i] <= '9')
	}
	return false
}
