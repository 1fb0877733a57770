package chataction

import "strings"

// Screen identifies the UI surface a chat exchange originated from. Fallback
// patterns are scoped per screen; a document-review heuristic must never fire
// from the inbox.
type Screen string

const (
	ScreenDocument Screen = "document"
	ScreenGrading  Screen = "grading"
	ScreenInbox    Screen = "inbox"
)

// FallbackContext carries the document-side facts the synthesis heuristics
// key on.
type FallbackContext struct {
	Screen           Screen
	UncitedSources   []string
	HasFlaggedIssues bool
}

// Synthesize produces contextually appropriate actions for a response that
// contained no explicit tags. It never runs when the AI supplied at least one
// explicit action. The heuristics are string matching by nature, approximate
// by contract.
func Synthesize(cleanText string, explicit []Action, fc FallbackContext) []Action {
	if len(explicit) > 0 {
		return nil
	}
	lower := strings.ToLower(cleanText)
	var out []Action
	if fc.Screen == ScreenDocument {
		if strings.Contains(lower, "similarity score") && len(fc.UncitedSources) > 0 {
			out = append(out, Action{
				Type:    ActionDraftComment,
				Label:   "Draft a comment about " + fc.UncitedSources[0],
				Payload: fc.UncitedSources[0],
			})
		}
		if fc.HasFlaggedIssues && (strings.Contains(lower, "issue") || strings.Contains(lower, "flagged")) {
			out = append(out, Action{Type: ActionNextIssue, Label: "Go to next issue"})
		}
	}
	if fc.Screen == ScreenDocument || fc.Screen == ScreenGrading {
		if strings.Contains(lower, "rubric") || strings.Contains(lower, "grading") {
			out = append(out, Action{Type: ActionNavigate, Label: "Open grading", Payload: "Grading"})
		}
	}
	return out
}
