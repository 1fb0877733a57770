package chataction

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSynthesizeSkipsWhenExplicitActionsExist(t *testing.T) {
	out := Synthesize("the similarity score is high", []Action{{Type: ActionNextIssue}}, FallbackContext{
		Screen:         ScreenDocument,
		UncitedSources: []string{"Wikipedia"},
	})
	require.Nil(t, out)
}

func TestSynthesizeDraftCommentForUncitedSource(t *testing.T) {
	out := Synthesize("The similarity score mostly comes from one source.", nil, FallbackContext{
		Screen:         ScreenDocument,
		UncitedSources: []string{"Wikipedia", "arXiv"},
	})
	require.Len(t, out, 1)
	require.Equal(t, ActionDraftComment, out[0].Type)
	require.Equal(t, "Wikipedia", out[0].Payload)
}

func TestSynthesizeNextIssueForFlaggedTalk(t *testing.T) {
	out := Synthesize("There are several flagged issues in this document.", nil, FallbackContext{
		Screen:           ScreenDocument,
		HasFlaggedIssues: true,
	})
	require.Len(t, out, 1)
	require.Equal(t, ActionNextIssue, out[0].Type)
}

func TestSynthesizeGradingNavigation(t *testing.T) {
	for _, screen := range []Screen{ScreenDocument, ScreenGrading} {
		out := Synthesize("you can score each rubric criterion", nil, FallbackContext{Screen: screen})
		require.Len(t, out, 1)
		require.Equal(t, ActionNavigate, out[0].Type)
		require.Equal(t, "Grading", out[0].Payload)
	}
}

func TestSynthesizeScopedToScreen(t *testing.T) {
	out := Synthesize("the similarity score and the rubric", nil, FallbackContext{
		Screen:           ScreenInbox,
		UncitedSources:   []string{"Wikipedia"},
		HasFlaggedIssues: true,
	})
	require.Nil(t, out)
}
