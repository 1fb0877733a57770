package ai

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMockResponderKeywordReplies(t *testing.T) {
	tests := []struct {
		name       string
		prompt     string
		wantSubstr string
		wantAction bool
	}{
		{name: "similarity", prompt: "what does the similarity score mean?", wantSubstr: "match percentages", wantAction: true},
		{name: "grading", prompt: "how do I use the grading rubric?", wantSubstr: "rubric criterion", wantAction: true},
		{name: "comment", prompt: "add a comment for me", wantSubstr: "draft one", wantAction: true},
		{name: "summary", prompt: "summarize the document", wantSubstr: "short version", wantAction: false},
		{name: "default", prompt: "hello there", wantSubstr: "help you review", wantAction: false},
	}
	p := NewMockResponder()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out, err := p.Generate(context.Background(), "", tc.prompt)
			require.NoError(t, err)
			require.Contains(t, out, tc.wantSubstr)
			require.Equal(t, tc.wantAction, strings.Contains(out, "[ACTION:"))
		})
	}
}

func TestMockResponderStreamMatchesGenerate(t *testing.T) {
	p := NewMockResponder()
	ctx := context.Background()
	prompt := "what does the similarity score mean?"

	full, err := p.Generate(ctx, "", prompt)
	require.NoError(t, err)

	var sb strings.Builder
	var chunks int
	require.NoError(t, p.GenerateStream(ctx, "", prompt, func(chunk string) error {
		chunks++
		sb.WriteString(chunk)
		return nil
	}))
	require.Equal(t, full, sb.String())
	require.Greater(t, chunks, 1, "long replies stream in several chunks")
}

func TestMockProviderRegistered(t *testing.T) {
	p, err := NewProvider("mock", nil)
	require.NoError(t, err)
	require.Equal(t, "mock", p.Name())

	_, err = NewProvider("nope", nil)
	require.Error(t, err)
}
