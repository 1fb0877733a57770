package ai

import (
	"context"
	"strings"
)

// MockResponder is the deterministic local fallback: canned, context-aware
// replies built by simple keyword matching against the prompt. It never
// fails, which is what makes silent degradation from a real provider safe.
type MockResponder struct{}

func NewMockResponder() *MockResponder {
	return &MockResponder{}
}

func (p *MockResponder) Name() string {
	return "mock"
}

func (p *MockResponder) Generate(ctx context.Context, model string, prompt string) (string, error) {
	return p.respond(prompt), nil
}

func (p *MockResponder) GenerateStream(ctx context.Context, model string, prompt string, fn StreamFunc) error {
	text := p.respond(prompt)
	const chunkSize = 48
	for start := 0; start < len(text); start += chunkSize {
		end := start + chunkSize
		if end > len(text) {
			end = len(text)
		}
		if err := fn(text[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (p *MockResponder) respond(prompt string) string {
	lower := strings.ToLower(prompt)
	switch {
	case strings.Contains(lower, "similarity"):
		return "The similarity score sums the match percentages of all included sources; excluded sources don't count toward it. " +
			"Check the match cards panel for the per-source breakdown. [ACTION:next_issue|Go to first flagged match]"
	case strings.Contains(lower, "grading") || strings.Contains(lower, "rubric"):
		return "You can score each rubric criterion and attach feedback; scores save automatically. " +
			"[ACTION:navigate|Open grading|Grading]"
	case strings.Contains(lower, "comment"):
		return "Select any passage to add a comment, or I can draft one for you. " +
			"[ACTION:add_summary_comment|Add a summary note]"
	case strings.Contains(lower, "summar"):
		return "Here's the short version: the document's flagged passages cluster around its quoted sources, and the rest reads as original writing."
	default:
		return "I can help you review this document: ask about the similarity score, flagged sources, grading, or comments."
	}
}

func init() {
	Register("mock", func(args interface{}) (IProvider, error) {
		return NewMockResponder(), nil
	})
}
