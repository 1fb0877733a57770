package service

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/redpen/internal/ai"
	"github.com/xxxsen/redpen/internal/chataction"
	"github.com/xxxsen/redpen/internal/config"
)

// scriptedProvider plays a fixed reply, or fails every call when broken.
type scriptedProvider struct {
	reply  string
	broken bool
	calls  atomic.Int32
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Generate(ctx context.Context, model string, prompt string) (string, error) {
	p.calls.Add(1)
	if p.broken {
		return "", errors.New("upstream down")
	}
	return p.reply, nil
}

func (p *scriptedProvider) GenerateStream(ctx context.Context, model string, prompt string, fn ai.StreamFunc) error {
	p.calls.Add(1)
	if p.broken {
		return errors.New("upstream down")
	}
	mid := len(p.reply) / 2
	if err := fn(p.reply[:mid]); err != nil {
		return err
	}
	return fn(p.reply[mid:])
}

func testAIConfig() config.AIConfig {
	return config.AIConfig{CacheSize: 16, CacheTTLMin: 5, TimeoutSec: 5, MaxInputChars: 24000}
}

func TestChatAskParsesActionTags(t *testing.T) {
	provider := &scriptedProvider{reply: "Let's look at the first match. [ACTION:next_issue|Go to first issue]"}
	svc := NewChatService(provider, testAIConfig())

	res, err := svc.Ask(context.Background(), ChatRequest{Message: "where should I start?"})
	require.NoError(t, err)
	require.Equal(t, "Let's look at the first match.", res.Text)
	require.Len(t, res.Actions, 1)
	require.Equal(t, chataction.ActionNextIssue, res.Actions[0].Type)
	require.Equal(t, "Go to first issue", res.Actions[0].Label)
}

func TestChatAskCachesByPrompt(t *testing.T) {
	provider := &scriptedProvider{reply: "cached reply"}
	svc := NewChatService(provider, testAIConfig())
	ctx := context.Background()

	_, err := svc.Ask(ctx, ChatRequest{Message: "same question"})
	require.NoError(t, err)
	_, err = svc.Ask(ctx, ChatRequest{Message: "same question"})
	require.NoError(t, err)
	require.Equal(t, int32(1), provider.calls.Load())

	_, err = svc.Ask(ctx, ChatRequest{Message: "different question"})
	require.NoError(t, err)
	require.Equal(t, int32(2), provider.calls.Load())
}

func TestChatAskDegradesToMockOnProviderFailure(t *testing.T) {
	provider := &scriptedProvider{broken: true}
	svc := NewChatService(provider, testAIConfig())

	res, err := svc.Ask(context.Background(), ChatRequest{Message: "what does the similarity score mean?"})
	require.NoError(t, err, "provider failure must never surface")
	require.NotEmpty(t, res.Text)
	require.NotContains(t, res.Text, "[ACTION:")
}

func TestChatAskRejectsEmptyMessage(t *testing.T) {
	svc := NewChatService(&scriptedProvider{reply: "x"}, testAIConfig())
	_, err := svc.Ask(context.Background(), ChatRequest{Message: "   "})
	require.Error(t, err)
}

func TestChatAskSynthesizesFallbackActions(t *testing.T) {
	provider := &scriptedProvider{reply: "The similarity score mostly comes from one uncited source."}
	svc := NewChatService(provider, testAIConfig())

	res, err := svc.Ask(context.Background(), ChatRequest{
		Message:        "tell me about the score",
		Screen:         chataction.ScreenDocument,
		UncitedSources: []string{"Student paper"},
	})
	require.NoError(t, err)
	require.Len(t, res.Actions, 1)
	require.Equal(t, chataction.ActionDraftComment, res.Actions[0].Type)
	require.Equal(t, "Student paper", res.Actions[0].Payload)
}

func TestChatAskStreamAssemblesBeforeParsing(t *testing.T) {
	provider := &scriptedProvider{reply: "Here is the flagged passage. [ACTION:next_issue|Next issue]"}
	svc := NewChatService(provider, testAIConfig())

	var streamed strings.Builder
	res, err := svc.AskStream(context.Background(), ChatRequest{Message: "show me"}, func(chunk string) error {
		streamed.WriteString(chunk)
		return nil
	})
	require.NoError(t, err)
	// The raw stream carries the tag; the final text does not.
	require.Equal(t, provider.reply, streamed.String())
	require.Equal(t, "Here is the flagged passage.", res.Text)
	require.Len(t, res.Actions, 1)
}

func TestChatAskStreamReplaysFromCache(t *testing.T) {
	provider := &scriptedProvider{reply: "streamed once"}
	svc := NewChatService(provider, testAIConfig())
	ctx := context.Background()

	_, err := svc.AskStream(ctx, ChatRequest{Message: "q"}, func(string) error { return nil })
	require.NoError(t, err)

	var replay strings.Builder
	_, err = svc.AskStream(ctx, ChatRequest{Message: "q"}, func(chunk string) error {
		replay.WriteString(chunk)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, "streamed once", replay.String())
	require.Equal(t, int32(1), provider.calls.Load())
}

func TestChatAskStreamDegradesToMock(t *testing.T) {
	provider := &scriptedProvider{broken: true}
	svc := NewChatService(provider, testAIConfig())

	var streamed strings.Builder
	res, err := svc.AskStream(context.Background(), ChatRequest{Message: "hello there"}, func(chunk string) error {
		streamed.WriteString(chunk)
		return nil
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Text)
	require.Contains(t, streamed.String(), res.Text)
}
