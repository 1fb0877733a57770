package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/redpen/internal/ai"
	"github.com/xxxsen/redpen/internal/chataction"
	"github.com/xxxsen/redpen/internal/config"
)

var ErrAIUnavailable = ai.ErrUnavailable

// ChatService drives the review assistant. A configured provider failure
// degrades silently to the deterministic mock responder so the chat surface
// never breaks; raw provider output is parsed for action tags exactly once,
// after the full response is assembled.
type ChatService struct {
	provider      ai.IProvider
	fallback      *ai.MockResponder
	model         string
	maxInputChars int
	timeout       time.Duration
	cache         *expirable.LRU[string, string]
}

func NewChatService(provider ai.IProvider, cfg config.AIConfig) *ChatService {
	cache := expirable.NewLRU[string, string](cfg.CacheSize, nil, time.Duration(cfg.CacheTTLMin)*time.Minute)
	return &ChatService{
		provider:      provider,
		fallback:      ai.NewMockResponder(),
		model:         cfg.Model,
		maxInputChars: cfg.MaxInputChars,
		timeout:       time.Duration(cfg.TimeoutSec) * time.Second,
		cache:         cache,
	}
}

// ChatRequest carries the user message plus the review context the prompt and
// the fallback action heuristics are built from.
type ChatRequest struct {
	Message          string
	Screen           chataction.Screen
	DocumentTitle    string
	SimilarityScore  float64
	UncitedSources   []string
	HasFlaggedIssues bool
}

// ChatResult is the parsed outcome of one exchange: clean display text with
// every action tag stripped, plus the deduplicated actions themselves.
type ChatResult struct {
	Text    string             `json:"text"`
	Actions []chataction.Action `json:"actions"`
}

func (s *ChatService) Ask(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	prompt, err := s.buildPrompt(req)
	if err != nil {
		return nil, err
	}
	key := s.cacheKey(prompt)
	raw, ok := s.cache.Get(key)
	if !ok {
		raw = s.generate(ctx, prompt)
		s.cache.Add(key, raw)
	}
	return s.finish(ctx, raw, req), nil
}

// AskStream forwards chunks as they arrive and parses the assembled text on
// completion. Tags are never parsed mid-stream: a tag split across chunks
// must not yield a half action.
func (s *ChatService) AskStream(ctx context.Context, req ChatRequest, fn ai.StreamFunc) (*ChatResult, error) {
	prompt, err := s.buildPrompt(req)
	if err != nil {
		return nil, err
	}
	key := s.cacheKey(prompt)
	if cached, ok := s.cache.Get(key); ok {
		if err := fn(cached); err != nil {
			return nil, err
		}
		return s.finish(ctx, cached, req), nil
	}

	genCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	var sb strings.Builder
	collect := func(chunk string) error {
		sb.WriteString(chunk)
		return fn(chunk)
	}
	if err := s.provider.GenerateStream(genCtx, s.model, prompt, collect); err != nil {
		logutil.GetLogger(ctx).Warn("ai provider stream failed, degrading to mock responder",
			zap.String("provider", s.provider.Name()), zap.Error(err))
		sb.Reset()
		if err := s.fallback.GenerateStream(ctx, s.model, prompt, collect); err != nil {
			return nil, err
		}
	}
	raw := sb.String()
	s.cache.Add(key, raw)
	return s.finish(ctx, raw, req), nil
}

func (s *ChatService) generate(ctx context.Context, prompt string) string {
	genCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	raw, err := s.provider.Generate(genCtx, s.model, prompt)
	if err != nil {
		logutil.GetLogger(ctx).Warn("ai provider failed, degrading to mock responder",
			zap.String("provider", s.provider.Name()), zap.Error(err))
		raw, _ = s.fallback.Generate(ctx, s.model, prompt)
	}
	return raw
}

func (s *ChatService) finish(ctx context.Context, raw string, req ChatRequest) *ChatResult {
	actions, clean := chataction.Parse(ctx, raw)
	synthesized := chataction.Synthesize(clean, actions, chataction.FallbackContext{
		Screen:           req.Screen,
		UncitedSources:   req.UncitedSources,
		HasFlaggedIssues: req.HasFlaggedIssues,
	})
	actions = append(actions, synthesized...)
	if actions == nil {
		actions = []chataction.Action{}
	}
	return &ChatResult{Text: clean, Actions: actions}
}

func (s *ChatService) buildPrompt(req ChatRequest) (string, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return "", fmt.Errorf("empty message")
	}
	var sb strings.Builder
	sb.WriteString("You are an assistant helping a reviewer inspect a document for similarity issues.\n")
	if req.DocumentTitle != "" {
		fmt.Fprintf(&sb, "Document: %s\n", req.DocumentTitle)
	}
	if req.Screen != "" {
		fmt.Fprintf(&sb, "Screen: %s\n", req.Screen)
	}
	fmt.Fprintf(&sb, "Similarity score: %.1f%%\n", req.SimilarityScore)
	if len(req.UncitedSources) > 0 {
		fmt.Fprintf(&sb, "Uncited sources: %s\n", strings.Join(req.UncitedSources, ", "))
	}
	sb.WriteString("\n")
	sb.WriteString(message)
	prompt := sb.String()
	if s.maxInputChars > 0 && len(prompt) > s.maxInputChars {
		prompt = prompt[:s.maxInputChars]
	}
	return prompt, nil
}

func (s *ChatService) cacheKey(prompt string) string {
	sum := sha256.Sum256([]byte(s.provider.Name() + "|" + s.model + "|" + prompt))
	return hex.EncodeToString(sum[:])
}
