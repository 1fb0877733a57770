package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/xxxsen/redpen/internal/chataction"
	"github.com/xxxsen/redpen/internal/model"
	appErr "github.com/xxxsen/redpen/internal/pkg/errors"
	"github.com/xxxsen/redpen/internal/textrange"
)

// NewActionDispatcher wires every chat action type to the same service entry
// points manual UI mutations use, bound to one reviewer and document. Chat
// never gets a private mutation path.
func (r *ReviewService) NewActionDispatcher(reviewer, docID string) *chataction.Dispatcher {
	d := chataction.NewDispatcher()

	d.Register(chataction.ActionNavigate, func(ctx context.Context, action chataction.Action) error {
		if strings.TrimSpace(action.Payload) == "" {
			return fmt.Errorf("navigate target missing")
		}
		// Navigation is a client-side effect; the server only vouches that the
		// action is well formed.
		return nil
	})

	d.Register(chataction.ActionAddComment, func(ctx context.Context, action chataction.Action) error {
		content := action.Payload
		if content == "" {
			content = action.Label
		}
		return r.addCommentAtSelection(ctx, reviewer, docID, content)
	})

	d.Register(chataction.ActionAddSummaryComment, func(ctx context.Context, action chataction.Action) error {
		content := action.Payload
		if content == "" {
			content = action.Label
		}
		_, err := r.SetSummaryNote(ctx, reviewer, docID, content)
		return err
	})

	d.Register(chataction.ActionDraftComment, func(ctx context.Context, action chataction.Action) error {
		return r.draftSourceComment(ctx, reviewer, docID, action.Payload, action.Label)
	})

	d.Register(chataction.ActionHighlightText, func(ctx context.Context, action chataction.Action) error {
		return r.highlightText(ctx, reviewer, docID, action.Payload)
	})

	d.Register(chataction.ActionShowSource, func(ctx context.Context, action chataction.Action) error {
		return r.showSource(ctx, reviewer, docID, action.Payload)
	})

	d.Register(chataction.ActionNextIssue, func(ctx context.Context, action chataction.Action) error {
		_, err := r.NextIssue(ctx, reviewer, docID)
		return err
	})

	d.Register(chataction.ActionPrevIssue, func(ctx context.Context, action chataction.Action) error {
		_, err := r.PrevIssue(ctx, reviewer, docID)
		return err
	})

	d.Register(chataction.ActionRetry, func(ctx context.Context, action chataction.Action) error {
		// Retrying the last exchange is a client-side concern.
		return nil
	})

	d.Register(chataction.ActionGenerateList, func(ctx context.Context, action chataction.Action) error {
		return r.generateIssueList(ctx, reviewer, docID)
	})

	return d
}

// addCommentAtSelection anchors a chat-authored comment to the reviewer's
// last resolved selection.
func (r *ReviewService) addCommentAtSelection(ctx context.Context, reviewer, docID, content string) error {
	sess, _, err := r.session(ctx, reviewer, docID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	sel := sess.selection
	sess.mu.Unlock()
	if sel == nil {
		return fmt.Errorf("no active selection to comment on")
	}
	pv, err := r.pageViewFor(ctx, sess, sel.PageNumber)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	start, end, oerr := textrange.RangeToOffsets(sel.Range, pv.tree, pv.boundaries)
	sess.mu.Unlock()
	if oerr != nil {
		return oerr
	}
	_, err = r.AddComment(ctx, reviewer, docID, AddCommentRequest{
		Content:     content,
		Text:        sel.Text,
		Page:        sel.PageNumber,
		StartOffset: start,
		EndOffset:   end,
		Position:    model.Position{X: sel.Position.X, Y: sel.Position.Y},
		Source:      model.CommentSourceChat,
	})
	return err
}

// draftSourceComment anchors an AI-suggested comment to the first flagged
// passage of the named source.
func (r *ReviewService) draftSourceComment(ctx context.Context, reviewer, docID, sourceName, label string) error {
	sess, _, err := r.session(ctx, reviewer, docID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	var target *model.Highlight
	for i := range sess.doc.MatchCards {
		mc := &sess.doc.MatchCards[i]
		if !strings.EqualFold(mc.SourceName, sourceName) || len(mc.Matches) == 0 {
			continue
		}
		target = sess.doc.HighlightByID(mc.Matches[0].HighlightID)
		break
	}
	sess.mu.Unlock()
	if target == nil {
		return appErr.ErrNotFound
	}
	content := label
	if content == "" {
		content = fmt.Sprintf("This passage closely matches %s; consider citing it.", sourceName)
	}
	_, err = r.AddComment(ctx, reviewer, docID, AddCommentRequest{
		Content:     content,
		Text:        target.Text,
		Page:        target.Page,
		StartOffset: target.StartOffset,
		EndOffset:   target.EndOffset,
		Source:      model.CommentSourceAISuggestion,
	})
	return err
}

// highlightText finds the first occurrence of the text in the document and
// adds a custom highlight over it.
func (r *ReviewService) highlightText(ctx context.Context, reviewer, docID, text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("nothing to highlight")
	}
	sess, _, err := r.session(ctx, reviewer, docID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	page, start := 0, -1
	for _, p := range sess.doc.Pages {
		if idx := strings.Index(p.Content, text); idx >= 0 {
			page, start = p.Number, idx
			break
		}
	}
	sess.mu.Unlock()
	if start < 0 {
		return appErr.ErrNotFound
	}
	_, err = r.AddCustomHighlight(ctx, reviewer, docID, CustomHighlightRequest{
		Page:        page,
		StartOffset: start,
		EndOffset:   start + len(text),
		Text:        text,
	})
	return err
}

// showSource emphasizes the first flagged passage of the referenced source.
// The payload may be a card id or a source name.
func (r *ReviewService) showSource(ctx context.Context, reviewer, docID, ref string) error {
	sess, _, err := r.session(ctx, reviewer, docID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	var target *model.Highlight
	for i := range sess.doc.MatchCards {
		mc := &sess.doc.MatchCards[i]
		if mc.ID != ref && !strings.EqualFold(mc.SourceName, ref) {
			continue
		}
		if len(mc.Matches) > 0 {
			target = sess.doc.HighlightByID(mc.Matches[0].HighlightID)
		}
		break
	}
	sess.mu.Unlock()
	if target == nil {
		return appErr.ErrNotFound
	}
	return r.EmphasizeHighlight(ctx, reviewer, docID, target.ID)
}

// generateIssueList writes a markdown digest of the flagged sources into the
// summary note slot.
func (r *ReviewService) generateIssueList(ctx context.Context, reviewer, docID string) error {
	sess, _, err := r.session(ctx, reviewer, docID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	var sb strings.Builder
	sb.WriteString("## Flagged sources\n")
	count := 0
	for _, mc := range sess.doc.MatchCards {
		if _, skip := sess.excluded[mc.ID]; skip {
			continue
		}
		fmt.Fprintf(&sb, "- %s (%.1f%%, %d matched words)\n", mc.SourceName, mc.SimilarityPercent, mc.MatchedWordCount)
		count++
	}
	sess.mu.Unlock()
	if count == 0 {
		return appErr.ErrNotFound
	}
	_, err = r.SetSummaryNote(ctx, reviewer, docID, sb.String())
	return err
}

func (r *ReviewService) pageViewFor(ctx context.Context, sess *Session, page int) (*pageView, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.ensurePage(ctx, page)
}
