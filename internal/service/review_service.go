package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/redpen/internal/config"
	"github.com/xxxsen/redpen/internal/highlight"
	"github.com/xxxsen/redpen/internal/model"
	appErr "github.com/xxxsen/redpen/internal/pkg/errors"
	"github.com/xxxsen/redpen/internal/pkg/timeutil"
	"github.com/xxxsen/redpen/internal/render"
	"github.com/xxxsen/redpen/internal/selection"
	"github.com/xxxsen/redpen/internal/store"
	"github.com/xxxsen/redpen/internal/textrange"
)

const (
	// cleanupDelay gives in-flight tree reads a beat before stale comment
	// wrappers are unwrapped.
	cleanupDelay = 50 * time.Millisecond
	// emphasisTTL is how long a navigated-to highlight keeps its emphasized
	// styling.
	emphasisTTL = 2 * time.Second
)

// ReviewService owns the live review sessions and routes every mutation,
// manual or chat-dispatched, through the same per-session entry points.
type ReviewService struct {
	documents *DocumentService
	overlays  *store.OverlayStore
	autosave  *Debouncer
	renderCfg config.RenderConfig

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewReviewService(documents *DocumentService, overlays *store.OverlayStore, autosave *Debouncer, renderCfg config.RenderConfig) *ReviewService {
	return &ReviewService{
		documents: documents,
		overlays:  overlays,
		autosave:  autosave,
		renderCfg: renderCfg,
		sessions:  map[string]*Session{},
	}
}

func sessionKey(reviewer, docID string) string {
	return reviewer + ":" + docID
}

func (r *ReviewService) session(ctx context.Context, reviewer, docID string) (*Session, bool, error) {
	key := sessionKey(reviewer, docID)
	r.mu.Lock()
	if sess, ok := r.sessions[key]; ok {
		r.mu.Unlock()
		return sess, false, nil
	}
	r.mu.Unlock()

	doc, err := r.documents.Fetch(ctx, docID)
	if err != nil {
		return nil, false, err
	}
	state, created, err := r.overlays.Load(ctx, reviewer, docID)
	if err != nil {
		return nil, false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.sessions[key]; ok {
		return sess, false, nil
	}
	sess := newSession(reviewer, doc, state, emphasisTTL)
	r.sessions[key] = sess
	return sess, created, nil
}

func (r *ReviewService) scheduleSave(sess *Session, docID string) {
	key := sessionKey(sess.reviewer, docID)
	r.autosave.Schedule(key, func() {
		r.persist(sess, docID)
	})
}

func (r *ReviewService) persist(sess *Session, docID string) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.storeExcluded()
	ctx := context.Background()
	if err := r.overlays.Save(ctx, sess.reviewer, docID, sess.state); err != nil {
		logutil.GetLogger(ctx).Error("autosave overlay failed",
			zap.String("doc_id", docID), zap.Error(err))
	}
}

// Overview is the initial payload of a review: the base document, the
// overlay, and the derived similarity score.
type Overview struct {
	Document          *model.Document  `json:"document"`
	State             *model.UserState `json:"userState"`
	Score             float64          `json:"score"`
	ExcludedCards     []string         `json:"excludedCards"`
	SimilarityVisible bool             `json:"similarityVisible"`
	FirstOpen         bool             `json:"firstOpen"`
}

func (r *ReviewService) Open(ctx context.Context, reviewer, docID string) (*Overview, error) {
	sess, created, err := r.session(ctx, reviewer, docID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return &Overview{
		Document:          sess.doc,
		State:             cloneState(sess.state),
		Score:             SimilarityScore(sess.doc, sess.excluded),
		ExcludedCards:     excludedList(sess.excluded),
		SimilarityVisible: sess.similarityVisible,
		FirstOpen:         created,
	}, nil
}

// CardScore is one match card's contribution to the similarity score.
type CardScore struct {
	ID         string  `json:"id"`
	SourceName string  `json:"sourceName"`
	Percent    float64 `json:"percent"`
	Excluded   bool    `json:"excluded"`
}

type ScoreResult struct {
	Total float64     `json:"total"`
	Cards []CardScore `json:"cards"`
}

func (r *ReviewService) Score(ctx context.Context, reviewer, docID string) (*ScoreResult, error) {
	sess, _, err := r.session(ctx, reviewer, docID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	out := &ScoreResult{Total: SimilarityScore(sess.doc, sess.excluded), Cards: make([]CardScore, 0, len(sess.doc.MatchCards))}
	for _, mc := range sess.doc.MatchCards {
		_, excluded := sess.excluded[mc.ID]
		out.Cards = append(out.Cards, CardScore{
			ID:         mc.ID,
			SourceName: mc.SourceName,
			Percent:    mc.SimilarityPercent,
			Excluded:   excluded,
		})
	}
	return out, nil
}

func (r *ReviewService) RenderedPage(ctx context.Context, reviewer, docID string, pageNum int) (string, error) {
	sess, _, err := r.session(ctx, reviewer, docID)
	if err != nil {
		return "", err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	pv, err := sess.ensurePage(ctx, pageNum)
	if err != nil {
		return "", err
	}
	return render.SerializeNode(pv.tree)
}

// SetSimilarityVisible toggles similarity highlight styling. The spans and
// their offsets are recomputed identically; only the class set changes.
func (r *ReviewService) SetSimilarityVisible(ctx context.Context, reviewer, docID string, visible bool) error {
	sess, _, err := r.session(ctx, reviewer, docID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.similarityVisible != visible {
		sess.similarityVisible = visible
		sess.invalidateAllPages()
	}
	return nil
}

// SetMatchCardExcluded flips a source's inclusion in the similarity score and
// returns the recomputed total.
func (r *ReviewService) SetMatchCardExcluded(ctx context.Context, reviewer, docID, cardID string, excluded bool) (float64, error) {
	sess, _, err := r.session(ctx, reviewer, docID)
	if err != nil {
		return 0, err
	}
	sess.mu.Lock()
	if sess.doc.MatchCardByID(cardID) == nil {
		sess.mu.Unlock()
		return 0, appErr.ErrNotFound
	}
	if excluded {
		sess.excluded[cardID] = struct{}{}
	} else {
		delete(sess.excluded, cardID)
	}
	sess.storeExcluded()
	sess.invalidateAllPages()
	score := SimilarityScore(sess.doc, sess.excluded)
	sess.mu.Unlock()
	r.scheduleSave(sess, docID)
	return score, nil
}

// SelectionRequest reports a client selection: boundary points as paragraph
// index plus paragraph-local offset, the raw text, and the geometry needed
// for the action bar anchor and the coarse fallback.
type SelectionRequest struct {
	Page           int            `json:"page"`
	StartParagraph int            `json:"startParagraph"`
	StartOffset    int            `json:"startOffset"`
	EndParagraph   int            `json:"endParagraph"`
	EndOffset      int            `json:"endOffset"`
	Text           string         `json:"text"`
	SelectionRect  selection.Rect `json:"selectionRect"`
	ContainerRect  selection.Rect `json:"containerRect"`
	ScrollTop      float64        `json:"scrollTop"`
	ScrollLeft     float64        `json:"scrollLeft"`
}

type SelectionResult struct {
	Text        string           `json:"text"`
	Position    selection.Anchor `json:"position"`
	Page        int              `json:"page"`
	StartOffset int              `json:"startOffset"`
	EndOffset   int              `json:"endOffset"`
	Approximate bool             `json:"approximate"`
}

// ResolveSelection anchors a reported selection into page-text offsets. A nil
// result with nil error means the selection was dismissed (collapsed,
// whitespace-only, or outside a page). When exact anchoring fails the result
// falls back to the line/column estimate and is flagged approximate.
func (r *ReviewService) ResolveSelection(ctx context.Context, reviewer, docID string, req SelectionRequest) (*SelectionResult, error) {
	sess, _, err := r.session(ctx, reviewer, docID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	pv, err := sess.ensurePage(ctx, req.Page)
	if err != nil {
		return nil, err
	}
	start, end, ok := pageOffsetsFor(req, pv.boundaries)
	if !ok {
		return nil, appErr.NewFieldError("startParagraph", "outside page")
	}
	rng, rngErr := textrange.OffsetsToRange(start, end, pv.tree, pv.boundaries)
	if rngErr != nil {
		est := r.estimateSelection(req, pv)
		sess.selection = nil
		return est, nil
	}
	state := selection.Capture(selection.Input{
		Range:         rng,
		Text:          req.Text,
		SelectionRect: req.SelectionRect,
		ContainerRect: req.ContainerRect,
		ScrollTop:     req.ScrollTop,
		ScrollLeft:    req.ScrollLeft,
	}, selection.Options{ActionBarWidthPx: r.renderCfg.ActionBarWidthPx})
	if state == nil {
		sess.selection = nil
		return nil, nil
	}
	exactStart, exactEnd, err := textrange.RangeToOffsets(state.Range, pv.tree, pv.boundaries)
	if err != nil {
		est := r.estimateSelection(req, pv)
		sess.selection = nil
		return est, nil
	}
	sess.selection = state
	return &SelectionResult{
		Text:        state.Text,
		Position:    state.Position,
		Page:        state.PageNumber,
		StartOffset: exactStart,
		EndOffset:   exactEnd,
	}, nil
}

func pageOffsetsFor(req SelectionRequest, boundaries []textrange.ParagraphBoundary) (int, int, bool) {
	if req.StartParagraph < 0 || req.StartParagraph >= len(boundaries) ||
		req.EndParagraph < 0 || req.EndParagraph >= len(boundaries) {
		return 0, 0, false
	}
	start := boundaries[req.StartParagraph].Start + req.StartOffset
	end := boundaries[req.EndParagraph].Start + req.EndOffset
	if end < start {
		return 0, 0, false
	}
	return start, end, true
}

func (r *ReviewService) estimateSelection(req SelectionRequest, pv *pageView) *SelectionResult {
	relativeY := req.SelectionRect.Top - req.ContainerRect.Top + req.ScrollTop
	est := textrange.EstimateOffsetFromPoint(relativeY, textrange.FallbackConfig{
		LineHeightPx: r.renderCfg.LineHeightPx,
		CharsPerLine: r.renderCfg.CharsPerLine,
	})
	max := textrange.ReconstructedLength(pv.boundaries)
	if est > max {
		est = max
	}
	end := est + len(req.Text)
	if end > max {
		end = max
	}
	center := req.SelectionRect.Left + req.SelectionRect.Width/2
	return &SelectionResult{
		Text: req.Text,
		Position: selection.Anchor{
			X: center - float64(r.renderCfg.ActionBarWidthPx)/2 - req.ContainerRect.Left + req.ScrollLeft,
			Y: req.SelectionRect.Top - req.ContainerRect.Top + req.ScrollTop,
		},
		Page:        req.Page,
		StartOffset: est,
		EndOffset:   end,
		Approximate: true,
	}
}

type AddCommentRequest struct {
	Type        string         `json:"type"`
	Content     string         `json:"content"`
	Text        string         `json:"text"`
	Page        int            `json:"page"`
	StartOffset int            `json:"startOffset"`
	EndOffset   int            `json:"endOffset"`
	Position    model.Position `json:"position"`
	Source      string         `json:"source"`
}

// AddComment persists a comment and materializes its wrapper onto the page
// tree. Materialization failure is non-fatal: the comment is stored and will
// be retried by the idempotent restore on the next page rebuild.
func (r *ReviewService) AddComment(ctx context.Context, reviewer, docID string, req AddCommentRequest) (*model.Comment, error) {
	sess, _, err := r.session(ctx, reviewer, docID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	pv, err := sess.ensurePage(ctx, req.Page)
	if err != nil {
		sess.mu.Unlock()
		return nil, err
	}
	if err := validateSpan(req.StartOffset, req.EndOffset, pv.boundaries); err != nil {
		sess.mu.Unlock()
		return nil, err
	}
	now := timeutil.NowMillis()
	comment := model.Comment{
		ID:          newID(),
		Type:        defaultString(req.Type, "comment"),
		Content:     req.Content,
		Text:        req.Text,
		Position:    req.Position,
		Page:        req.Page,
		StartOffset: req.StartOffset,
		EndOffset:   req.EndOffset,
		CreatedAt:   now,
		UpdatedAt:   now,
		Source:      defaultString(req.Source, model.CommentSourceManual),
	}
	sess.state.Comments = append(sess.state.Comments, comment)
	if rng, rerr := textrange.OffsetsToRange(comment.StartOffset, comment.EndOffset, pv.tree, pv.boundaries); rerr == nil {
		if _, werr := highlight.Wrap(rng, comment.ID, comment.Type); werr != nil {
			logutil.GetLogger(ctx).Warn("comment wrap deferred to next restore",
				zap.String("comment_id", comment.ID), zap.Error(werr))
		}
	} else {
		logutil.GetLogger(ctx).Warn("comment offsets not anchorable yet",
			zap.String("comment_id", comment.ID), zap.Error(rerr))
	}
	sess.mu.Unlock()
	r.scheduleSave(sess, docID)
	return &comment, nil
}

func (r *ReviewService) UpdateComment(ctx context.Context, reviewer, docID, commentID, content string) (*model.Comment, error) {
	sess, _, err := r.session(ctx, reviewer, docID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	idx := sess.commentIndex(commentID)
	if idx < 0 {
		sess.mu.Unlock()
		return nil, appErr.ErrNotFound
	}
	sess.state.Comments[idx].Content = content
	sess.state.Comments[idx].UpdatedAt = timeutil.NowMillis()
	updated := sess.state.Comments[idx]
	sess.mu.Unlock()
	r.scheduleSave(sess, docID)
	return &updated, nil
}

// DeleteComment removes the comment from the overlay immediately and sweeps
// its materialized wrapper shortly after, so a render racing the delete never
// observes a half-removed tree.
func (r *ReviewService) DeleteComment(ctx context.Context, reviewer, docID, commentID string) error {
	sess, _, err := r.session(ctx, reviewer, docID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	idx := sess.commentIndex(commentID)
	if idx < 0 {
		sess.mu.Unlock()
		return appErr.ErrNotFound
	}
	sess.state.Comments = append(sess.state.Comments[:idx], sess.state.Comments[idx+1:]...)
	sess.mu.Unlock()

	time.AfterFunc(cleanupDelay, func() {
		sess.mu.Lock()
		defer sess.mu.Unlock()
		alive := sess.aliveCommentIDs()
		for _, pv := range sess.pages {
			highlight.Cleanup(pv.tree, alive)
		}
	})
	r.scheduleSave(sess, docID)
	return nil
}

type PointAnnotationRequest struct {
	Type      string  `json:"type"`
	Page      int     `json:"page"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Content   string  `json:"content"`
	TextSize  int     `json:"textSize"`
	TextColor string  `json:"textColor"`
}

func (r *ReviewService) AddPointAnnotation(ctx context.Context, reviewer, docID string, req PointAnnotationRequest) (*model.PointAnnotation, error) {
	sess, _, err := r.session(ctx, reviewer, docID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	if sess.doc.PageByNumber(req.Page) == nil {
		sess.mu.Unlock()
		return nil, appErr.NewFieldError("page", "unknown page")
	}
	if req.X < 0 || req.X > 100 || req.Y < 0 || req.Y > 100 {
		sess.mu.Unlock()
		return nil, appErr.NewFieldError("position", "percentage coordinates out of range")
	}
	now := timeutil.NowMillis()
	ann := model.PointAnnotation{
		ID:        newID(),
		Type:      defaultString(req.Type, "note"),
		Position:  model.PointPosition{X: req.X, Y: req.Y, Page: req.Page},
		Content:   req.Content,
		TextSize:  req.TextSize,
		TextColor: req.TextColor,
		CreatedAt: now,
		UpdatedAt: now,
	}
	sess.state.PointAnnotations = append(sess.state.PointAnnotations, ann)
	sess.mu.Unlock()
	r.scheduleSave(sess, docID)
	return &ann, nil
}

func (r *ReviewService) UpdatePointAnnotation(ctx context.Context, reviewer, docID, annID, content string) (*model.PointAnnotation, error) {
	sess, _, err := r.session(ctx, reviewer, docID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	var updated *model.PointAnnotation
	for i := range sess.state.PointAnnotations {
		if sess.state.PointAnnotations[i].ID == annID {
			sess.state.PointAnnotations[i].Content = content
			sess.state.PointAnnotations[i].UpdatedAt = timeutil.NowMillis()
			clone := sess.state.PointAnnotations[i]
			updated = &clone
			break
		}
	}
	sess.mu.Unlock()
	if updated == nil {
		return nil, appErr.ErrNotFound
	}
	r.scheduleSave(sess, docID)
	return updated, nil
}

func (r *ReviewService) DeletePointAnnotation(ctx context.Context, reviewer, docID, annID string) error {
	sess, _, err := r.session(ctx, reviewer, docID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	found := false
	kept := sess.state.PointAnnotations[:0]
	for _, ann := range sess.state.PointAnnotations {
		if ann.ID == annID {
			found = true
			continue
		}
		kept = append(kept, ann)
	}
	sess.state.PointAnnotations = kept
	sess.mu.Unlock()
	if !found {
		return appErr.ErrNotFound
	}
	r.scheduleSave(sess, docID)
	return nil
}

type CustomHighlightRequest struct {
	Page        int    `json:"page"`
	StartOffset int    `json:"startOffset"`
	EndOffset   int    `json:"endOffset"`
	Color       string `json:"color"`
	Text        string `json:"text"`
}

func (r *ReviewService) AddCustomHighlight(ctx context.Context, reviewer, docID string, req CustomHighlightRequest) (*model.CustomHighlight, error) {
	sess, _, err := r.session(ctx, reviewer, docID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	pv, err := sess.ensurePage(ctx, req.Page)
	if err != nil {
		sess.mu.Unlock()
		return nil, err
	}
	if err := validateSpan(req.StartOffset, req.EndOffset, pv.boundaries); err != nil {
		sess.mu.Unlock()
		return nil, err
	}
	ch := model.CustomHighlight{
		ID:          newID(),
		Color:       defaultString(req.Color, "yellow"),
		Page:        req.Page,
		StartOffset: req.StartOffset,
		EndOffset:   req.EndOffset,
		Text:        req.Text,
		CreatedAt:   timeutil.NowMillis(),
	}
	sess.state.CustomHighlights = append(sess.state.CustomHighlights, ch)
	sess.invalidatePage(req.Page)
	sess.mu.Unlock()
	r.scheduleSave(sess, docID)
	return &ch, nil
}

func (r *ReviewService) DeleteCustomHighlight(ctx context.Context, reviewer, docID, highlightID string) error {
	sess, _, err := r.session(ctx, reviewer, docID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	found := false
	kept := sess.state.CustomHighlights[:0]
	for _, ch := range sess.state.CustomHighlights {
		if ch.ID == highlightID {
			found = true
			sess.invalidatePage(ch.Page)
			continue
		}
		kept = append(kept, ch)
	}
	sess.state.CustomHighlights = kept
	sess.mu.Unlock()
	if !found {
		return appErr.ErrNotFound
	}
	r.scheduleSave(sess, docID)
	return nil
}

// WorkingRubricScore is the in-session projection of a stored rubric score:
// grade/maxGrade/feedback persist, score/maxScore/description circulate.
type WorkingRubricScore struct {
	CriterionID string  `json:"criterionId"`
	Score       float64 `json:"score"`
	MaxScore    float64 `json:"maxScore"`
	Description string  `json:"description"`
}

func workingFromStored(rs model.RubricScore) WorkingRubricScore {
	return WorkingRubricScore{
		CriterionID: rs.CriterionID,
		Score:       rs.Grade,
		MaxScore:    rs.MaxGrade,
		Description: rs.Feedback,
	}
}

func storedFromWorking(w WorkingRubricScore) model.RubricScore {
	return model.RubricScore{
		CriterionID: w.CriterionID,
		Grade:       w.Score,
		MaxGrade:    w.MaxScore,
		Feedback:    w.Description,
	}
}

func (r *ReviewService) WorkingGrading(ctx context.Context, reviewer, docID string) ([]WorkingRubricScore, []model.GradingCriterion, error) {
	sess, _, err := r.session(ctx, reviewer, docID)
	if err != nil {
		return nil, nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	scores := make([]WorkingRubricScore, 0, len(sess.state.Grading.RubricScores))
	for _, rs := range sess.state.Grading.RubricScores {
		scores = append(scores, workingFromStored(rs))
	}
	criteria := append([]model.GradingCriterion{}, sess.state.Grading.GradingCriteria...)
	return scores, criteria, nil
}

func (r *ReviewService) SetRubricScore(ctx context.Context, reviewer, docID string, w WorkingRubricScore) error {
	if w.CriterionID == "" {
		return appErr.NewFieldError("criterionId", "required")
	}
	sess, _, err := r.session(ctx, reviewer, docID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	if len(sess.state.Grading.GradingCriteria) > 0 {
		known := false
		for _, gc := range sess.state.Grading.GradingCriteria {
			if gc.ID == w.CriterionID {
				known = true
				if w.MaxScore == 0 {
					w.MaxScore = gc.MaxGrade
				}
				break
			}
		}
		if !known {
			sess.mu.Unlock()
			return appErr.NewFieldError("criterionId", "unknown criterion")
		}
	}
	stored := storedFromWorking(w)
	replaced := false
	for i := range sess.state.Grading.RubricScores {
		if sess.state.Grading.RubricScores[i].CriterionID == w.CriterionID {
			sess.state.Grading.RubricScores[i] = stored
			replaced = true
			break
		}
	}
	if !replaced {
		sess.state.Grading.RubricScores = append(sess.state.Grading.RubricScores, stored)
	}
	sess.mu.Unlock()
	r.scheduleSave(sess, docID)
	return nil
}

func (r *ReviewService) SetGradingCriteria(ctx context.Context, reviewer, docID string, criteria []model.GradingCriterion) error {
	for i, gc := range criteria {
		if gc.ID == "" {
			return appErr.NewFieldError(fmt.Sprintf("criteria[%d].id", i), "required")
		}
	}
	sess, _, err := r.session(ctx, reviewer, docID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	sess.state.Grading.GradingCriteria = append([]model.GradingCriterion{}, criteria...)
	sess.mu.Unlock()
	r.scheduleSave(sess, docID)
	return nil
}

// SetSummaryNote upserts the document-level summary note: the first note in
// textual content is the summary slot.
func (r *ReviewService) SetSummaryNote(ctx context.Context, reviewer, docID, content string) (*model.Note, error) {
	sess, _, err := r.session(ctx, reviewer, docID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	var note model.Note
	if len(sess.state.TextualContent.Notes) == 0 {
		note = model.Note{ID: newID(), Content: content, UpdatedAt: timeutil.NowMillis()}
		sess.state.TextualContent.Notes = append(sess.state.TextualContent.Notes, note)
	} else {
		sess.state.TextualContent.Notes[0].Content = content
		sess.state.TextualContent.Notes[0].UpdatedAt = timeutil.NowMillis()
		note = sess.state.TextualContent.Notes[0]
	}
	sess.mu.Unlock()
	r.scheduleSave(sess, docID)
	return &note, nil
}

// NextIssue advances the issue cursor through the similarity highlights in
// reading order, wrapping at the end, and emphasizes the target.
func (r *ReviewService) NextIssue(ctx context.Context, reviewer, docID string) (*model.Highlight, error) {
	return r.stepIssue(ctx, reviewer, docID, 1)
}

func (r *ReviewService) PrevIssue(ctx context.Context, reviewer, docID string) (*model.Highlight, error) {
	return r.stepIssue(ctx, reviewer, docID, -1)
}

func (r *ReviewService) stepIssue(ctx context.Context, reviewer, docID string, dir int) (*model.Highlight, error) {
	sess, _, err := r.session(ctx, reviewer, docID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	issues := sess.sortedIssues()
	if len(issues) == 0 {
		return nil, appErr.ErrNotFound
	}
	sess.issueCursor += dir
	if sess.issueCursor >= len(issues) {
		sess.issueCursor = 0
	}
	if sess.issueCursor < 0 {
		sess.issueCursor = len(issues) - 1
	}
	issue := issues[sess.issueCursor]
	if pv, perr := sess.ensurePage(ctx, issue.Page); perr == nil {
		sess.emphasize(pv, issue.ID)
	}
	return &issue, nil
}

// EmphasizeHighlight applies the transient emphasized styling to a similarity
// highlight or a persisted comment wrapper.
func (r *ReviewService) EmphasizeHighlight(ctx context.Context, reviewer, docID, id string) error {
	sess, _, err := r.session(ctx, reviewer, docID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	page := 0
	if h := sess.doc.HighlightByID(id); h != nil {
		page = h.Page
	} else if idx := sess.commentIndex(id); idx >= 0 {
		page = sess.state.Comments[idx].Page
	} else {
		return appErr.ErrNotFound
	}
	pv, err := sess.ensurePage(ctx, page)
	if err != nil {
		return err
	}
	sess.emphasize(pv, id)
	return nil
}

func (r *ReviewService) GetState(ctx context.Context, reviewer, docID string) (*model.UserState, error) {
	sess, _, err := r.session(ctx, reviewer, docID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.storeExcluded()
	return cloneState(sess.state), nil
}

func (r *ReviewService) ResetState(ctx context.Context, reviewer, docID string) (*model.UserState, error) {
	sess, _, err := r.session(ctx, reviewer, docID)
	if err != nil {
		return nil, err
	}
	r.autosave.Cancel(sessionKey(reviewer, docID))
	fresh, err := r.overlays.Reset(ctx, reviewer, docID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	sess.replaceState(fresh)
	sess.mu.Unlock()
	return cloneState(fresh), nil
}

func (r *ReviewService) ExportState(ctx context.Context, reviewer, docID string) (string, error) {
	sess, _, err := r.session(ctx, reviewer, docID)
	if err != nil {
		return "", err
	}
	// Flush first so the export reflects every mutation made this session.
	r.autosave.Cancel(sessionKey(reviewer, docID))
	r.persist(sess, docID)
	return r.overlays.Export(ctx, reviewer, docID)
}

func (r *ReviewService) ImportState(ctx context.Context, reviewer, docID string, payload []byte) (*model.UserState, error) {
	sess, _, err := r.session(ctx, reviewer, docID)
	if err != nil {
		return nil, err
	}
	// Cancel before persisting, as a pending autosave firing between Import
	// and Cancel would overwrite the imported overlay with stale state. On
	// validation failure the working state is untouched; a dropped autosave
	// costs nothing because the next mutation reschedules it.
	r.autosave.Cancel(sessionKey(reviewer, docID))
	imported, err := r.overlays.Import(ctx, reviewer, docID, payload)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	sess.replaceState(imported)
	sess.mu.Unlock()
	return cloneState(imported), nil
}

// SaveNow persists the current overlay synchronously, superseding any pending
// autosave.
func (r *ReviewService) SaveNow(ctx context.Context, reviewer, docID string) error {
	sess, _, err := r.session(ctx, reviewer, docID)
	if err != nil {
		return err
	}
	r.autosave.Cancel(sessionKey(reviewer, docID))
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.storeExcluded()
	return r.overlays.Save(ctx, reviewer, docID, sess.state)
}

func (r *ReviewService) TrackedDocuments(ctx context.Context, reviewer string) ([]string, error) {
	return r.overlays.TrackedIDs(ctx, reviewer)
}

// ChatContext assembles the document-side facts the chat prompt and fallback
// action synthesis are built from.
func (r *ReviewService) ChatContext(ctx context.Context, reviewer, docID string) (title string, score float64, uncited []string, hasFlagged bool, err error) {
	sess, _, serr := r.session(ctx, reviewer, docID)
	if serr != nil {
		return "", 0, nil, false, serr
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	for _, mc := range sess.doc.MatchCards {
		if _, skip := sess.excluded[mc.ID]; skip {
			continue
		}
		if mc.SourceURL == "" {
			uncited = append(uncited, mc.SourceName)
		}
	}
	return sess.doc.Title, SimilarityScore(sess.doc, sess.excluded), uncited, len(sess.sortedIssues()) > 0, nil
}

func validateSpan(start, end int, boundaries []textrange.ParagraphBoundary) error {
	if start < 0 || end <= start {
		return appErr.NewFieldError("startOffset", "offsets out of order")
	}
	if end > textrange.ReconstructedLength(boundaries) {
		return appErr.NewFieldError("endOffset", "beyond page text")
	}
	return nil
}

func cloneState(st *model.UserState) *model.UserState {
	data, err := json.Marshal(st)
	if err != nil {
		return st
	}
	var out model.UserState
	if err := json.Unmarshal(data, &out); err != nil {
		return st
	}
	return &out
}

func excludedList(excluded map[string]struct{}) []string {
	out := make([]string, 0, len(excluded))
	for id := range excluded {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func defaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
