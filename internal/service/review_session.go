package service

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"golang.org/x/net/html"

	"github.com/xxxsen/redpen/internal/highlight"
	"github.com/xxxsen/redpen/internal/model"
	appErr "github.com/xxxsen/redpen/internal/pkg/errors"
	"github.com/xxxsen/redpen/internal/render"
	"github.com/xxxsen/redpen/internal/selection"
	"github.com/xxxsen/redpen/internal/textrange"
)

// metadataExcludedKey stores the reviewer's excluded match card ids inside the
// overlay metadata map, so exclusions survive restarts like any other overlay
// field.
const metadataExcludedKey = "excludedMatchCards"

// Session is the live review of one document by one reviewer: the immutable
// base document, the mutable overlay, and the rendered page trees mutations
// are materialized into. All access is serialized through mu, which is what
// makes every mutation path (manual or chat-dispatched) a single queue.
type Session struct {
	mu       sync.Mutex
	reviewer string
	doc      *model.Document
	state    *model.UserState

	pages             map[int]*pageView
	similarityVisible bool
	excluded          map[string]struct{}
	selection         *selection.State
	emphasized        map[string]time.Time
	issueCursor       int

	emphasisTTL time.Duration
}

type pageView struct {
	number     int
	boundaries []textrange.ParagraphBoundary
	tree       *html.Node
}

func newSession(reviewer string, doc *model.Document, state *model.UserState, emphasisTTL time.Duration) *Session {
	s := &Session{
		reviewer:          reviewer,
		doc:               doc,
		state:             state,
		pages:             map[int]*pageView{},
		similarityVisible: true,
		excluded:          map[string]struct{}{},
		emphasized:        map[string]time.Time{},
		issueCursor:       -1,
		emphasisTTL:       emphasisTTL,
	}
	s.loadExcluded()
	return s
}

func (s *Session) loadExcluded() {
	raw, ok := s.state.Metadata[metadataExcludedKey]
	if !ok {
		return
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return
	}
	for _, id := range ids {
		s.excluded[id] = struct{}{}
	}
}

func (s *Session) storeExcluded() {
	ids := make([]string, 0, len(s.excluded))
	for id := range s.excluded {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	data, err := json.Marshal(ids)
	if err != nil {
		return
	}
	s.state.Metadata[metadataExcludedKey] = data
}

// replaceState swaps the overlay (reset, import) and drops every cached page
// tree so stale materialized wrappers cannot survive the old state.
func (s *Session) replaceState(state *model.UserState) {
	s.state = state
	s.pages = map[int]*pageView{}
	s.excluded = map[string]struct{}{}
	s.emphasized = map[string]time.Time{}
	s.issueCursor = -1
	s.loadExcluded()
}

// ensurePage renders a page on demand: declarative layers (similarity and
// custom highlights) go through the segment renderer, then persisted comments
// are materialized imperatively onto the parsed tree.
func (s *Session) ensurePage(ctx context.Context, num int) (*pageView, error) {
	if pv, ok := s.pages[num]; ok {
		s.pruneEmphasis(pv)
		return pv, nil
	}
	page := s.doc.PageByNumber(num)
	if page == nil {
		return nil, appErr.ErrNotFound
	}
	boundaries := textrange.ComputeParagraphBoundaries(page.Content)
	paragraphs := render.Page(page.Content, s.annotationsFor(num))
	markup := render.PageHTML(num, paragraphs, render.Options{SimilarityVisible: s.similarityVisible})
	tree, err := render.ParsePageHTML(markup)
	if err != nil {
		return nil, err
	}
	highlight.Restore(ctx, tree, boundaries, s.commentsFor(num))
	pv := &pageView{number: num, boundaries: boundaries, tree: tree}
	s.pages[num] = pv
	s.applyEmphasis(pv)
	return pv, nil
}

func (s *Session) invalidatePage(num int) {
	delete(s.pages, num)
}

func (s *Session) invalidateAllPages() {
	s.pages = map[int]*pageView{}
}

func (s *Session) annotationsFor(num int) []render.Annotation {
	var out []render.Annotation
	for _, h := range s.doc.Highlights {
		if h.Page != num {
			continue
		}
		if _, skip := s.excluded[h.MatchCardID]; skip {
			continue
		}
		out = append(out, render.Annotation{
			ID:    h.ID,
			Type:  render.AnnotationSimilarity,
			Start: h.StartOffset,
			End:   h.EndOffset,
		})
	}
	for _, ch := range s.state.CustomHighlights {
		if ch.Page != num {
			continue
		}
		out = append(out, render.Annotation{
			ID:    ch.ID,
			Type:  render.AnnotationCustom,
			Start: ch.StartOffset,
			End:   ch.EndOffset,
			Color: ch.Color,
		})
	}
	return out
}

func (s *Session) commentsFor(num int) []model.Comment {
	var out []model.Comment
	for _, c := range s.state.Comments {
		if c.Page == num && c.EndOffset > c.StartOffset {
			out = append(out, c)
		}
	}
	return out
}

// applyEmphasis re-applies unexpired emphasis attributes after a page rebuild.
func (s *Session) applyEmphasis(pv *pageView) {
	now := time.Now()
	for id, expiry := range s.emphasized {
		if now.After(expiry) {
			delete(s.emphasized, id)
			continue
		}
		setAnnotationSelected(pv.tree, id, true)
	}
}

func (s *Session) pruneEmphasis(pv *pageView) {
	now := time.Now()
	for id, expiry := range s.emphasized {
		if now.After(expiry) {
			delete(s.emphasized, id)
			setAnnotationSelected(pv.tree, id, false)
		}
	}
}

// emphasize marks a highlight as visually emphasized for the emphasis window.
// The style state lives on the node tree; offsets and text are untouched.
func (s *Session) emphasize(pv *pageView, id string) {
	s.emphasized[id] = time.Now().Add(s.emphasisTTL)
	setAnnotationSelected(pv.tree, id, true)
}

// setAnnotationSelected toggles the selected attribute on either kind of
// span: a materialized comment wrapper or a declarative annotation span.
func setAnnotationSelected(page *html.Node, id string, selected bool) bool {
	if highlight.SetSelected(page, id, selected) {
		return true
	}
	node := findAnnotationSpan(page, id)
	if node == nil {
		return false
	}
	if selected {
		textrange.SetNodeAttr(node, highlight.AttrSelected, "true")
	} else {
		textrange.RemoveNodeAttr(node, highlight.AttrSelected)
	}
	return true
}

func findAnnotationSpan(page *html.Node, id string) *html.Node {
	var found *html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		for child := n.FirstChild; child != nil && found == nil; child = child.NextSibling {
			if v, ok := textrange.NodeAttr(child, render.AttrAnnotationID); ok && v == id {
				found = child
				return
			}
			walk(child)
		}
	}
	walk(page)
	return found
}

// sortedIssues returns the document's similarity highlights in reading order,
// excluded cards skipped. This is the iteration order of next/previous issue
// navigation.
func (s *Session) sortedIssues() []model.Highlight {
	issues := make([]model.Highlight, 0, len(s.doc.Highlights))
	for _, h := range s.doc.Highlights {
		if _, skip := s.excluded[h.MatchCardID]; skip {
			continue
		}
		issues = append(issues, h)
	}
	sort.SliceStable(issues, func(i, j int) bool {
		if issues[i].Page != issues[j].Page {
			return issues[i].Page < issues[j].Page
		}
		return issues[i].StartOffset < issues[j].StartOffset
	})
	return issues
}

func (s *Session) commentIndex(id string) int {
	for i := range s.state.Comments {
		if s.state.Comments[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Session) aliveCommentIDs() map[string]struct{} {
	alive := make(map[string]struct{}, len(s.state.Comments))
	for _, c := range s.state.Comments {
		alive[c.ID] = struct{}{}
	}
	return alive
}
