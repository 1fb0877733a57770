package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/redpen/internal/model"
	appErr "github.com/xxxsen/redpen/internal/pkg/errors"
	"github.com/xxxsen/redpen/internal/pkg/timeutil"
)

const (
	statePrefix   = "redpen:state:"
	trackedPrefix = "redpen:tracked:"
)

// OverlayStore manages the mutable user overlay layered over immutable base
// documents: one UserState per (reviewer, document id), a bounded tracked-id
// list per reviewer with oldest-added eviction, and export/import as portable
// JSON. Storage failures degrade to "no saved state".
type OverlayStore struct {
	kv         KV
	maxTracked int

	mu        sync.Mutex
	lastSaved map[string]string
}

func NewOverlayStore(kv KV, maxTracked int) *OverlayStore {
	if maxTracked <= 0 {
		maxTracked = 50
	}
	return &OverlayStore{kv: kv, maxTracked: maxTracked, lastSaved: map[string]string{}}
}

func stateKey(reviewer, docID string) string {
	return statePrefix + reviewer + ":" + docID
}

func trackedKey(reviewer string) string {
	return trackedPrefix + reviewer
}

// Load fetches the overlay for a document, creating and persisting an empty
// one on first load so export/import have a stable baseline immediately. A
// loaded overlay with an older version tag is migrated (missing fields filled
// from a fresh empty state, unknown fields untouched) and re-persisted.
func (s *OverlayStore) Load(ctx context.Context, reviewer, docID string) (*model.UserState, bool, error) {
	key := stateKey(reviewer, docID)
	data, err := s.kv.Get(ctx, key)
	if appErr.IsNotFound(err) {
		st := model.NewEmptyUserState(docID)
		if err := s.persist(ctx, key, st); err != nil {
			logutil.GetLogger(ctx).Error("persist fresh overlay failed, continuing unsaved",
				zap.String("doc_id", docID), zap.Error(err))
			return st, true, nil
		}
		if err := s.track(ctx, reviewer, docID); err != nil {
			logutil.GetLogger(ctx).Warn("track document failed", zap.String("doc_id", docID), zap.Error(err))
		}
		return st, true, nil
	}
	if err != nil {
		// Degrade to a blank in-memory overlay rather than fail the caller.
		logutil.GetLogger(ctx).Error("overlay read failed, degrading to empty state",
			zap.String("doc_id", docID), zap.Error(err))
		return model.NewEmptyUserState(docID), false, nil
	}

	raw, verr := model.ValidateUserStateJSON(data)
	if verr != nil {
		logutil.GetLogger(ctx).Warn("stored overlay invalid, attempting migration",
			zap.String("doc_id", docID), zap.Error(verr))
		if raw == nil {
			// Not even JSON; treat as lost state.
			return model.NewEmptyUserState(docID), false, nil
		}
	}
	if migrateState(raw, docID) {
		migrated, err := json.Marshal(raw)
		if err == nil {
			if werr := s.kv.Set(ctx, key, migrated); werr != nil {
				logutil.GetLogger(ctx).Warn("persist migrated overlay failed", zap.Error(werr))
			}
			data = migrated
		}
	}
	var st model.UserState
	if err := json.Unmarshal(data, &st); err != nil {
		logutil.GetLogger(ctx).Error("overlay decode failed, degrading to empty state",
			zap.String("doc_id", docID), zap.Error(err))
		return model.NewEmptyUserState(docID), false, nil
	}
	normalize(&st, docID)
	s.mu.Lock()
	s.lastSaved[key] = string(data)
	s.mu.Unlock()
	return &st, false, nil
}

// migrateState fills any required field missing from an older-version overlay
// with the corresponding field of a fresh empty state. Unknown extra fields
// pass through unchanged (forward compatible by default).
func migrateState(raw map[string]json.RawMessage, docID string) bool {
	version := ""
	if v, ok := raw["version"]; ok {
		_ = json.Unmarshal(v, &version)
	}
	if version == model.UserStateVersion {
		return false
	}
	empty := model.NewEmptyUserState(docID)
	emptyRaw, err := json.Marshal(empty)
	if err != nil {
		return false
	}
	var emptyMap map[string]json.RawMessage
	if err := json.Unmarshal(emptyRaw, &emptyMap); err != nil {
		return false
	}
	for field, value := range emptyMap {
		if _, ok := raw[field]; !ok {
			raw[field] = value
		}
	}
	raw["version"] = json.RawMessage(fmt.Sprintf("%q", model.UserStateVersion))
	return true
}

func normalize(st *model.UserState, docID string) {
	if st.DocumentID == "" {
		st.DocumentID = docID
	}
	if st.Comments == nil {
		st.Comments = []model.Comment{}
	}
	if st.PointAnnotations == nil {
		st.PointAnnotations = []model.PointAnnotation{}
	}
	if st.TextualContent.Notes == nil {
		st.TextualContent.Notes = []model.Note{}
	}
	if st.Grading.RubricScores == nil {
		st.Grading.RubricScores = []model.RubricScore{}
	}
	if st.Grading.GradingCriteria == nil {
		st.Grading.GradingCriteria = []model.GradingCriterion{}
	}
	if st.CustomHighlights == nil {
		st.CustomHighlights = []model.CustomHighlight{}
	}
	if st.Metadata == nil {
		st.Metadata = map[string]json.RawMessage{}
	}
}

// Save serializes the overlay and writes it, skipping the write when the
// payload is byte-identical to the last saved one (rapid-fire autosave).
// LastModified is bumped only when the content actually changed.
func (s *OverlayStore) Save(ctx context.Context, reviewer, docID string, st *model.UserState) error {
	key := stateKey(reviewer, docID)
	encoded, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("serialize user state: %w", err)
	}
	s.mu.Lock()
	last, ok := s.lastSaved[key]
	s.mu.Unlock()
	if ok && last == string(encoded) {
		return nil
	}
	st.LastModified = timeutil.NowMillis()
	return s.persist(ctx, key, st)
}

func (s *OverlayStore) persist(ctx context.Context, key string, st *model.UserState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("serialize user state: %w", err)
	}
	if err := s.kv.Set(ctx, key, data); err != nil {
		return fmt.Errorf("%w: %v", appErr.ErrStorage, err)
	}
	s.mu.Lock()
	s.lastSaved[key] = string(data)
	s.mu.Unlock()
	return nil
}

// Reset discards the persisted overlay and replaces it with a fresh empty
// one, indistinguishable afterward from a never-before-opened document.
func (s *OverlayStore) Reset(ctx context.Context, reviewer, docID string) (*model.UserState, error) {
	key := stateKey(reviewer, docID)
	if err := s.kv.Delete(ctx, key); err != nil {
		return nil, fmt.Errorf("%w: %v", appErr.ErrStorage, err)
	}
	s.mu.Lock()
	delete(s.lastSaved, key)
	s.mu.Unlock()
	if err := s.untrack(ctx, reviewer, docID); err != nil {
		logutil.GetLogger(ctx).Warn("untrack on reset failed", zap.Error(err))
	}
	st := model.NewEmptyUserState(docID)
	if err := s.persist(ctx, key, st); err != nil {
		return nil, err
	}
	if err := s.track(ctx, reviewer, docID); err != nil {
		logutil.GetLogger(ctx).Warn("track on reset failed", zap.Error(err))
	}
	return st, nil
}

// Export returns the overlay as pretty-printed JSON, or ErrNotFound when no
// overlay exists for the document.
func (s *OverlayStore) Export(ctx context.Context, reviewer, docID string) (string, error) {
	data, err := s.kv.Get(ctx, stateKey(reviewer, docID))
	if err != nil {
		if appErr.IsNotFound(err) {
			return "", appErr.ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", appErr.ErrStorage, err)
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		return "", fmt.Errorf("format export: %w", err)
	}
	return pretty.String(), nil
}

// Import validates the payload against the UserState shape contract, then
// overwrites the document id and timestamps, persists, and returns the new
// state. On validation failure the error names the offending field and
// nothing is written. Unknown extra fields survive the round trip.
func (s *OverlayStore) Import(ctx context.Context, reviewer, docID string, payload []byte) (*model.UserState, error) {
	raw, err := model.ValidateUserStateJSON(payload)
	if err != nil {
		return nil, err
	}
	now := timeutil.NowMillis()
	raw["documentId"] = json.RawMessage(fmt.Sprintf("%q", docID))
	raw["createdAt"] = json.RawMessage(fmt.Sprintf("%d", now))
	raw["lastModified"] = json.RawMessage(fmt.Sprintf("%d", now))
	migrateState(raw, docID)

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("serialize imported state: %w", err)
	}
	var st model.UserState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, appErr.NewFieldError("userState", "fields do not decode to the expected shapes")
	}
	normalize(&st, docID)

	key := stateKey(reviewer, docID)
	if err := s.kv.Set(ctx, key, data); err != nil {
		return nil, fmt.Errorf("%w: %v", appErr.ErrStorage, err)
	}
	s.mu.Lock()
	s.lastSaved[key] = string(data)
	s.mu.Unlock()
	if err := s.track(ctx, reviewer, docID); err != nil {
		logutil.GetLogger(ctx).Warn("track on import failed", zap.Error(err))
	}
	return &st, nil
}

// TrackedIDs returns the reviewer's tracked document ids, oldest first.
func (s *OverlayStore) TrackedIDs(ctx context.Context, reviewer string) ([]string, error) {
	data, err := s.kv.Get(ctx, trackedKey(reviewer))
	if appErr.IsNotFound(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *OverlayStore) track(ctx context.Context, reviewer, docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids, err := s.TrackedIDs(ctx, reviewer)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if id == docID {
			return nil
		}
	}
	ids = append(ids, docID)
	// Oldest-added goes first; evict from the front until within bound.
	for len(ids) > s.maxTracked {
		evicted := ids[0]
		ids = ids[1:]
		evictKey := stateKey(reviewer, evicted)
		if err := s.kv.Delete(ctx, evictKey); err != nil {
			logutil.GetLogger(ctx).Warn("evict overlay failed",
				zap.String("doc_id", evicted), zap.Error(err))
		}
		delete(s.lastSaved, evictKey)
	}
	return s.writeTracked(ctx, reviewer, ids)
}

func (s *OverlayStore) untrack(ctx context.Context, reviewer, docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids, err := s.TrackedIDs(ctx, reviewer)
	if err != nil {
		return err
	}
	kept := ids[:0]
	for _, id := range ids {
		if id != docID {
			kept = append(kept, id)
		}
	}
	return s.writeTracked(ctx, reviewer, kept)
}

func (s *OverlayStore) writeTracked(ctx context.Context, reviewer string, ids []string) error {
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, trackedKey(reviewer), data)
}

// SweepOrphans deletes overlay entries whose document id is no longer on any
// reviewer's tracked list. Run periodically; eviction only removes entries it
// knows about, so crashed writes can leave strays behind.
func (s *OverlayStore) SweepOrphans(ctx context.Context) (int, error) {
	stateKeys, err := s.kv.Keys(ctx, statePrefix)
	if err != nil {
		return 0, err
	}
	trackedKeys, err := s.kv.Keys(ctx, trackedPrefix)
	if err != nil {
		return 0, err
	}
	alive := map[string]struct{}{}
	for _, tk := range trackedKeys {
		reviewer := strings.TrimPrefix(tk, trackedPrefix)
		ids, err := s.TrackedIDs(ctx, reviewer)
		if err != nil {
			continue
		}
		for _, id := range ids {
			alive[stateKey(reviewer, id)] = struct{}{}
		}
	}
	removed := 0
	for _, key := range stateKeys {
		if _, ok := alive[key]; ok {
			continue
		}
		if err := s.kv.Delete(ctx, key); err != nil {
			logutil.GetLogger(ctx).Warn("sweep delete failed", zap.String("key", key), zap.Error(err))
			continue
		}
		s.mu.Lock()
		delete(s.lastSaved, key)
		s.mu.Unlock()
		removed++
	}
	return removed, nil
}
