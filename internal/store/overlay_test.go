package store

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/redpen/internal/model"
	appErr "github.com/xxxsen/redpen/internal/pkg/errors"
)

func TestOverlayLoadCreatesAndPersistsEmptyState(t *testing.T) {
	kv := NewMemoryKV()
	overlays := NewOverlayStore(kv, 10)
	ctx := context.Background()

	st, created, err := overlays.Load(ctx, "local", "doc-1")
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, "doc-1", st.DocumentID)
	require.Equal(t, model.UserStateVersion, st.Version)
	require.NotNil(t, st.Comments)

	// Persisted immediately, and tracked.
	_, err = kv.Get(ctx, "redpen:state:local:doc-1")
	require.NoError(t, err)
	ids, err := overlays.TrackedIDs(ctx, "local")
	require.NoError(t, err)
	require.Equal(t, []string{"doc-1"}, ids)

	_, created, err = overlays.Load(ctx, "local", "doc-1")
	require.NoError(t, err)
	require.False(t, created)
}

func TestOverlaySaveSkipsByteIdenticalPayload(t *testing.T) {
	kv := NewMemoryKV()
	overlays := NewOverlayStore(kv, 10)
	ctx := context.Background()

	st, _, err := overlays.Load(ctx, "local", "doc-1")
	require.NoError(t, err)
	before := st.LastModified

	require.NoError(t, overlays.Save(ctx, "local", "doc-1", st))
	require.Equal(t, before, st.LastModified, "identical payload must not bump lastModified")

	st.Comments = append(st.Comments, model.Comment{ID: "c1", Content: "hm", Page: 1, StartOffset: 0, EndOffset: 5})
	require.NoError(t, overlays.Save(ctx, "local", "doc-1", st))
	require.GreaterOrEqual(t, st.LastModified, before)

	data, err := kv.Get(ctx, "redpen:state:local:doc-1")
	require.NoError(t, err)
	var stored model.UserState
	require.NoError(t, json.Unmarshal(data, &stored))
	require.Len(t, stored.Comments, 1)
}

func TestOverlayResetMatchesFreshState(t *testing.T) {
	kv := NewMemoryKV()
	overlays := NewOverlayStore(kv, 10)
	ctx := context.Background()

	st, _, err := overlays.Load(ctx, "local", "doc-1")
	require.NoError(t, err)
	st.Comments = append(st.Comments, model.Comment{ID: "c1", Content: "x"})
	require.NoError(t, overlays.Save(ctx, "local", "doc-1", st))

	fresh, err := overlays.Reset(ctx, "local", "doc-1")
	require.NoError(t, err)
	require.Empty(t, fresh.Comments)
	require.Equal(t, model.UserStateVersion, fresh.Version)

	reloaded, created, err := overlays.Load(ctx, "local", "doc-1")
	require.NoError(t, err)
	require.False(t, created)
	require.Empty(t, reloaded.Comments)
}

func TestOverlayExportImportRoundTrip(t *testing.T) {
	kv := NewMemoryKV()
	overlays := NewOverlayStore(kv, 10)
	ctx := context.Background()

	st, _, err := overlays.Load(ctx, "local", "doc-1")
	require.NoError(t, err)
	st.Comments = append(st.Comments, model.Comment{ID: "c1", Content: "keep me", Page: 1})
	require.NoError(t, overlays.Save(ctx, "local", "doc-1", st))

	exported, err := overlays.Export(ctx, "local", "doc-1")
	require.NoError(t, err)
	require.Contains(t, exported, "keep me")

	imported, err := overlays.Import(ctx, "local", "doc-2", []byte(exported))
	require.NoError(t, err)
	require.Equal(t, "doc-2", imported.DocumentID, "document id follows the import target")
	require.Len(t, imported.Comments, 1)
	require.Equal(t, "keep me", imported.Comments[0].Content)
}

func TestOverlayImportPreservesUnknownFields(t *testing.T) {
	kv := NewMemoryKV()
	overlays := NewOverlayStore(kv, 10)
	ctx := context.Background()

	st := model.NewEmptyUserState("doc-1")
	data, err := json.Marshal(st)
	require.NoError(t, err)
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	raw["futureField"] = json.RawMessage(`"hello"`)
	payload, err := json.Marshal(raw)
	require.NoError(t, err)

	_, err = overlays.Import(ctx, "local", "doc-1", payload)
	require.NoError(t, err)

	stored, err := kv.Get(ctx, "redpen:state:local:doc-1")
	require.NoError(t, err)
	require.Contains(t, string(stored), "futureField")
}

func TestOverlayImportRejectsMissingFieldWithoutWriting(t *testing.T) {
	kv := NewMemoryKV()
	overlays := NewOverlayStore(kv, 10)
	ctx := context.Background()

	st, _, err := overlays.Load(ctx, "local", "doc-1")
	require.NoError(t, err)
	st.Comments = append(st.Comments, model.Comment{ID: "c1", Content: "original"})
	require.NoError(t, overlays.Save(ctx, "local", "doc-1", st))
	before, err := kv.Get(ctx, "redpen:state:local:doc-1")
	require.NoError(t, err)

	payload := map[string]json.RawMessage{}
	data, merr := json.Marshal(model.NewEmptyUserState("doc-1"))
	require.NoError(t, merr)
	require.NoError(t, json.Unmarshal(data, &payload))
	delete(payload, "grading")
	broken, merr := json.Marshal(payload)
	require.NoError(t, merr)

	_, err = overlays.Import(ctx, "local", "doc-1", broken)
	fe, ok := appErr.AsFieldError(err)
	require.True(t, ok)
	require.Equal(t, "grading", fe.Field)

	after, err := kv.Get(ctx, "redpen:state:local:doc-1")
	require.NoError(t, err)
	require.Equal(t, before, after, "failed import must leave the stored overlay untouched")
}

func TestOverlayImportMalformedJSON(t *testing.T) {
	overlays := NewOverlayStore(NewMemoryKV(), 10)
	_, err := overlays.Import(context.Background(), "local", "doc-1", []byte("{oops"))
	require.True(t, appErr.IsMalformedJSON(err))
}

func TestOverlayExportMissing(t *testing.T) {
	overlays := NewOverlayStore(NewMemoryKV(), 10)
	_, err := overlays.Export(context.Background(), "local", "never-opened")
	require.ErrorIs(t, err, appErr.ErrNotFound)
}

func TestOverlayEvictionDropsOldestTracked(t *testing.T) {
	kv := NewMemoryKV()
	overlays := NewOverlayStore(kv, 3)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		_, _, err := overlays.Load(ctx, "local", fmt.Sprintf("doc-%d", i))
		require.NoError(t, err)
	}

	ids, err := overlays.TrackedIDs(ctx, "local")
	require.NoError(t, err)
	require.Equal(t, []string{"doc-2", "doc-3", "doc-4"}, ids)

	_, err = kv.Get(ctx, "redpen:state:local:doc-1")
	require.ErrorIs(t, err, appErr.ErrNotFound)
	_, err = kv.Get(ctx, "redpen:state:local:doc-2")
	require.NoError(t, err)
}

func TestOverlayLoadDegradesOnStorageFailure(t *testing.T) {
	kv := NewMemoryKV()
	kv.FailReads = true
	overlays := NewOverlayStore(kv, 10)

	st, created, err := overlays.Load(context.Background(), "local", "doc-1")
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, "doc-1", st.DocumentID)
	require.Empty(t, st.Comments)
}

func TestOverlayLoadMigratesOlderVersion(t *testing.T) {
	kv := NewMemoryKV()
	overlays := NewOverlayStore(kv, 10)
	ctx := context.Background()

	// A v1-era overlay: no grading, no metadata, old version tag, plus a field
	// this code has never heard of.
	old := map[string]interface{}{
		"documentId":       "doc-1",
		"version":          "1",
		"comments":         []interface{}{map[string]interface{}{"id": "c1", "content": "from v1"}},
		"pointAnnotations": []interface{}{},
		"textualContent":   map[string]interface{}{"notes": []interface{}{}},
		"customHighlights": []interface{}{},
		"createdAt":        1000,
		"lastModified":     2000,
		"legacyExtra":      "still here",
	}
	data, err := json.Marshal(old)
	require.NoError(t, err)
	require.NoError(t, kv.Set(ctx, "redpen:state:local:doc-1", data))

	st, created, err := overlays.Load(ctx, "local", "doc-1")
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, model.UserStateVersion, st.Version)
	require.Len(t, st.Comments, 1)
	require.NotNil(t, st.Grading.RubricScores)
	require.NotNil(t, st.Metadata)

	persisted, err := kv.Get(ctx, "redpen:state:local:doc-1")
	require.NoError(t, err)
	require.Contains(t, string(persisted), "legacyExtra")
	require.Contains(t, string(persisted), `"version":"2"`)
}

func TestOverlaySweepOrphans(t *testing.T) {
	kv := NewMemoryKV()
	overlays := NewOverlayStore(kv, 10)
	ctx := context.Background()

	_, _, err := overlays.Load(ctx, "local", "doc-1")
	require.NoError(t, err)
	// A stray overlay no tracked list knows about.
	stray, merr := json.Marshal(model.NewEmptyUserState("ghost"))
	require.NoError(t, merr)
	require.NoError(t, kv.Set(ctx, "redpen:state:local:ghost", stray))

	removed, err := overlays.SweepOrphans(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	_, err = kv.Get(ctx, "redpen:state:local:ghost")
	require.ErrorIs(t, err, appErr.ErrNotFound)
	_, err = kv.Get(ctx, "redpen:state:local:doc-1")
	require.NoError(t, err)
}
