package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/xxxsen/common/webapi"

	"github.com/xxxsen/redpen/internal/ai"
	"github.com/xxxsen/redpen/internal/config"
	"github.com/xxxsen/redpen/internal/filestore"
	"github.com/xxxsen/redpen/internal/handler"
	"github.com/xxxsen/redpen/internal/middleware"
	"github.com/xxxsen/redpen/internal/model"
	"github.com/xxxsen/redpen/internal/service"
	"github.com/xxxsen/redpen/internal/store"
)

// apiResult is the envelope every endpoint responds with.
type apiResult struct {
	Code int             `json:"code"`
	Msg  string          `json:"message"`
	Data json.RawMessage `json:"data"`
}

func fixtureDocument() *model.Document {
	return &model.Document{
		ID:    "doc-1",
		Title: "Essay draft",
		Pages: []model.Page{
			{Number: 1, Content: "Hello world.\n\nSecond paragraph here."},
		},
		Highlights: []model.Highlight{
			{ID: "h1", MatchCardID: "mc1", StartOffset: 6, EndOffset: 11, Text: "world", Page: 1},
			{ID: "h2", MatchCardID: "mc2", StartOffset: 14, EndOffset: 20, Text: "Second", Page: 1},
		},
		MatchCards: []model.MatchCard{
			{ID: "mc1", SourceName: "Wikipedia", SourceURL: "https://en.wikipedia.org", SimilarityPercent: 25,
				Matches: []model.MatchInstance{{HighlightID: "h1", Text: "world"}}},
			{ID: "mc2", SourceName: "Student paper", SimilarityPercent: 15,
				Matches: []model.MatchInstance{{HighlightID: "h2", Text: "Second"}}},
		},
	}
}

func setupRouter(t *testing.T) (http.Handler, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	payload, err := json.Marshal(fixtureDocument())
	require.NoError(t, err)
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/data/documents/doc-1.json" {
			_, _ = w.Write(payload)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(origin.Close)

	docs := service.NewDocumentService(config.DocumentSource{BaseURL: origin.URL, CacheSize: 8, CacheTTLMin: 5}, nil)
	overlays := store.NewOverlayStore(store.NewMemoryKV(), 10)
	autosave := service.NewDebouncer(10 * time.Millisecond)
	t.Cleanup(autosave.Stop)
	reviews := service.NewReviewService(docs, overlays, autosave, config.RenderConfig{
		LineHeightPx:     24,
		CharsPerLine:     80,
		ActionBarWidthPx: 320,
	})

	provider, err := ai.NewProvider("mock", nil)
	require.NoError(t, err)
	chat := service.NewChatService(provider, config.AIConfig{Provider: "mock", CacheSize: 8, CacheTTLMin: 5})

	archiveDir, err := os.MkdirTemp("", "redpen-archive-*")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(archiveDir) })
	archive, err := filestore.New(config.FileStoreConfig{
		Type: "local",
		Data: map[string]interface{}{"dir": archiveDir},
	})
	require.NoError(t, err)

	deps := handler.RouterDeps{
		Documents: handler.NewDocumentHandler(reviews),
		State:     handler.NewStateHandler(reviews, archive),
		Review:    handler.NewReviewHandler(reviews),
		Chat:      handler.NewChatHandler(chat, reviews),
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		"",
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(nil),
		),
	)
	require.NoError(t, err)
	return engine, archiveDir
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
		req.Header.Set("Content-Type", "application/json")
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func decodeResult(t *testing.T, resp *httptest.ResponseRecorder) apiResult {
	t.Helper()
	var result apiResult
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
	return result
}
