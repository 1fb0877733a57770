package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/redpen/internal/config"
	"github.com/xxxsen/redpen/internal/filestore"
	"github.com/xxxsen/redpen/internal/model"
	appErr "github.com/xxxsen/redpen/internal/pkg/errors"
)

// DocumentService fetches immutable base documents. The file store is
// consulted first when a key prefix is configured, then the HTTP origin.
// Fetched documents are cached; they never change, so the TTL only bounds
// memory, not staleness.
type DocumentService struct {
	source config.DocumentSource
	store  filestore.Store
	client *http.Client
	cache  *expirable.LRU[string, *model.Document]
}

func NewDocumentService(source config.DocumentSource, store filestore.Store) *DocumentService {
	cache := expirable.NewLRU[string, *model.Document](source.CacheSize, nil, time.Duration(source.CacheTTLMin)*time.Minute)
	return &DocumentService{
		source: source,
		store:  store,
		client: &http.Client{Timeout: 15 * time.Second},
		cache:  cache,
	}
}

func (s *DocumentService) Fetch(ctx context.Context, id string) (*model.Document, error) {
	if strings.TrimSpace(id) == "" {
		return nil, appErr.NewFieldError("id", "required")
	}
	if doc, ok := s.cache.Get(id); ok {
		return doc, nil
	}
	data, err := s.read(ctx, id)
	if err != nil {
		return nil, err
	}
	var doc model.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		logutil.GetLogger(ctx).Error("document payload undecodable",
			zap.String("doc_id", id), zap.Error(err))
		return nil, fmt.Errorf("%w: document %s", appErr.ErrMalformedJSON, id)
	}
	if err := doc.Validate(); err != nil {
		logutil.GetLogger(ctx).Error("document failed shape validation",
			zap.String("doc_id", id), zap.Error(err))
		return nil, err
	}
	s.cache.Add(id, &doc)
	return &doc, nil
}

func (s *DocumentService) read(ctx context.Context, id string) ([]byte, error) {
	if s.source.StoreKeyPrefix != "" && s.store != nil {
		data, err := s.readStore(ctx, id)
		if err == nil {
			return data, nil
		}
		if s.source.BaseURL == "" {
			return nil, err
		}
		logutil.GetLogger(ctx).Debug("file store miss, trying http origin",
			zap.String("doc_id", id), zap.Error(err))
	}
	if s.source.BaseURL == "" {
		return nil, appErr.ErrNotFound
	}
	return s.readHTTP(ctx, id)
}

func (s *DocumentService) readStore(ctx context.Context, id string) ([]byte, error) {
	rc, err := s.store.Open(ctx, s.source.StoreKeyPrefix+id+".json")
	if err != nil {
		return nil, appErr.ErrNotFound
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (s *DocumentService) readHTTP(ctx context.Context, id string) ([]byte, error) {
	url := strings.TrimRight(s.source.BaseURL, "/") + "/data/documents/" + id + ".json"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch document %s: %w", id, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, appErr.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch document %s: unexpected status %s", id, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// SimilarityScore is the sum of match percentages over the cards not in the
// excluded set. Recomputed from scratch on every call; exclusion state lives
// in the caller's overlay, never in the document.
func SimilarityScore(doc *model.Document, excluded map[string]struct{}) float64 {
	total := 0.0
	for _, mc := range doc.MatchCards {
		if _, skip := excluded[mc.ID]; skip {
			continue
		}
		total += mc.SimilarityPercent
	}
	return total
}
