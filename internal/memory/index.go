package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	apperrors "nlu-memory-assistant/internal/common/errors"
	"nlu-memory-assistant/internal/common/logger"
	"nlu-memory-assistant/internal/nlu"
)

var ErrAnalysisIndexFailed = errors.New("ANALYSIS_INDEX_FAILED")

func init() {
	apperrors.RegisterSentinel(ErrAnalysisIndexFailed, apperrors.ErrCodeAnalysisIndexFailed)
}

const (
	DefaultIndexName = "nlu-analyses"
	maxSearchSize    = 100
)

// IndexedAnalysis is the document stored in the analysis index.
type IndexedAnalysis struct {
	UserID string `json:"user_id"`
	nlu.AnalysisDocument
}

// AnalysisIndex mirrors persisted analyses into Elasticsearch for search.
type AnalysisIndex struct {
	client *elasticsearch.Client
	index  string
	now    func() time.Time
	logger logger.Logger
}

func NewAnalysisIndex(client *elasticsearch.Client, index string, log logger.Logger) *AnalysisIndex {
	if index == "" {
		index = DefaultIndexName
	}
	return &AnalysisIndex{
		client: client,
		index:  index,
		now:    time.Now,
		logger: log.With(map[string]interface{}{"component": "analysis-index"}),
	}
}

// Index stores doc under <userID>-<unixnano> and returns that ID.
func (x *AnalysisIndex) Index(ctx context.Context, userID string, doc nlu.AnalysisDocument) (string, error) {
	body, err := json.Marshal(IndexedAnalysis{UserID: userID, AnalysisDocument: doc})
	if err != nil {
		return "", fmt.Errorf("%w: encode: %v", ErrAnalysisIndexFailed, err)
	}

	id := fmt.Sprintf("%s-%d", userID, x.now().UnixNano())
	req := esapi.IndexRequest{
		Index:      x.index,
		DocumentID: id,
		Body:       bytes.NewReader(body),
	}

	res, err := req.Do(ctx, x.client)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAnalysisIndexFailed, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return "", fmt.Errorf("%w: index request failed: %s", ErrAnalysisIndexFailed, res.Status())
	}

	x.logger.Debug("analysis indexed", map[string]interface{}{"userId": userID, "documentId": id})
	return id, nil
}

// SearchByIntent returns the most recent analyses carrying intent.
func (x *AnalysisIndex) SearchByIntent(ctx context.Context, intent string, size int) ([]IndexedAnalysis, error) {
	if size < 1 || size > maxSearchSize {
		size = 20
	}

	query := map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{"intents.name.keyword": intent},
		},
		"sort": []interface{}{
			map[string]interface{}{"timestamp": map[string]interface{}{"order": "desc"}},
		},
	}
	body, _ := json.Marshal(query)

	req := esapi.SearchRequest{
		Index: []string{x.index},
		Body:  bytes.NewReader(body),
		Size:  &size,
	}

	res, err := req.Do(ctx, x.client)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAnalysisIndexFailed, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("%w: search failed: %s", ErrAnalysisIndexFailed, res.Status())
	}

	var r struct {
		Hits struct {
			Hits []struct {
				Source IndexedAnalysis `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrAnalysisIndexFailed, err)
	}

	out := make([]IndexedAnalysis, 0, len(r.Hits.Hits))
	for _, h := range r.Hits.Hits {
		out = append(out, h.Source)
	}
	return out, nil
}
