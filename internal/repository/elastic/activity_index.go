package elastic

import (
	"context"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8/esapi"
	"go.uber.org/zap"

	"family-safety-score/internal/models"
	"family-safety-score/internal/store"
)

// Client is the subset of client.ESClient the index needs.
type Client interface {
	EnsureIndex(ctx context.Context, index, mapping string) error
	IndexDocument(ctx context.Context, index, id string, document interface{}) (*esapi.Response, error)
	Search(ctx context.Context, index string, query map[string]interface{}) (*esapi.Response, error)
	ParseResponse(res *esapi.Response, target interface{}) error
}

const activityMapping = `{
  "mappings": {
    "properties": {
      "id":          {"type": "keyword"},
      "user_id":     {"type": "keyword"},
      "type":        {"type": "keyword"},
      "points":      {"type": "integer"},
      "description": {"type": "text"},
      "metadata":    {"type": "flattened"},
      "created_at":  {"type": "date"}
    }
  }
}`

// ActivityIndex mirrors the activity log into Elasticsearch for full text search.
type ActivityIndex struct {
	client Client
	index  string
	logger *zap.Logger
}

func NewActivityIndex(client Client, index string, logger *zap.Logger) *ActivityIndex {
	return &ActivityIndex{client: client, index: index, logger: logger}
}

var (
	_ store.ActivitySink     = (*ActivityIndex)(nil)
	_ store.ActivitySearcher = (*ActivityIndex)(nil)
)

func (a *ActivityIndex) EnsureIndex(ctx context.Context) error {
	return a.client.EnsureIndex(ctx, a.index, activityMapping)
}

func (a *ActivityIndex) IndexActivity(ctx context.Context, activity *models.ActivityRecord) error {
	res, err := a.client.IndexDocument(ctx, a.index, activity.ID, activity)
	if err != nil {
		return fmt.Errorf("index activity: %w: %v", store.ErrUnavailable, err)
	}
	if err := a.client.ParseResponse(res, nil); err != nil {
		return fmt.Errorf("index activity: %w: %v", store.ErrUnavailable, err)
	}
	return nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source models.ActivityRecord `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// SearchActivities runs a full text query over a user's activity
// descriptions and types, newest first. An empty query lists recent entries.
func (a *ActivityIndex) SearchActivities(ctx context.Context, userID, query string, limit int) ([]models.ActivityRecord, error) {
	if limit <= 0 {
		return nil, &store.ValidationError{Field: "limit", Reason: "must be positive"}
	}

	res, err := a.client.Search(ctx, a.index, searchQuery(userID, query, limit))
	if err != nil {
		return nil, fmt.Errorf("search activities: %w: %v", store.ErrUnavailable, err)
	}
	var body searchResponse
	if err := a.client.ParseResponse(res, &body); err != nil {
		return nil, fmt.Errorf("search activities: %w: %v", store.ErrUnavailable, err)
	}

	out := make([]models.ActivityRecord, 0, len(body.Hits.Hits))
	for _, hit := range body.Hits.Hits {
		out = append(out, hit.Source)
	}
	return out, nil
}

func searchQuery(userID, query string, limit int) map[string]interface{} {
	boolQuery := map[string]interface{}{
		"filter": []interface{}{
			map[string]interface{}{"term": map[string]interface{}{"user_id": userID}},
		},
	}
	if query != "" {
		boolQuery["must"] = []interface{}{
			map[string]interface{}{
				"multi_match": map[string]interface{}{
					"query":  query,
					"fields": []string{"description", "type"},
				},
			},
		}
	}
	return map[string]interface{}{
		"size":  limit,
		"query": map[string]interface{}{"bool": boolQuery},
		"sort": []interface{}{
			map[string]interface{}{"created_at": map[string]interface{}{"order": "desc"}},
		},
	}
}
