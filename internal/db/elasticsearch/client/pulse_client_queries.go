package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pulselog/pulselog/internal/db/elasticsearch/model"
)

func (c *PulseClientImpl) Search(
	ctx context.Context,
	query string,
	indices []string,
	queryResultSize *int,
) ([]map[string]interface{}, error) {
	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(indices...),
		c.es.Search.WithBody(strings.NewReader(query)),
		c.es.Search.WithSize(getQuerySize(queryResultSize)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("failed to execute query: %s", res.String())
	}

	var esResponse model.EsResponse
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}

	var results []map[string]interface{}
	for _, hit := range esResponse.Hits.HitArray {
		results = append(results, hit.Source)
		results[len(results)-1]["_id"] = hit.ID
	}
	return results, nil
}

func (c *PulseClientImpl) Count(
	ctx context.Context,
	query string,
	indices []string,
) (int64, error) {
	res, err := c.es.Count(
		c.es.Count.WithContext(ctx),
		c.es.Count.WithIndex(indices...),
		c.es.Count.WithBody(strings.NewReader(query)),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to execute count query: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return 0, fmt.Errorf("failed to execute count query: %s", res.String())
	}

	var countResponse model.CountResponse
	if err := json.NewDecoder(res.Body).Decode(&countResponse); err != nil {
		return 0, fmt.Errorf("failed to decode count response body: %w", err)
	}
	return countResponse.Count, nil
}

func (c *PulseClientImpl) KnnSearch(
	ctx context.Context,
	index string,
	field string,
	vector []float32,
	topK int,
	filter map[string]interface{},
) ([]VectorHit, error) {
	knn := map[string]interface{}{
		"field":          field,
		"query_vector":   vector,
		"k":              topK,
		"num_candidates": topK * 10,
	}
	if filter != nil {
		knn["filter"] = filter
	}
	body, err := json.Marshal(map[string]interface{}{"knn": knn})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal knn query: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(index),
		c.es.Search.WithBody(bytes.NewReader(body)),
		c.es.Search.WithSize(topK),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to execute knn query: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("failed to execute knn query: %s", res.String())
	}

	var esResponse model.EsResponse
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("failed to decode knn response body: %w", err)
	}

	hits := make([]VectorHit, 0, len(esResponse.Hits.HitArray))
	for _, hit := range esResponse.Hits.HitArray {
		hits = append(hits, VectorHit{
			Id:       hit.ID,
			Score:    hit.Score,
			Metadata: hit.Source,
		})
	}
	return hits, nil
}

func getQuerySize(queryResultSize *int) int {
	if queryResultSize == nil || *queryResultSize < 0 {
		return SearchResultSize
	}
	return *queryResultSize
}
