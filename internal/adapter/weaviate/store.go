package weaviate

import (
	"context"
	"fmt"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"

	"ragstore/features/document"
	"ragstore/internal/retrieval"
	"ragstore/internal/vector"
)

// Store mirrors persisted fragments into Weaviate and serves the native
// nearest-neighbor retrieval strategy.
type Store struct {
	client *weaviate.Client
}

func NewStore(client *weaviate.Client) *Store {
	return &Store{client: client}
}

func (s *Store) StoreFragment(ctx context.Context, frag document.Fragment, documentName, scopeID string) error {
	_, err := s.client.Data().Creator().
		WithClassName(vector.ClassFragment).
		WithProperties(map[string]interface{}{
			"content":      frag.Content,
			"documentId":   frag.DocumentID,
			"documentName": documentName,
			"scopeId":      scopeID,
			"orderIndex":   frag.OrderIndex,
			"tokenCount":   frag.TokenCount,
		}).
		WithVector(frag.Embedding).
		Do(ctx)
	return err
}

func (s *Store) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(vector.ClassFragment).
		WithOutput("minimal").
		WithWhere(filters.Where().
			WithPath([]string{"documentId"}).
			WithOperator(filters.Equal).
			WithValueString(documentID)).
		Do(ctx)
	return err
}

// NearestNeighbors runs a cosine-distance nearVector query scoped to one
// collection and restricted to the given (completed) document ids. Results
// come back ordered by ascending distance.
func (s *Store) NearestNeighbors(ctx context.Context, scopeID string, queryVector []float32,
	maxDistance float32, limit int, documentIDs []string) ([]retrieval.RetrievedFragment, error) {

	nearVector := s.client.GraphQL().NearVectorArgBuilder().
		WithVector(queryVector).
		WithDistance(maxDistance)

	where := filters.Where().
		WithOperator(filters.And).
		WithOperands([]*filters.WhereBuilder{
			filters.Where().
				WithPath([]string{"scopeId"}).
				WithOperator(filters.Equal).
				WithValueString(scopeID),
			filters.Where().
				WithPath([]string{"documentId"}).
				WithOperator(filters.ContainsAny).
				WithValueString(documentIDs...),
		})

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "documentId"},
		{Name: "documentName"},
		{Name: "orderIndex"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}}},
	}

	res, err := s.client.GraphQL().Get().
		WithClassName(vector.ClassFragment).
		WithNearVector(nearVector).
		WithWhere(where).
		WithLimit(limit).
		WithFields(fields...).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %v", res.Errors)
	}

	var results []retrieval.RetrievedFragment
	data, ok := res.Data["Get"].(map[string]interface{})
	if !ok {
		return results, nil
	}
	objects, ok := data[vector.ClassFragment].([]interface{})
	if !ok {
		return results, nil
	}

	for _, obj := range objects {
		props, ok := obj.(map[string]interface{})
		if !ok {
			continue
		}
		var rf retrieval.RetrievedFragment
		if content, ok := props["content"].(string); ok {
			rf.Content = content
		}
		if id, ok := props["documentId"].(string); ok {
			rf.DocumentID = id
		}
		if name, ok := props["documentName"].(string); ok {
			rf.DocumentName = name
		}
		if idx, ok := props["orderIndex"].(float64); ok {
			rf.FragmentOrder = int(idx)
		}
		if additional, ok := props["_additional"].(map[string]interface{}); ok {
			if distance, ok := additional["distance"].(float64); ok {
				rf.Similarity = float32(1 - distance)
			}
		}
		results = append(results, rf)
	}
	return results, nil
}
