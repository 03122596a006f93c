package vector

import (
	"context"

	"github.com/weaviate/weaviate/entities/models"
)

// ClassFragment is the Weaviate class holding one object per fragment.
const ClassFragment = "DocumentFragment"

// SchemaClient is the subset of Weaviate schema operations EnsureSchema
// needs.
type SchemaClient interface {
	ClassExists(ctx context.Context, className string) (bool, error)
	CreateClass(ctx context.Context, class *models.Class) error
	GetClass(ctx context.Context, className string) (*models.Class, error)
	AddProperty(ctx context.Context, className string, property *models.Property) error
}

// EnsureSchema creates the fragment class if missing and backfills any
// properties added since the class was first created.
func EnsureSchema(ctx context.Context, client SchemaClient) error {
	exists, err := client.ClassExists(ctx, ClassFragment)
	if err != nil {
		return err
	}

	properties := []*models.Property{
		{
			Name:     "content",
			DataType: []string{"text"},
		},
		{
			Name:     "documentId",
			DataType: []string{"string"}, // UUID, exact match
		},
		{
			Name:     "documentName",
			DataType: []string{"text"},
		},
		{
			Name:     "scopeId",
			DataType: []string{"string"},
		},
		{
			Name:     "orderIndex",
			DataType: []string{"int"},
		},
		{
			Name:     "tokenCount",
			DataType: []string{"int"},
		},
	}

	if !exists {
		class := &models.Class{
			Class:       ClassFragment,
			Description: "An embedded fragment of an ingested document",
			Vectorizer:  "none",
			Properties:  properties,
		}
		return client.CreateClass(ctx, class)
	}

	class, err := client.GetClass(ctx, ClassFragment)
	if err != nil {
		return err
	}

	existing := make(map[string]bool)
	for _, p := range class.Properties {
		existing[p.Name] = true
	}
	for _, p := range properties {
		if !existing[p.Name] {
			if err := client.AddProperty(ctx, ClassFragment, p); err != nil {
				return err
			}
		}
	}
	return nil
}
