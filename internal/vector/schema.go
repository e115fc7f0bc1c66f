package vector

import (
	"context"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

// SchemaClient is the narrow slice of the Weaviate API that EnsureSchema
// needs. Tests substitute it; production code obtains one from
// NewSchemaClient.
type SchemaClient interface {
	ClassExists(ctx context.Context, className string) (bool, error)
	CreateClass(ctx context.Context, class *models.Class) error
	GetClass(ctx context.Context, className string) (*models.Class, error)
	AddProperty(ctx context.Context, className string, property *models.Property) error
}

// NewSchemaClient adapts a weaviate.Client to the SchemaClient surface.
func NewSchemaClient(client *weaviate.Client) SchemaClient {
	return &weaviateSchemaClient{client: client}
}

type weaviateSchemaClient struct {
	client *weaviate.Client
}

func (c *weaviateSchemaClient) ClassExists(ctx context.Context, className string) (bool, error) {
	return c.client.Schema().ClassExistenceChecker().WithClassName(className).Do(ctx)
}

func (c *weaviateSchemaClient) CreateClass(ctx context.Context, class *models.Class) error {
	return c.client.Schema().ClassCreator().WithClass(class).Do(ctx)
}

func (c *weaviateSchemaClient) GetClass(ctx context.Context, className string) (*models.Class, error) {
	return c.client.Schema().ClassGetter().WithClassName(className).Do(ctx)
}

func (c *weaviateSchemaClient) AddProperty(ctx context.Context, className string, property *models.Property) error {
	return c.client.Schema().PropertyCreator().WithClassName(className).WithProperty(property).Do(ctx)
}

// EnsureSchema idempotently guarantees the chunk collection exists with the
// required property set and a cosine distance metric. Creating a class and
// finding it already present are both success; existing classes get any
// missing properties backfilled.
func EnsureSchema(ctx context.Context, client SchemaClient, className string) error {
	exists, err := client.ClassExists(ctx, className)
	if err != nil {
		return err
	}

	properties := []*models.Property{
		{
			Name:     "content",
			DataType: []string{"text"},
		},
		{
			Name:         "source_filename",
			DataType:     []string{"text"},
			Tokenization: "field", // exact match
		},
		{
			Name:     "chunk_index",
			DataType: []string{"int"},
		},
		{
			Name:         "doc_id",
			DataType:     []string{"text"},
			Tokenization: "field", // UUID, exact match
		},
		{
			Name:     "author",
			DataType: []string{"text"},
		},
		{
			Name:     "creation_date",
			DataType: []string{"date"},
		},
		{
			Name:     "modification_date",
			DataType: []string{"date"},
		},
	}

	if !exists {
		class := &models.Class{
			Class:       className,
			Description: "A chunk of an ingested document with its embedding",
			Vectorizer:  "none", // vectors are computed upstream
			VectorIndexConfig: map[string]interface{}{
				"distance": "cosine",
			},
			Properties: properties,
		}
		return client.CreateClass(ctx, class)
	}

	// Class exists, check for missing properties
	class, err := client.GetClass(ctx, className)
	if err != nil {
		return err
	}

	existingProps := make(map[string]bool)
	for _, p := range class.Properties {
		existingProps[p.Name] = true
	}

	for _, p := range properties {
		if !existingProps[p.Name] {
			if err := client.AddProperty(ctx, className, p); err != nil {
				return err
			}
		}
	}

	return nil
}
