// internal/memory/vectors.go
package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// VectorStore holds contextual coaching memories in Qdrant so similar game
// situations can recall what advice was given and how it landed.
type VectorStore struct {
	Client         *qdrant.Client
	CollectionName string
}

// NewVectorStore connects to Qdrant and ensures the collection exists.
func NewVectorStore(qdrantURL string, collectionName string, apiKey string) (*VectorStore, error) {
	qdrantURL = strings.TrimPrefix(qdrantURL, "http://")
	qdrantURL = strings.TrimPrefix(qdrantURL, "https://")

	host := qdrantURL
	if idx := strings.Index(qdrantURL, ":"); idx != -1 {
		host = qdrantURL[:idx]
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   6334, // gRPC port
		APIKey: apiKey,
		UseTLS: false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Qdrant client: %w", err)
	}

	s := &VectorStore{
		Client:         client,
		CollectionName: collectionName,
	}
	if err := s.ensureCollection(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ensure collection: %w", err)
	}
	return s, nil
}

func (s *VectorStore) ensureCollection(ctx context.Context) error {
	exists, err := s.Client.CollectionExists(ctx, s.CollectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	// 384 dimensions (all-MiniLM-L6-v2)
	err = s.Client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.CollectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     384,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	indexes := []struct {
		field string
		typ   qdrant.PayloadSchemaType
	}{
		{"steam_id", qdrant.PayloadSchemaType_Keyword},
		{"context", qdrant.PayloadSchemaType_Keyword},
		{"created_at", qdrant.PayloadSchemaType_Integer},
	}
	for _, idx := range indexes {
		fieldType := qdrant.FieldType(idx.typ)
		_, err = s.Client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.CollectionName,
			FieldName:      idx.field,
			FieldType:      &fieldType,
			Wait:           boolPtr(true),
		})
		if err != nil {
			return fmt.Errorf("failed to create index for %s: %w", idx.field, err)
		}
	}
	return nil
}

// Store saves one contextual memory.
func (s *VectorStore) Store(ctx context.Context, steamID, gameContext, text string, embedding []float32) error {
	payload := map[string]*qdrant.Value{
		"steam_id":   qdrant.NewValueString(steamID),
		"context":    qdrant.NewValueString(gameContext),
		"text":       qdrant.NewValueString(text),
		"created_at": qdrant.NewValueInt(time.Now().Unix()),
	}
	point := &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(uuid.New().String()),
		Vectors: qdrant.NewVectors(embedding...),
		Payload: payload,
	}

	_, err := s.Client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.CollectionName,
		Points:         []*qdrant.PointStruct{point},
	})
	return err
}

// Search returns the text of the memories most similar to the query
// embedding, restricted to one player.
func (s *VectorStore) Search(ctx context.Context, steamID string, queryEmbedding []float32, limit int, minScore float64) ([]string, error) {
	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch("steam_id", steamID),
		},
	}

	searchResult, err := s.Client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.CollectionName,
		Query:          qdrant.NewQuery(queryEmbedding...),
		Filter:         filter,
		Limit:          uint64Ptr(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	texts := make([]string, 0, len(searchResult))
	for _, point := range searchResult {
		if float64(point.Score) < minScore {
			continue
		}
		if v, ok := point.Payload["text"]; ok {
			if text := v.GetStringValue(); text != "" {
				texts = append(texts, text)
			}
		}
	}
	return texts, nil
}

func boolPtr(v bool) *bool       { return &v }
func uint64Ptr(v uint64) *uint64 { return &v }
