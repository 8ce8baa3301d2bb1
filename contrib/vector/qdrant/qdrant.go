// Package qdrant serves index generations from Qdrant, one collection per generation.
package qdrant

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/qdrant/go-client/qdrant"
	"github.com/sweetpotato0/travel-router/vector"
)

const upsertBatch = 256

// Config holds Qdrant connection settings.
type Config struct {
	URL              string // e.g. "http://localhost:6333"
	APIKey           string
	CollectionPrefix string // default: policies
}

// Engine implements vector.Engine on Qdrant.
type Engine struct {
	client *qdrant.Client
	prefix string
}

// ParseURL maps a REST URL onto the gRPC host, port and TLS flag the client needs.
// The REST port 6333 is translated to the gRPC port 6334.
func ParseURL(rawURL string) (host string, port int, useTLS bool, err error) {
	u, parseErr := url.Parse(rawURL)
	if parseErr != nil || u.Host == "" {
		return "", 0, false, fmt.Errorf("qdrant: invalid URL: %q", rawURL)
	}
	useTLS = u.Scheme == "https"
	host = u.Hostname()
	port = 6334
	if portStr := u.Port(); portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return "", 0, false, fmt.Errorf("qdrant: invalid port %q", portStr)
		}
		if p != 6333 {
			port = p
		}
	}
	return host, port, useTLS, nil
}

// New connects to Qdrant.
func New(cfg Config) (*Engine, error) {
	host, port, useTLS, err := ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: connect to %s:%d: %w", host, port, err)
	}
	prefix := cfg.CollectionPrefix
	if prefix == "" {
		prefix = "policies"
	}
	return &Engine{client: client, prefix: prefix}, nil
}

func (e *Engine) Name() string { return "qdrant" }

// Collection returns the collection name backing a generation.
func (e *Engine) Collection(generation string) string {
	return e.prefix + "_" + generation
}

// Create makes a fresh collection and uploads vectors with their positions as point ids.
func (e *Engine) Create(ctx context.Context, generation string, vectors [][]float32) error {
	if len(vectors) == 0 {
		return fmt.Errorf("qdrant: no vectors")
	}
	name := e.Collection(generation)

	exists, err := e.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("qdrant: check collection exists: %w", err)
	}
	if exists {
		// left over from a failed attempt
		if err := e.client.DeleteCollection(ctx, name); err != nil {
			return fmt.Errorf("qdrant: reset collection %q: %w", name, err)
		}
	}

	err = e.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(len(vectors[0])), //nolint:gosec
			Distance: qdrant.Distance_Euclid,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: create collection %q: %w", name, err)
	}

	for start := 0; start < len(vectors); start += upsertBatch {
		end := min(start+upsertBatch, len(vectors))
		points := make([]*qdrant.PointStruct, 0, end-start)
		for id := start; id < end; id++ {
			points = append(points, &qdrant.PointStruct{
				Id:      qdrant.NewIDNum(uint64(id)), //nolint:gosec
				Vectors: qdrant.NewVectorsDense(vectors[id]),
			})
		}
		_, err := e.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: name,
			Wait:           qdrant.PtrOf(true),
			Points:         points,
		})
		if err != nil {
			return fmt.Errorf("qdrant: upsert into %q: %w", name, err)
		}
	}
	return nil
}

// Search returns the k nearest points. With Euclid distance Qdrant reports the distance as score.
func (e *Engine) Search(ctx context.Context, generation string, query []float32, k int) ([]vector.Hit, error) {
	if k <= 0 {
		k = 3
	}
	limit := uint64(k) //nolint:gosec
	scored, err := e.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: e.Collection(generation),
		Query:          qdrant.NewQueryDense(query),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(false),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: query: %w", err)
	}

	hits := make([]vector.Hit, 0, len(scored))
	for _, sp := range scored {
		hits = append(hits, vector.Hit{ID: int(sp.GetId().GetNum()), Distance: sp.GetScore()}) //nolint:gosec
	}
	return hits, nil
}

// Drop deletes the generation's collection.
func (e *Engine) Drop(ctx context.Context, generation string) error {
	if err := e.client.DeleteCollection(ctx, e.Collection(generation)); err != nil {
		return fmt.Errorf("qdrant: delete collection: %w", err)
	}
	return nil
}

// Close releases the gRPC connection.
func (e *Engine) Close() error {
	return e.client.Close()
}
