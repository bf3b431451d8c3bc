package app

import (
	"context"
	"time"

	"github.com/meravakil/meravakil-backend/internal/observability"
	"github.com/meravakil/meravakil-backend/internal/platform/pinecone"
)

// Operation labels follow the Pinecone data-plane endpoint each call hits.
const (
	opUpsert = "vectors_upsert"
	opQuery  = "query"
	opDelete = "vectors_delete"
	opList   = "vectors_list"
)

// instrumentedVectorStore reports latency, status and payload size of every
// index call made by the assistant and the ingester.
type instrumentedVectorStore struct {
	provider string
	inner    pinecone.VectorStore
	metrics  *observability.Metrics
}

func instrumentVectorStore(provider string, inner pinecone.VectorStore, m *observability.Metrics) pinecone.VectorStore {
	if inner == nil {
		return nil
	}
	return &instrumentedVectorStore{provider: provider, inner: inner, metrics: m}
}

func (s *instrumentedVectorStore) Upsert(ctx context.Context, namespace string, vectors []pinecone.Vector) error {
	start := time.Now()
	err := s.inner.Upsert(ctx, namespace, vectors)
	s.observe(opUpsert, len(vectors), err, start)
	return err
}

func (s *instrumentedVectorStore) QueryMatches(ctx context.Context, namespace string, q []float32, topK int, filter map[string]any) ([]pinecone.VectorMatch, error) {
	start := time.Now()
	out, err := s.inner.QueryMatches(ctx, namespace, q, topK, filter)
	s.observe(opQuery, len(out), err, start)
	return out, err
}

func (s *instrumentedVectorStore) DeleteIDs(ctx context.Context, namespace string, ids []string) error {
	start := time.Now()
	err := s.inner.DeleteIDs(ctx, namespace, ids)
	s.observe(opDelete, len(ids), err, start)
	return err
}

func (s *instrumentedVectorStore) ListIDs(ctx context.Context, namespace, prefix string) ([]string, error) {
	start := time.Now()
	out, err := s.inner.ListIDs(ctx, namespace, prefix)
	s.observe(opList, len(out), err, start)
	return out, err
}

func (s *instrumentedVectorStore) observe(operation string, items int, err error, start time.Time) {
	if s.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.ObserveVectorStoreOperation(s.provider, operation, status, items, time.Since(start))
}
