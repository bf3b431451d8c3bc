package pinecone

import (
	"context"
	"fmt"
	"strings"

	"github.com/sony/gobreaker"

	"github.com/meravakil/meravakil-backend/internal/platform/logger"
	"github.com/meravakil/meravakil-backend/internal/platform/resilience"
)

type VectorStore interface {
	Upsert(ctx context.Context, namespace string, vectors []Vector) error
	// QueryMatches returns matches with their similarity scores (higher is
	// better) and metadata.
	QueryMatches(ctx context.Context, namespace string, q []float32, topK int, filter map[string]any) ([]VectorMatch, error)
	DeleteIDs(ctx context.Context, namespace string, ids []string) error
	// ListIDs returns every vector id in namespace that starts with prefix.
	ListIDs(ctx context.Context, namespace, prefix string) ([]string, error)
}

type VectorMatch struct {
	ID       string
	Score    float64
	Metadata map[string]any
}

// Text returns the string stored under field, or "".
func (m VectorMatch) Text(field string) string {
	if m.Metadata == nil {
		return ""
	}
	s, _ := m.Metadata[field].(string)
	return strings.TrimSpace(s)
}

type StoreConfig struct {
	IndexName string
	IndexHost string
	// NamespacePrefix is prepended to every namespace ("" keeps names as-is).
	NamespacePrefix string
	Breaker         resilience.BreakerConfig
}

type vectorStore struct {
	log      *logger.Logger
	pc       Client
	host     string
	nsPrefix string
	breaker  *gobreaker.CircuitBreaker
}

func NewVectorStore(ctx context.Context, log *logger.Logger, pc Client, cfg StoreConfig) (VectorStore, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if pc == nil {
		return nil, fmt.Errorf("pinecone client required")
	}
	host := strings.TrimSpace(cfg.IndexHost)
	if host == "" {
		indexName := strings.TrimSpace(cfg.IndexName)
		if indexName == "" {
			return nil, fmt.Errorf("missing PINECONE_INDEX_HOST or PINECONE_INDEX_NAME")
		}
		// Resolving through describe_index costs a control-plane call per boot.
		desc, err := pc.DescribeIndex(ctx, indexName)
		if err != nil {
			return nil, err
		}
		host = strings.TrimSpace(desc.Host)
		log.Warn("PINECONE_INDEX_HOST not set; resolved via describe_index",
			"index_name", indexName,
			"index_host", host,
		)
	}

	storeLog := log.With("service", "PineconeVectorStore")
	return &vectorStore{
		log:      storeLog,
		pc:       pc,
		host:     host,
		nsPrefix: strings.TrimSpace(cfg.NamespacePrefix),
		breaker:  resilience.NewBreaker("pinecone", cfg.Breaker, storeLog, nil),
	}, nil
}

func (s *vectorStore) Upsert(ctx context.Context, namespace string, vectors []Vector) error {
	if len(vectors) == 0 {
		return nil
	}
	ns := s.qualifyNamespace(namespace)
	_, err := resilience.Call(s.breaker, func() (*UpsertResponse, error) {
		return s.pc.UpsertVectors(ctx, s.host, UpsertRequest{Namespace: ns, Vectors: vectors})
	})
	return err
}

func (s *vectorStore) QueryMatches(ctx context.Context, namespace string, q []float32, topK int, filter map[string]any) ([]VectorMatch, error) {
	ns := s.qualifyNamespace(namespace)
	resp, err := resilience.Call(s.breaker, func() (*QueryResponse, error) {
		return s.pc.Query(ctx, s.host, QueryRequest{
			Namespace:       ns,
			Vector:          q,
			TopK:            topK,
			Filter:          filter,
			IncludeMetadata: true,
		})
	})
	if err != nil {
		return nil, err
	}
	out := make([]VectorMatch, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		if strings.TrimSpace(m.ID) == "" {
			continue
		}
		out = append(out, VectorMatch{ID: m.ID, Score: m.Score, Metadata: m.Metadata})
	}
	return out, nil
}

func (s *vectorStore) DeleteIDs(ctx context.Context, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	ns := s.qualifyNamespace(namespace)
	_, err := resilience.Call(s.breaker, func() (struct{}, error) {
		return struct{}{}, s.pc.DeleteVectors(ctx, s.host, DeleteRequest{Namespace: ns, IDs: ids})
	})
	return err
}

// listPageSize is the largest page /vectors/list serves.
const listPageSize = 100

func (s *vectorStore) ListIDs(ctx context.Context, namespace, prefix string) ([]string, error) {
	ns := s.qualifyNamespace(namespace)
	var (
		out   []string
		token string
	)
	for {
		req := ListRequest{Namespace: ns, Prefix: prefix, Limit: listPageSize, PaginationToken: token}
		page, err := resilience.Call(s.breaker, func() (*ListResponse, error) {
			return s.pc.ListVectors(ctx, s.host, req)
		})
		if err != nil {
			return nil, err
		}
		for _, v := range page.Vectors {
			if v.ID != "" {
				out = append(out, v.ID)
			}
		}
		token = page.NextToken()
		if token == "" {
			return out, nil
		}
	}
}

func (s *vectorStore) qualifyNamespace(ns string) string {
	ns = strings.TrimSpace(ns)
	switch {
	case s.nsPrefix == "":
		return ns
	case ns == "":
		return s.nsPrefix
	default:
		return s.nsPrefix + ":" + ns
	}
}
