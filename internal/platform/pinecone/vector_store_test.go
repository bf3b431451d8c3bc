package pinecone

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meravakil/meravakil-backend/internal/platform/logger"
)

func TestQueryMatchesSendsNamespaceAndReturnsMetadata(t *testing.T) {
	var got QueryRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/query", r.URL.Path)
		assert.Equal(t, "pc-key", r.Header.Get("Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"matches":[
			{"id":"a","score":0.91,"metadata":{"text":"Section 21 of the Karnataka Rent Act","source":"rent.pdf"}},
			{"id":"","score":0.5},
			{"id":"b","score":0.42,"metadata":{"text":"  "}}
		]}`))
	}))
	defer srv.Close()

	pc, err := New(logger.Nop(), Config{APIKey: "pc-key"})
	require.NoError(t, err)
	vs, err := NewVectorStore(context.Background(), logger.Nop(), pc, StoreConfig{IndexHost: srv.URL, NamespacePrefix: "mv"})
	require.NoError(t, err)

	matches, err := vs.QueryMatches(context.Background(), "legal", []float32{0.1, 0.2}, 3, nil)
	require.NoError(t, err)

	assert.Equal(t, "mv:legal", got.Namespace)
	assert.Equal(t, 3, got.TopK)
	assert.True(t, got.IncludeMetadata)
	require.Len(t, matches, 2)
	assert.Equal(t, "Section 21 of the Karnataka Rent Act", matches[0].Text("text"))
	assert.Equal(t, "", matches[1].Text("text"))
}

func TestClientRetriesRetryableStatus(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"upsertedCount":1}`))
	}))
	defer srv.Close()

	pc, err := New(logger.Nop(), Config{APIKey: "k", MaxRetries: 2})
	require.NoError(t, err)
	resp, err := pc.UpsertVectors(context.Background(), srv.URL, UpsertRequest{Vectors: []Vector{{ID: "x", Values: []float32{1}}}})
	require.NoError(t, err)
	assert.EqualValues(t, 1, resp.UpsertedCount)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestClientSurfacesClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"dimension mismatch"}`))
	}))
	defer srv.Close()

	pc, err := New(logger.Nop(), Config{APIKey: "k", MaxRetries: 3})
	require.NoError(t, err)
	_, err = pc.Query(context.Background(), srv.URL, QueryRequest{Vector: []float32{1}})
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadRequest, httpErr.StatusCode)
}

func TestDescribeIndexResolvesHost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/indexes/legal-docs", r.URL.Path)
		_, _ = w.Write([]byte(`{"name":"legal-docs","host":"legal-docs-abc.svc.pinecone.io","dimension":1536}`))
	}))
	defer srv.Close()

	pc, err := New(logger.Nop(), Config{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)
	desc, err := pc.DescribeIndex(context.Background(), "legal-docs")
	require.NoError(t, err)
	assert.Equal(t, "legal-docs-abc.svc.pinecone.io", desc.Host)
}

func TestQualifyNamespace(t *testing.T) {
	s := &vectorStore{}
	assert.Equal(t, "legal", s.qualifyNamespace("legal"))
	s.nsPrefix = "mv"
	assert.Equal(t, "mv", s.qualifyNamespace(""))
	assert.Equal(t, "mv:legal", s.qualifyNamespace(" legal "))
}

func TestListIDsFollowsPagination(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/vectors/list", r.URL.Path)
		assert.Equal(t, "mv:legal", r.URL.Query().Get("namespace"))
		assert.Equal(t, "abc#", r.URL.Query().Get("prefix"))
		if atomic.AddInt32(&calls, 1) == 1 {
			assert.Empty(t, r.URL.Query().Get("paginationToken"))
			_, _ = w.Write([]byte(`{"vectors":[{"id":"abc#0"},{"id":"abc#1"}],"pagination":{"next":"tok-2"}}`))
			return
		}
		assert.Equal(t, "tok-2", r.URL.Query().Get("paginationToken"))
		_, _ = w.Write([]byte(`{"vectors":[{"id":"abc#2"}]}`))
	}))
	defer srv.Close()

	pc, err := New(logger.Nop(), Config{APIKey: "k"})
	require.NoError(t, err)
	vs, err := NewVectorStore(context.Background(), logger.Nop(), pc, StoreConfig{IndexHost: srv.URL, NamespacePrefix: "mv"})
	require.NoError(t, err)

	ids, err := vs.ListIDs(context.Background(), "legal", "abc#")
	require.NoError(t, err)
	assert.Equal(t, []string{"abc#0", "abc#1", "abc#2"}, ids)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}
