package search

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/jobboard/internal/model"
)

type recordedRequest struct {
	method string
	path   string
	query  string
	body   string
}

// fakeCluster はElasticsearchのREST APIを模したテスト用サーバー。
type fakeCluster struct {
	mu       sync.Mutex
	requests []recordedRequest
	handle   func(w http.ResponseWriter, r *http.Request)
}

func newFakeCluster(t *testing.T, handle func(w http.ResponseWriter, r *http.Request)) (*fakeCluster, *ElasticJobIndex) {
	t.Helper()
	fc := &fakeCluster{handle: handle}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		fc.mu.Lock()
		fc.requests = append(fc.requests, recordedRequest{method: r.Method, path: r.URL.Path, query: r.URL.RawQuery, body: string(body)})
		fc.mu.Unlock()
		// v8クライアントは応答ヘッダーで製品を確認する
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		fc.handle(w, r)
	}))
	t.Cleanup(srv.Close)

	idx, err := NewElasticJobIndex(Config{Addresses: []string{srv.URL}, Index: "jobs-test"})
	require.NoError(t, err)
	return fc, idx
}

func (fc *fakeCluster) last() recordedRequest {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.requests[len(fc.requests)-1]
}

func TestElasticJobIndex_Index(t *testing.T) {
	fc, idx := newFakeCluster(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"result":"created"}`)
	})

	job := &model.JobPosting{
		ID:        "job-1",
		OwnerID:   "acme",
		Title:     "Go Engineer",
		Company:   "Acme",
		IsActive:  true,
		CreatedAt: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, idx.Index(context.Background(), job))

	req := fc.last()
	assert.Equal(t, http.MethodPut, req.method)
	assert.Equal(t, "/jobs-test/_doc/job-1", req.path)

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(req.body), &doc))
	assert.Equal(t, "Go Engineer", doc["title"])
	assert.Equal(t, true, doc["is_active"])
	assert.Equal(t, "acme", doc["owner_id"])
}

func TestElasticJobIndex_Search(t *testing.T) {
	fc, idx := newFakeCluster(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"hits":{"total":{"value":2},"hits":[{"_id":"job-2"},{"_id":"job-1"}]}}`)
	})

	ids, err := idx.Search(context.Background(), model.JobQuery{Keyword: " golang ", Offset: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"job-2", "job-1"}, ids)

	req := fc.last()
	assert.Equal(t, "/jobs-test/_search", req.path)
	assert.Contains(t, req.query, "from=10")
	assert.Contains(t, req.query, "size=20")
	assert.Contains(t, req.body, `"query":"golang"`)
	assert.Contains(t, req.body, `"is_active":true`)
}

func TestElasticJobIndex_SearchError(t *testing.T) {
	_, idx := newFakeCluster(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"type":"parsing_exception"}}`)
	})

	_, err := idx.Search(context.Background(), model.JobQuery{Keyword: "go"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing_exception")
}

func TestElasticJobIndex_RemoveMissing(t *testing.T) {
	_, idx := newFakeCluster(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"result":"not_found"}`)
	})

	assert.NoError(t, idx.Remove(context.Background(), "job-404"))
}

func TestElasticJobIndex_EnsureIndex(t *testing.T) {
	fc, idx := newFakeCluster(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, `{"acknowledged":true}`)
	})

	require.NoError(t, idx.EnsureIndex(context.Background()))
	req := fc.last()
	assert.Equal(t, http.MethodPut, req.method)
	assert.Equal(t, "/jobs-test", req.path)
	assert.True(t, strings.Contains(req.body, `"owner_id"`))
}

func TestBuildQuery_NoKeyword(t *testing.T) {
	body, err := json.Marshal(buildQuery(model.JobQuery{}))
	require.NoError(t, err)
	assert.Contains(t, string(body), "match_all")
	assert.NotContains(t, string(body), "multi_match")
}
