// Package search はElasticsearchによる求人の全文検索インデックスを提供する。
// インデックスは検索結果のID列のみを返し、求人本体はデータベースから読み直す。
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/hitoshi/jobboard/internal/model"
)

// DefaultIndex は求人インデックスの既定名。
const DefaultIndex = "jobs"

const defaultSize = 20

const indexMapping = `{
  "mappings": {
    "properties": {
      "title":       {"type": "text"},
      "company":     {"type": "text"},
      "description": {"type": "text"},
      "location":    {"type": "text"},
      "owner_id":    {"type": "keyword"},
      "is_active":   {"type": "boolean"},
      "created_at":  {"type": "date"}
    }
  }
}`

// Config はElasticsearch接続の設定。
type Config struct {
	Addresses []string
	Username  string
	Password  string
	Index     string
}

// ElasticJobIndex は求人をElasticsearchに索引付けし、キーワード検索する。
type ElasticJobIndex struct {
	client *elasticsearch.Client
	index  string
}

// NewElasticJobIndex はクライアントを生成する。接続確認は行わない。
func NewElasticJobIndex(cfg Config) (*ElasticJobIndex, error) {
	esCfg := elasticsearch.Config{Addresses: cfg.Addresses}
	if cfg.Username != "" {
		esCfg.Username = cfg.Username
		esCfg.Password = cfg.Password
	}
	client, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	index := cfg.Index
	if index == "" {
		index = DefaultIndex
	}
	return &ElasticJobIndex{client: client, index: index}, nil
}

// Ping は接続を確認する。
func (x *ElasticJobIndex) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	res, err := x.client.Ping(x.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch ping failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch ping error: %s", res.Status())
	}
	return nil
}

// EnsureIndex はインデックスがなければマッピング付きで作成する。
func (x *ElasticJobIndex) EnsureIndex(ctx context.Context) error {
	res, err := esapi.IndicesExistsRequest{Index: []string{x.index}}.Do(ctx, x.client)
	if err != nil {
		return fmt.Errorf("failed to check index: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == 200 {
		return nil
	}

	res, err = esapi.IndicesCreateRequest{Index: x.index, Body: strings.NewReader(indexMapping)}.Do(ctx, x.client)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return responseError("create index", res)
	}
	return nil
}

type document struct {
	Title       string    `json:"title"`
	Company     string    `json:"company"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	OwnerID     string    `json:"owner_id"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// Index は求人を登録または上書きする。
func (x *ElasticJobIndex) Index(ctx context.Context, job *model.JobPosting) error {
	body, err := json.Marshal(document{
		Title:       job.Title,
		Company:     job.Company,
		Description: job.Description,
		Location:    job.Location,
		OwnerID:     job.OwnerID,
		IsActive:    job.IsActive,
		CreatedAt:   job.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}
	res, err := esapi.IndexRequest{
		Index:      x.index,
		DocumentID: job.ID,
		Body:       bytes.NewReader(body),
	}.Do(ctx, x.client)
	if err != nil {
		return fmt.Errorf("failed to index job: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return responseError("index job", res)
	}
	return nil
}

// Remove は求人をインデックスから削除する。存在しない場合も成功とする。
func (x *ElasticJobIndex) Remove(ctx context.Context, jobID string) error {
	res, err := esapi.DeleteRequest{Index: x.index, DocumentID: jobID}.Do(ctx, x.client)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != 404 {
		return responseError("delete job", res)
	}
	return nil
}

// Search は掲載中の求人をキーワードで検索し、IDを関連度順（同点は新しい順）で返す。
func (x *ElasticJobIndex) Search(ctx context.Context, q model.JobQuery) ([]string, error) {
	body, err := json.Marshal(buildQuery(q))
	if err != nil {
		return nil, fmt.Errorf("failed to encode query: %w", err)
	}
	from, size := q.Offset, q.Limit
	if size <= 0 {
		size = defaultSize
	}
	res, err := esapi.SearchRequest{
		Index: []string{x.index},
		Body:  bytes.NewReader(body),
		From:  &from,
		Size:  &size,
	}.Do(ctx, x.client)
	if err != nil {
		return nil, fmt.Errorf("failed to search jobs: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, responseError("search jobs", res)
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				ID string `json:"_id"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	ids := make([]string, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		ids = append(ids, h.ID)
	}
	return ids, nil
}

func buildQuery(q model.JobQuery) map[string]any {
	filter := []any{map[string]any{"term": map[string]any{"is_active": true}}}
	var must []any
	if kw := strings.TrimSpace(q.Keyword); kw != "" {
		must = append(must, map[string]any{
			"multi_match": map[string]any{
				"query":  kw,
				"fields": []string{"title^3", "company^2", "description", "location"},
				"type":   "best_fields",
			},
		})
	} else {
		must = append(must, map[string]any{"match_all": map[string]any{}})
	}
	return map[string]any{
		"query": map[string]any{
			"bool": map[string]any{"must": must, "filter": filter},
		},
		"sort": []any{"_score", map[string]any{"created_at": map[string]any{"order": "desc"}}},
	}
}

func responseError(op string, res *esapi.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
	return fmt.Errorf("elasticsearch %s failed: %s: %s", op, res.Status(), strings.TrimSpace(string(msg)))
}
