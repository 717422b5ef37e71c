package opensearch

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"dualstore/internal/domain/record"
	applog "dualstore/internal/platform/log"
)

// Config OpenSearch / Elasticsearch 连接配置
type Config struct {
	URL                string
	Username           string
	Password           string
	Index              string
	InsecureSkipVerify bool
	Timeout            time.Duration
	SearchSize         int // 单次搜索返回上限
}

// Client OpenSearch HTTP 客户端。所有写操作带 refresh=true，写后立即可读。
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	indexName  string
	searchSize int
	newID      func() string
}

// NewClient 创建 OpenSearch 客户端
func NewClient(cfg Config) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // 自签名证书的开发集群
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	size := cfg.SearchSize
	if size <= 0 {
		size = 500
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.URL, "/"),
		username: cfg.Username,
		password: cfg.Password,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		indexName:  cfg.Index,
		searchSize: size,
		newID:      func() string { return uuid.NewString() },
	}
}

// IndexName 当前索引名
func (c *Client) IndexName() string { return c.indexName }

// Ping 检查连通性
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.doRequest(ctx, http.MethodGet, "/", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return record.Unavailable(record.StoreSearch, fmt.Errorf("status %d", resp.StatusCode))
	}
	return nil
}

// EnsureIndex 确保索引存在，如不存在则创建
func (c *Client) EnsureIndex(ctx context.Context) error {
	resp, err := c.doRequest(ctx, http.MethodHead, "/"+c.indexName, nil)
	if err != nil {
		return fmt.Errorf("check index existence: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		applog.Debug("[Search] Index already exists", "index", c.indexName)
		return nil
	}

	body, _ := json.Marshal(indexMapping())
	resp, err = c.doRequest(ctx, http.MethodPut, "/"+c.indexName, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		// 并发创建时另一方已经建好
		if strings.Contains(string(respBody), "resource_already_exists_exception") {
			return nil
		}
		return statusError("create index", resp.StatusCode, respBody)
	}

	applog.Info("[Search] Index created", "index", c.indexName)
	return nil
}

// Insert 单条走 _create，批量走一次 _bulk
func (c *Client) Insert(ctx context.Context, docs []record.Document) (*WriteResponse, error) {
	switch len(docs) {
	case 0:
		return &WriteResponse{}, nil
	case 1:
		return c.create(ctx, docs[0])
	}
	return c.bulkCreate(ctx, docs)
}

func (c *Client) create(ctx context.Context, doc record.Document) (*WriteResponse, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: encode document: %v", record.ErrInvalidArgument, err)
	}

	path := fmt.Sprintf("/%s/_create/%s?refresh=true", c.indexName, url.PathEscape(c.newID()))
	resp, err := c.doRequest(ctx, http.MethodPut, path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, statusError("create document", resp.StatusCode, respBody)
	}
	return &WriteResponse{Items: 1}, nil
}

func (c *Client) bulkCreate(ctx context.Context, docs []record.Document) (*WriteResponse, error) {
	var buf bytes.Buffer
	for _, doc := range docs {
		action := map[string]interface{}{
			"create": map[string]interface{}{
				"_index": c.indexName,
				"_id":    c.newID(),
			},
		}
		actionLine, _ := json.Marshal(action)
		buf.Write(actionLine)
		buf.WriteByte('\n')

		docLine, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("%w: encode document: %v", record.ErrInvalidArgument, err)
		}
		buf.Write(docLine)
		buf.WriteByte('\n')
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/_bulk?refresh=true", &buf)
	if err != nil {
		return nil, fmt.Errorf("bulk create: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, statusError("bulk create", resp.StatusCode, respBody)
	}

	var out bulkResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("parse bulk response: %w", err)
	}
	if out.Errors {
		failed, first := out.failures()
		return nil, fmt.Errorf("bulk create: %d of %d items failed, first: %s", failed, len(docs), first)
	}

	took := out.Took
	applog.Debug("[Search] Bulk created", "count", len(docs), "took", took)
	return &WriteResponse{Took: &took, Items: len(docs)}, nil
}

// Search 执行查询；索引不存在时返回空结果
func (c *Client) Search(ctx context.Context, query map[string]interface{}) (*SearchResponse, error) {
	body, _ := json.Marshal(map[string]interface{}{
		"query": query,
		"size":  c.searchSize,
	})
	resp, err := c.doRequest(ctx, http.MethodPost, "/"+c.indexName+"/_search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, record.Unavailable(record.StoreSearch, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode == http.StatusNotFound {
		return &SearchResponse{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError("search", resp.StatusCode, respBody)
	}

	var out SearchResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return &out, nil
}

// UpdateByQuery 按查询执行脚本更新；one 时 max_docs=1
func (c *Client) UpdateByQuery(ctx context.Context, query map[string]interface{}, script Script, how record.Cardinality) (*ByQueryResponse, error) {
	body, _ := json.Marshal(map[string]interface{}{
		"query":  query,
		"script": script,
	})
	return c.byQuery(ctx, "_update_by_query", body, how)
}

// DeleteByQuery 按查询删除；one 时 max_docs=1
func (c *Client) DeleteByQuery(ctx context.Context, query map[string]interface{}, how record.Cardinality) (*ByQueryResponse, error) {
	body, _ := json.Marshal(map[string]interface{}{
		"query": query,
	})
	return c.byQuery(ctx, "_delete_by_query", body, how)
}

func (c *Client) byQuery(ctx context.Context, endpoint string, body []byte, how record.Cardinality) (*ByQueryResponse, error) {
	params := url.Values{}
	params.Set("refresh", "true")
	switch how {
	case record.One:
		params.Set("max_docs", "1")
	case record.Many:
	default:
		return nil, how.Validate()
	}

	path := fmt.Sprintf("/%s/%s?%s", c.indexName, endpoint, params.Encode())
	resp, err := c.doRequest(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusNotFound {
		return &ByQueryResponse{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(endpoint, resp.StatusCode, respBody)
	}

	var out ByQueryResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("parse %s response: %w", endpoint, err)
	}
	if len(out.Failures) > 0 {
		return nil, fmt.Errorf("%s: %d failures, first: %s", endpoint, len(out.Failures), string(out.Failures[0]))
	}
	return &out, nil
}

// Count 统计匹配条数；索引不存在时为 0
func (c *Client) Count(ctx context.Context, query map[string]interface{}) (int64, error) {
	body, _ := json.Marshal(map[string]interface{}{"query": query})
	resp, err := c.doRequest(ctx, http.MethodPost, "/"+c.indexName+"/_count", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusNotFound {
		return 0, nil
	}
	if resp.StatusCode != http.StatusOK {
		return 0, statusError("count", resp.StatusCode, respBody)
	}

	var out struct {
		Count int64 `json:"count"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return 0, fmt.Errorf("parse count response: %w", err)
	}
	return out.Count, nil
}

// Drop 删除索引并重建空索引，之后的查询返回空列表而不是 index_not_found
func (c *Client) Drop(ctx context.Context) error {
	resp, err := c.doRequest(ctx, http.MethodDelete, "/"+c.indexName, nil)
	if err != nil {
		return fmt.Errorf("delete index: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		return statusError("delete index", resp.StatusCode, respBody)
	}
	applog.Info("[Search] Index dropped", "index", c.indexName)
	return c.EnsureIndex(ctx)
}

// doRequest 执行 HTTP 请求，传输层错误统一包装为 ErrBackendUnavailable
func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}

	if strings.HasPrefix(path, "/_bulk") {
		req.Header.Set("Content-Type", "application/x-ndjson")
	} else {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, record.Unavailable(record.StoreSearch, err)
	}
	return resp, nil
}

// statusError 5xx 视为后端不可用，其余为请求错误
func statusError(op string, status int, body []byte) error {
	err := fmt.Errorf("%s failed (%d): %s", op, status, strings.TrimSpace(string(body)))
	if status >= http.StatusInternalServerError {
		return record.Unavailable(record.StoreSearch, err)
	}
	return err
}

// indexMapping Athlete_ID 为 long；所有字符串字段为 text 并带不限长度的 keyword 子字段，供精确匹配
func indexMapping() map[string]interface{} {
	return map[string]interface{}{
		"mappings": map[string]interface{}{
			"dynamic_templates": []interface{}{
				map[string]interface{}{
					"strings": map[string]interface{}{
						"match_mapping_type": "string",
						"mapping": map[string]interface{}{
							"type": "text",
							"fields": map[string]interface{}{
								"keyword": map[string]string{"type": "keyword"},
							},
						},
					},
				},
			},
			"properties": map[string]interface{}{
				record.IdentifierField: map[string]string{"type": "long"},
			},
		},
	}
}
