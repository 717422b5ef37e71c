package opensearch

import (
	"encoding/json"
	"fmt"

	"dualstore/internal/domain/record"
)

// WriteResponse 插入结果。单条 _create 不返回 took，此时 Took 为 nil。
type WriteResponse struct {
	Took  *int64
	Items int
}

// SearchResponse _search 响应中用到的部分
type SearchResponse struct {
	Took int64 `json:"took"`
	Hits struct {
		Hits []Hit `json:"hits"`
	} `json:"hits"`
}

// Hit 单条命中
type Hit struct {
	ID     string         `json:"_id"`
	Source map[string]any `json:"_source"`
}

// ByQueryResponse _update_by_query / _delete_by_query 响应
type ByQueryResponse struct {
	Took     int64             `json:"took"`
	Total    int64             `json:"total"`
	Updated  int64             `json:"updated"`
	Deleted  int64             `json:"deleted"`
	Failures []json.RawMessage `json:"failures"`
}

type bulkResponse struct {
	Took   int64 `json:"took"`
	Errors bool  `json:"errors"`
	Items  []map[string]struct {
		Status int `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error,omitempty"`
	} `json:"items"`
}

// failures 返回失败条数和第一条失败原因
func (b *bulkResponse) failures() (int, string) {
	var (
		n     int
		first string
	)
	for _, item := range b.Items {
		for _, res := range item {
			if res.Error == nil {
				continue
			}
			if n == 0 {
				first = fmt.Sprintf("%s: %s", res.Error.Type, res.Error.Reason)
			}
			n++
		}
	}
	return n, first
}

// Documents 从 hits.hits[]._source 提取记录；空输入返回空列表
func Documents(resp *SearchResponse) []record.Document {
	if resp == nil {
		return []record.Document{}
	}
	docs := make([]record.Document, 0, len(resp.Hits.Hits))
	for _, hit := range resp.Hits.Hits {
		if hit.Source == nil {
			continue
		}
		docs = append(docs, record.Document(hit.Source))
	}
	return docs
}

// ElapsedMs 后端自报的 took（毫秒）
func ElapsedMs(took int64) float64 {
	if took < 0 {
		return 0
	}
	return float64(took)
}
