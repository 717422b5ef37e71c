package record

import (
	"fmt"
	"sort"
	"strings"
)

// IdentifierField 每条记录必须携带且跨两个存储唯一的字段
const IdentifierField = "Athlete_ID"

// AthleteFields 运动员记录的已知字段
var AthleteFields = []string{
	"Athlete_ID",
	"Athlete_Name",
	"DoB",
	"Sex",
	"Current_Club",
	"Current_City",
	"Current_Province",
}

// Document 存储中的一条记录（字段无序）
type Document map[string]any

// Identifier 读取并校验记录的 Athlete_ID
func (d Document) Identifier() (Value, error) {
	raw, ok := d[IdentifierField]
	if !ok {
		return Value{}, fmt.Errorf("%w: document has no %s", ErrInvalidArgument, IdentifierField)
	}
	id, err := ValueOf(raw)
	if err != nil {
		return Value{}, fmt.Errorf("%s: %w", IdentifierField, err)
	}
	return id, CheckIdentifier(id)
}

// CheckIdentifier Athlete_ID 必须是整数（搜索引擎映射为 long）
func CheckIdentifier(id Value) error {
	if !id.isIntegral() {
		return fmt.Errorf("%w: %s must be an integer, got %s", ErrInvalidArgument, IdentifierField, id)
	}
	return nil
}

// UnknownFields 返回不在 AthleteFields 中的字段名（排序后）
func (d Document) UnknownFields() []string {
	known := make(map[string]struct{}, len(AthleteFields))
	for _, f := range AthleteFields {
		known[f] = struct{}{}
	}
	var out []string
	for k := range d {
		if _, ok := known[k]; !ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Cardinality 一次变更最多影响一条还是全部匹配记录
type Cardinality string

const (
	One  Cardinality = "one"
	Many Cardinality = "many"
)

// ParseCardinality 大小写不敏感地解析 how，只接受 one / many
func ParseCardinality(how string) (Cardinality, error) {
	switch strings.ToLower(strings.TrimSpace(how)) {
	case string(One):
		return One, nil
	case string(Many):
		return Many, nil
	default:
		return "", fmt.Errorf("%w: how must be 'one' or 'many', got %q", ErrInvalidArgument, how)
	}
}

// Validate 校验已构造的 Cardinality
func (c Cardinality) Validate() error {
	_, err := ParseCardinality(string(c))
	return err
}

// Cap one 时匹配数最多为 1
func (c Cardinality) Cap(matched int64) int64 {
	if c == One && matched > 1 {
		return 1
	}
	if matched < 0 {
		return 0
	}
	return matched
}

// Store 后端标识
type Store string

const (
	StoreDocument Store = "document_store"
	StoreSearch   Store = "search_engine"
)

// ParseStore 解析存储名，空字符串返回 fallback
func ParseStore(s string, fallback Store) (Store, error) {
	switch Store(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return fallback, nil
	case StoreDocument, "mongo", "mongodb":
		return StoreDocument, nil
	case StoreSearch, "opensearch", "elasticsearch", "es":
		return StoreSearch, nil
	default:
		return "", fmt.Errorf("%w: unknown store %q", ErrInvalidArgument, s)
	}
}

// Result 单个存储的标准化结果
type Result struct {
	Documents    []Document `json:"documents"`
	ElapsedMs    float64    `json:"elapsed_ms"`
	MatchedCount *int64     `json:"matched_count,omitempty"`
}

// NewResult 构造结果，保证 Documents 非 nil、耗时非负
func NewResult(docs []Document, elapsedMs float64) *Result {
	if docs == nil {
		docs = []Document{}
	}
	if elapsedMs < 0 {
		elapsedMs = 0
	}
	return &Result{Documents: docs, ElapsedMs: elapsedMs}
}

// WithMatched 设置匹配条数
func (r *Result) WithMatched(n int64) *Result {
	r.MatchedCount = &n
	return r
}

// DualResult 双写结果，失败一侧为 nil
type DualResult struct {
	DocumentStore *Result `json:"document_store,omitempty"`
	SearchEngine  *Result `json:"search_engine,omitempty"`
}

// Get 按存储取结果
func (d *DualResult) Get(s Store) *Result {
	if d == nil {
		return nil
	}
	if s == StoreSearch {
		return d.SearchEngine
	}
	return d.DocumentStore
}

// Put 按存储写结果
func (d *DualResult) Put(s Store, r *Result) {
	if s == StoreSearch {
		d.SearchEngine = r
		return
	}
	d.DocumentStore = r
}

// Counts 双存储计数
type Counts struct {
	DocumentStore int64 `json:"document_store"`
	SearchEngine  int64 `json:"search_engine"`
}
