package opensearch

import (
	"context"

	"dualstore/internal/domain/record"
)

// Index 搜索引擎适配器需要提供的原语，参数均为原生查询形式
type Index interface {
	Insert(ctx context.Context, docs []record.Document) (*WriteResponse, error)
	Search(ctx context.Context, query map[string]interface{}) (*SearchResponse, error)
	UpdateByQuery(ctx context.Context, query map[string]interface{}, script Script, how record.Cardinality) (*ByQueryResponse, error)
	DeleteByQuery(ctx context.Context, query map[string]interface{}, how record.Cardinality) (*ByQueryResponse, error)
	Count(ctx context.Context, query map[string]interface{}) (int64, error)
	Drop(ctx context.Context) error
}

// Operator 搜索引擎操作器。耗时优先取后端自报的 took，没有时用 record.Measure。
type Operator struct {
	index Index
}

var _ record.Operator = (*Operator)(nil)

// NewOperator 创建搜索引擎操作器
func NewOperator(index Index) *Operator {
	return &Operator{index: index}
}

func (o *Operator) Store() record.Store { return record.StoreSearch }

// CommonInsert 写入一条或一批记录
func (o *Operator) CommonInsert(ctx context.Context, docs []record.Document) (*record.Result, error) {
	resp, ms, err := record.Measure(func() (*WriteResponse, error) {
		return o.index.Insert(ctx, docs)
	})
	if err != nil {
		return nil, err
	}
	if resp != nil && resp.Took != nil {
		ms = ElapsedMs(*resp.Took)
	}
	return record.NewResult(nil, ms), nil
}

// CommonSearch 返回全部记录（受 size 上限约束）
func (o *Operator) CommonSearch(ctx context.Context) (*record.Result, error) {
	return o.search(ctx, matchAll())
}

// QuerySearch 通配 query_string 搜索
func (o *Operator) QuerySearch(ctx context.Context, filter record.FilterSpec) (*record.Result, error) {
	return o.search(ctx, BuildQueryString(filter))
}

// MatchSearch 字段 match 搜索
func (o *Operator) MatchSearch(ctx context.Context, filter record.FilterSpec) (*record.Result, error) {
	return o.search(ctx, BuildMatchQuery(filter))
}

// CommonUpdate 脚本更新
func (o *Operator) CommonUpdate(ctx context.Context, filter record.FilterSpec, update record.UpdateSpec, how record.Cardinality) (*record.Result, error) {
	if err := how.Validate(); err != nil {
		return nil, err
	}
	if err := update.Validate(); err != nil {
		return nil, err
	}

	resp, err := o.index.UpdateByQuery(ctx, BuildMatchQuery(filter), BuildUpdateScript(update), how)
	if err != nil {
		return nil, err
	}
	return record.NewResult(nil, ElapsedMs(resp.Took)).WithMatched(how.Cap(resp.Total)), nil
}

// CommonDelete 按查询删除
func (o *Operator) CommonDelete(ctx context.Context, filter record.FilterSpec, how record.Cardinality) (*record.Result, error) {
	if err := how.Validate(); err != nil {
		return nil, err
	}

	resp, err := o.index.DeleteByQuery(ctx, BuildMatchQuery(filter), how)
	if err != nil {
		return nil, err
	}
	return record.NewResult(nil, ElapsedMs(resp.Took)).WithMatched(how.Cap(resp.Total)), nil
}

// Count match 查询计数
func (o *Operator) Count(ctx context.Context, filter record.FilterSpec) (int64, error) {
	return o.index.Count(ctx, BuildMatchQuery(filter))
}

// Drop 清空索引
func (o *Operator) Drop(ctx context.Context) (*record.Result, error) {
	ms, err := record.MeasureErr(func() error {
		return o.index.Drop(ctx)
	})
	if err != nil {
		return nil, err
	}
	return record.NewResult(nil, ms), nil
}

func (o *Operator) search(ctx context.Context, query map[string]interface{}) (*record.Result, error) {
	resp, err := o.index.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		resp = &SearchResponse{}
	}
	return record.NewResult(Documents(resp), ElapsedMs(resp.Took)), nil
}
