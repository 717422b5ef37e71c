package mongodb

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"dualstore/internal/domain/record"
)

// Collection 文档存储适配器需要提供的原语，参数均为 MongoDB 原生形式
type Collection interface {
	Insert(ctx context.Context, docs []record.Document) error
	Find(ctx context.Context, filter bson.D) ([]record.Document, error)
	Update(ctx context.Context, filter, update bson.D, how record.Cardinality) (int64, error)
	Delete(ctx context.Context, filter bson.D, how record.Cardinality) (int64, error)
	Count(ctx context.Context, filter bson.D) (int64, error)
	Drop(ctx context.Context) error
}

// Operator 文档存储操作器：查询构造 -> 适配器 -> 结果标准化。
// 驱动不返回执行耗时，所有操作统一使用 record.Measure 计时。
type Operator struct {
	coll Collection
}

var _ record.Operator = (*Operator)(nil)

// NewOperator 创建文档存储操作器
func NewOperator(coll Collection) *Operator {
	return &Operator{coll: coll}
}

func (o *Operator) Store() record.Store { return record.StoreDocument }

// CommonInsert 写入一条或一批记录
func (o *Operator) CommonInsert(ctx context.Context, docs []record.Document) (*record.Result, error) {
	ms, err := record.MeasureErr(func() error {
		return o.coll.Insert(ctx, docs)
	})
	if err != nil {
		return nil, err
	}
	return record.NewResult(nil, ms), nil
}

// CommonSearch 返回全部记录
func (o *Operator) CommonSearch(ctx context.Context) (*record.Result, error) {
	return o.find(ctx, bson.D{})
}

// QuerySearch 正则子串搜索
func (o *Operator) QuerySearch(ctx context.Context, filter record.FilterSpec) (*record.Result, error) {
	return o.find(ctx, BuildFilter(filter))
}

// MatchSearch 精确匹配搜索
func (o *Operator) MatchSearch(ctx context.Context, filter record.FilterSpec) (*record.Result, error) {
	return o.find(ctx, BuildMatchFilter(filter))
}

// CommonUpdate 按精确匹配条件更新
func (o *Operator) CommonUpdate(ctx context.Context, filter record.FilterSpec, update record.UpdateSpec, how record.Cardinality) (*record.Result, error) {
	if err := how.Validate(); err != nil {
		return nil, err
	}
	if err := update.Validate(); err != nil {
		return nil, err
	}

	matched, ms, err := record.Measure(func() (int64, error) {
		return o.coll.Update(ctx, BuildMatchFilter(filter), BuildUpdate(update), how)
	})
	if err != nil {
		return nil, err
	}
	return record.NewResult(nil, ms).WithMatched(how.Cap(matched)), nil
}

// CommonDelete 按精确匹配条件删除
func (o *Operator) CommonDelete(ctx context.Context, filter record.FilterSpec, how record.Cardinality) (*record.Result, error) {
	if err := how.Validate(); err != nil {
		return nil, err
	}

	deleted, ms, err := record.Measure(func() (int64, error) {
		return o.coll.Delete(ctx, BuildMatchFilter(filter), how)
	})
	if err != nil {
		return nil, err
	}
	return record.NewResult(nil, ms).WithMatched(how.Cap(deleted)), nil
}

// Count 精确匹配计数
func (o *Operator) Count(ctx context.Context, filter record.FilterSpec) (int64, error) {
	return o.coll.Count(ctx, BuildMatchFilter(filter))
}

// Drop 清空集合
func (o *Operator) Drop(ctx context.Context) (*record.Result, error) {
	ms, err := record.MeasureErr(func() error {
		return o.coll.Drop(ctx)
	})
	if err != nil {
		return nil, err
	}
	return record.NewResult(nil, ms), nil
}

func (o *Operator) find(ctx context.Context, filter bson.D) (*record.Result, error) {
	docs, ms, err := record.Measure(func() ([]record.Document, error) {
		return o.coll.Find(ctx, filter)
	})
	if err != nil {
		return nil, err
	}
	return record.NewResult(docs, ms), nil
}
