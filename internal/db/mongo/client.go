package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"dualstore/internal/domain/record"
	applog "dualstore/internal/platform/log"
)

const uniqueIndexName = "uniq_athlete_id"

// Config MongoDB 连接配置
type Config struct {
	URI        string
	Database   string
	Collection string
	Timeout    time.Duration // 服务器选择超时
}

// Client MongoDB 集合客户端，实现 Collection
type Client struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// Connect 建立连接。*mongo.Client 自带连接池，可被多个请求并发使用。
func Connect(ctx context.Context, cfg Config) (*Client, error) {
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})
	if cfg.Timeout > 0 {
		opts.SetServerSelectionTimeout(cfg.Timeout)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, record.Unavailable(record.StoreDocument, err)
	}
	return NewClient(client, cfg.Database, cfg.Collection), nil
}

// NewClient 基于已有连接创建集合客户端
func NewClient(client *mongo.Client, database, collection string) *Client {
	return &Client{
		client: client,
		coll:   client.Database(database).Collection(collection),
	}
}

// Ping 检查 MongoDB 连通性
func (c *Client) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx, nil); err != nil {
		return record.Unavailable(record.StoreDocument, err)
	}
	return nil
}

// Disconnect 关闭连接池
func (c *Client) Disconnect(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// EnsureIndexes 确保 Athlete_ID 唯一索引存在，为插入前检查兜底
func (c *Client) EnsureIndexes(ctx context.Context) error {
	_, err := c.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: record.IdentifierField, Value: 1}},
		Options: options.Index().SetUnique(true).SetName(uniqueIndexName),
	})
	if err != nil {
		return classify(err, nil)
	}
	applog.Info("[Mongo] Unique index ready", "collection", c.coll.Name(), "field", record.IdentifierField)
	return nil
}

// Insert 单条走 InsertOne，批量走一次 InsertMany
func (c *Client) Insert(ctx context.Context, docs []record.Document) error {
	switch len(docs) {
	case 0:
		return nil
	case 1:
		_, err := c.coll.InsertOne(ctx, map[string]any(docs[0]))
		return classify(err, docs)
	}

	batch := make([]interface{}, len(docs))
	for i, doc := range docs {
		batch[i] = map[string]any(doc)
	}
	_, err := c.coll.InsertMany(ctx, batch)
	return classify(err, docs)
}

// Find 查询并解码全部结果
func (c *Client) Find(ctx context.Context, filter bson.D) ([]record.Document, error) {
	cur, err := c.coll.Find(ctx, filter)
	if err != nil {
		return nil, classify(err, nil)
	}
	defer cur.Close(ctx)

	var raw []bson.M
	if err := cur.All(ctx, &raw); err != nil {
		return nil, classify(err, nil)
	}
	return ToDocuments(raw), nil
}

// Update one -> UpdateOne，many -> UpdateMany，返回匹配条数
func (c *Client) Update(ctx context.Context, filter, update bson.D, how record.Cardinality) (int64, error) {
	var (
		res *mongo.UpdateResult
		err error
	)
	switch how {
	case record.One:
		res, err = c.coll.UpdateOne(ctx, filter, update)
	case record.Many:
		res, err = c.coll.UpdateMany(ctx, filter, update)
	default:
		return 0, how.Validate()
	}
	if err != nil {
		return 0, classify(err, nil)
	}
	return res.MatchedCount, nil
}

// Delete one -> DeleteOne，many -> DeleteMany，返回删除条数
func (c *Client) Delete(ctx context.Context, filter bson.D, how record.Cardinality) (int64, error) {
	var (
		res *mongo.DeleteResult
		err error
	)
	switch how {
	case record.One:
		res, err = c.coll.DeleteOne(ctx, filter)
	case record.Many:
		res, err = c.coll.DeleteMany(ctx, filter)
	default:
		return 0, how.Validate()
	}
	if err != nil {
		return 0, classify(err, nil)
	}
	return res.DeletedCount, nil
}

// Count 统计匹配条数
func (c *Client) Count(ctx context.Context, filter bson.D) (int64, error) {
	n, err := c.coll.CountDocuments(ctx, filter)
	if err != nil {
		return 0, classify(err, nil)
	}
	return n, nil
}

// Drop 删除集合后重建唯一索引
func (c *Client) Drop(ctx context.Context) error {
	if err := c.coll.Drop(ctx); err != nil {
		return classify(err, nil)
	}
	applog.Info("[Mongo] Collection dropped", "collection", c.coll.Name())
	return c.EnsureIndexes(ctx)
}

// classify 将驱动错误映射为领域错误：
// 重复键 -> DuplicateError；服务端有响应的错误原样包装；其余视为后端不可用。
func classify(err error, docs []record.Document) error {
	if err == nil {
		return nil
	}
	if mongo.IsDuplicateKeyError(err) {
		dup := &record.DuplicateError{Store: record.StoreDocument}
		if id, ok := duplicateID(err, docs); ok {
			dup.ID = id
		}
		return dup
	}
	var se mongo.ServerError
	if errors.As(err, &se) {
		return fmt.Errorf("mongo: %w", err)
	}
	return record.Unavailable(record.StoreDocument, err)
}

// duplicateID 从写错误的下标反查冲突记录的 Athlete_ID
func duplicateID(err error, docs []record.Document) (record.Value, bool) {
	if len(docs) == 0 {
		return record.Value{}, false
	}
	idx := 0
	var bwe mongo.BulkWriteException
	if errors.As(err, &bwe) && len(bwe.WriteErrors) > 0 {
		idx = bwe.WriteErrors[0].Index
	}
	if idx < 0 || idx >= len(docs) {
		return record.Value{}, false
	}
	id, e := docs[idx].Identifier()
	return id, e == nil
}
