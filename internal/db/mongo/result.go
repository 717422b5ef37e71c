package mongodb

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"dualstore/internal/domain/record"
)

// ToDocuments 把游标解码结果转换为通用 Document，去掉内部 _id
func ToDocuments(raw []bson.M) []record.Document {
	docs := make([]record.Document, 0, len(raw))
	for _, m := range raw {
		doc := make(record.Document, len(m))
		for k, v := range m {
			if k == "_id" {
				continue
			}
			doc[k] = plain(v)
		}
		docs = append(docs, doc)
	}
	return docs
}

// plain 把嵌套的 bson 容器转换为普通 map / slice
func plain(v any) any {
	switch x := v.(type) {
	case bson.M:
		out := make(map[string]any, len(x))
		for k, vv := range x {
			out[k] = plain(vv)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(x))
		for _, e := range x {
			out[e.Key] = plain(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(x))
		for i, vv := range x {
			out[i] = plain(vv)
		}
		return out
	case primitive.ObjectID:
		return x.Hex()
	case primitive.DateTime:
		return x.Time().UTC()
	default:
		return v
	}
}
