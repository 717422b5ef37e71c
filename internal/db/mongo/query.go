package mongodb

import (
	"regexp"

	"go.mongodb.org/mongo-driver/bson"

	"dualstore/internal/domain/record"
)

// BuildFilter 生成大小写不敏感的子串匹配过滤条件
//
// 输入 {"Athlete_Name": "aji", "Athlete_ID": 42}
// 输出 {"Athlete_Name": {"$regex": ".*aji.*", "$options": "i"}, "Athlete_ID": 42}
//
// 正则对非字符串 BSON 值永远不匹配，所以数值和布尔值走相等比较。
// 空过滤条件返回空文档，MongoDB 将其视为匹配全部。
func BuildFilter(filter record.FilterSpec) bson.D {
	out := bson.D{}
	for _, f := range filter.Items() {
		if s, ok := f.Value.Str(); ok {
			out = append(out, bson.E{Key: f.Name, Value: bson.D{
				{Key: "$regex", Value: SubstringPattern(s)},
				{Key: "$options", Value: "i"},
			}})
			continue
		}
		out = append(out, bson.E{Key: f.Name, Value: f.Value.Interface()})
	}
	return out
}

// BuildMatchFilter 生成逐字段精确相等的过滤条件
func BuildMatchFilter(filter record.FilterSpec) bson.D {
	out := bson.D{}
	for _, f := range filter.Items() {
		out = append(out, bson.E{Key: f.Name, Value: f.Value.Interface()})
	}
	return out
}

// BuildUpdate 包装为 $set 更新，不支持删除字段或自增
func BuildUpdate(update record.UpdateSpec) bson.D {
	set := bson.D{}
	for _, f := range update.Items() {
		set = append(set, bson.E{Key: f.Name, Value: f.Value.Interface()})
	}
	return bson.D{{Key: "$set", Value: set}}
}

// SubstringPattern 值中的正则元字符全部转义
func SubstringPattern(value string) string {
	return ".*" + regexp.QuoteMeta(value) + ".*"
}
