package opensearch

import (
	"fmt"
	"strings"

	"dualstore/internal/domain/record"
)

// keywordSuffix 字符串字段的未分词子字段，见 EnsureIndex 的 dynamic_templates
const keywordSuffix = ".keyword"

// Script painless 脚本
type Script struct {
	Source string                 `json:"source"`
	Lang   string                 `json:"lang"`
	Params map[string]interface{} `json:"params,omitempty"`
}

// BuildQueryString 生成通配 query_string 查询，所有字段 AND 连接
//
// 输入 {"Athlete_Name": "aji", "Current_Club": "eden"}
// 输出 {"query_string": {"fields": ["Athlete_Name", "Current_Club"],
//
//	"query": "Athlete_Name:*aji* AND Current_Club:*eden*", "lenient": true}}
//
// 字符串值转义保留字符后两侧加 *；数值和布尔值作为精确词项。
func BuildQueryString(filter record.FilterSpec) map[string]interface{} {
	if filter.IsEmpty() {
		return matchAll()
	}

	terms := make([]string, 0, filter.Len())
	for _, f := range filter.Items() {
		name := escapeQueryString(f.Name)
		if s, ok := f.Value.Str(); ok {
			terms = append(terms, fmt.Sprintf("%s:*%s*", name, escapeQueryString(s)))
			continue
		}
		terms = append(terms, fmt.Sprintf("%s:%s", name, escapeQueryString(f.Value.Text())))
	}

	return map[string]interface{}{
		"query_string": map[string]interface{}{
			"fields":           filter.Names(),
			"query":            strings.Join(terms, " AND "),
			"analyze_wildcard": true,
			"lenient":          true,
		},
	}
}

// BuildMatchQuery 逐字段精确匹配，用于唯一性检查与变更过滤
//
// 字符串走 <field>.keyword 的 term，不经分词，与文档库的等值过滤一致；
// 数值和布尔值直接 term。多个字段放进 bool.filter。
func BuildMatchQuery(filter record.FilterSpec) map[string]interface{} {
	items := filter.Items()
	switch len(items) {
	case 0:
		return matchAll()
	case 1:
		return termClause(items[0])
	}

	clauses := make([]interface{}, 0, len(items))
	for _, f := range items {
		clauses = append(clauses, termClause(f))
	}
	return map[string]interface{}{
		"bool": map[string]interface{}{
			"filter": clauses,
		},
	}
}

// BuildUpdateScript 生成 painless 更新脚本
//
// 字段名和值全部放进 params，脚本源码只引用 params.kN / params.vN，
// 用户输入不会拼进源码。
func BuildUpdateScript(update record.UpdateSpec) Script {
	items := update.Items()
	stmts := make([]string, 0, len(items))
	params := make(map[string]interface{}, len(items)*2)
	for i, f := range items {
		k, v := fmt.Sprintf("k%d", i), fmt.Sprintf("v%d", i)
		stmts = append(stmts, fmt.Sprintf("ctx._source[params.%s] = params.%s", k, v))
		params[k] = f.Name
		params[v] = f.Value.Interface()
	}
	return Script{
		Source: strings.Join(stmts, "; "),
		Lang:   "painless",
		Params: params,
	}
}

func termClause(f record.Field) map[string]interface{} {
	field := f.Name
	if _, ok := f.Value.Str(); ok {
		field += keywordSuffix
	}
	return map[string]interface{}{
		"term": map[string]interface{}{
			field: f.Value.Interface(),
		},
	}
}

func matchAll() map[string]interface{} {
	return map[string]interface{}{
		"match_all": map[string]interface{}{},
	}
}

// escapeQueryString 转义 query_string 保留字符与空白；< > 无法转义，直接去掉
func escapeQueryString(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '<', '>':
			continue
		case '+', '-', '=', '&', '|', '!', '(', ')', '{', '}', '[', ']',
			'^', '"', '~', '*', '?', ':', '\\', '/', ' ', '\t':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
