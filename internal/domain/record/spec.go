package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Field 字段名 + 标量值
type Field struct {
	Name  string
	Value Value
}

// F 构造 Field 的简写
func F(name string, v Value) Field { return Field{Name: name, Value: v} }

// Fields 有序字段集合。顺序只影响生成查询的展示形式，不影响匹配语义。
type Fields struct {
	items []Field
}

func newFields(items []Field) (Fields, error) {
	var fs Fields
	for _, it := range items {
		if err := fs.Set(it.Name, it.Value); err != nil {
			return Fields{}, err
		}
	}
	return fs, nil
}

// Len 字段数
func (f Fields) Len() int { return len(f.items) }

// IsEmpty 是否为空
func (f Fields) IsEmpty() bool { return len(f.items) == 0 }

// Items 返回字段副本
func (f Fields) Items() []Field {
	out := make([]Field, len(f.items))
	copy(out, f.items)
	return out
}

// Names 返回字段名（保持顺序）
func (f Fields) Names() []string {
	names := make([]string, len(f.items))
	for i, it := range f.items {
		names[i] = it.Name
	}
	return names
}

// Get 按字段名取值
func (f Fields) Get(name string) (Value, bool) {
	for _, it := range f.items {
		if it.Name == name {
			return it.Value, true
		}
	}
	return Value{}, false
}

// Set 追加或覆盖字段
func (f *Fields) Set(name string, v Value) error {
	if err := validateFieldName(name); err != nil {
		return err
	}
	if !v.IsValid() {
		return fmt.Errorf("%w: field %q has no value", ErrInvalidArgument, name)
	}
	for i, it := range f.items {
		if it.Name == name {
			f.items[i].Value = v
			return nil
		}
	}
	f.items = append(f.items, Field{Name: name, Value: v})
	return nil
}

// Map 转成无序 map，值为驱动原生类型
func (f Fields) Map() map[string]any {
	m := make(map[string]any, len(f.items))
	for _, it := range f.items {
		m[it.Name] = it.Value.Interface()
	}
	return m
}

func (f Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, it := range f.items {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(it.Name)
		if err != nil {
			return nil, err
		}
		val, err := it.Value.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON 按出现顺序解析 JSON 对象；null 视为空集合
func (f *Fields) UnmarshalJSON(data []byte) error {
	f.items = nil
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("%w: expected a JSON object", ErrInvalidArgument)
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		name, _ := tok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("%w: field %q: %v", ErrInvalidArgument, name, err)
		}
		var v Value
		if err := v.UnmarshalJSON(raw); err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
		if _, dup := f.Get(name); dup {
			return fmt.Errorf("%w: duplicate field %q", ErrInvalidArgument, name)
		}
		if err := f.Set(name, v); err != nil {
			return err
		}
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return nil
}

func validateFieldName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: empty field name", ErrInvalidArgument)
	}
	if strings.HasPrefix(name, "$") {
		return fmt.Errorf("%w: field name %q must not start with '$'", ErrInvalidArgument, name)
	}
	return nil
}

// FilterSpec 通用过滤条件：字段 -> 值。为空表示匹配全部。
type FilterSpec struct {
	Fields
}

// NewFilter 构造过滤条件，字段名非法或重复时返回 ErrInvalidArgument
func NewFilter(items ...Field) (FilterSpec, error) {
	fs, err := newFields(items)
	return FilterSpec{Fields: fs}, err
}

// MustFilter 同 NewFilter，出错 panic（仅用于常量/测试）
func MustFilter(items ...Field) FilterSpec {
	f, err := NewFilter(items...)
	if err != nil {
		panic(err)
	}
	return f
}

// UpdateSpec 通用更新内容：字段 -> 新值。未知字段原样透传。
type UpdateSpec struct {
	Fields
}

// NewUpdate 构造更新内容
func NewUpdate(items ...Field) (UpdateSpec, error) {
	fs, err := newFields(items)
	return UpdateSpec{Fields: fs}, err
}

// MustUpdate 同 NewUpdate，出错 panic
func MustUpdate(items ...Field) UpdateSpec {
	u, err := NewUpdate(items...)
	if err != nil {
		panic(err)
	}
	return u
}

// Validate 更新内容不能为空
func (u UpdateSpec) Validate() error {
	if u.IsEmpty() {
		return fmt.Errorf("%w: update must set at least one field", ErrInvalidArgument)
	}
	return nil
}
