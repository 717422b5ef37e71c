package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Kind 标量值类型
type Kind int

const (
	KindString Kind = iota + 1
	KindNumber
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	default:
		return "invalid"
	}
}

// Value 过滤/更新条件中的标量值（string | number | bool）
type Value struct {
	kind Kind
	s    string
	n    float64
	b    bool
}

func String(s string) Value  { return Value{kind: KindString, s: s} }
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }
func Int(n int64) Value      { return Value{kind: KindNumber, n: float64(n)} }
func Bool(b bool) Value      { return Value{kind: KindBool, b: b} }

// ValueOf 将驱动或 JSON 解码出的任意值转换为 Value
func ValueOf(v any) (Value, error) {
	switch x := v.(type) {
	case Value:
		return x, nil
	case string:
		return String(x), nil
	case bool:
		return Bool(x), nil
	case float64:
		return Number(x), nil
	case float32:
		return Number(float64(x)), nil
	case int:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("%w: invalid number %q", ErrInvalidArgument, x.String())
		}
		return Number(f), nil
	default:
		return Value{}, fmt.Errorf("%w: unsupported value type %T", ErrInvalidArgument, v)
	}
}

func (v Value) Kind() Kind    { return v.kind }
func (v Value) IsValid() bool { return v.kind != 0 }

// Str 返回字符串值，非字符串返回 false
func (v Value) Str() (string, bool) { return v.s, v.kind == KindString }

// isIntegral 数值是否可以无损表示为 int64
func (v Value) isIntegral() bool {
	return v.kind == KindNumber && v.n == math.Trunc(v.n) && math.Abs(v.n) < 1<<53
}

// Interface 返回交给驱动的 Go 原生值；整数返回 int64
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.s
	case KindNumber:
		if v.isIntegral() {
			return int64(v.n)
		}
		return v.n
	case KindBool:
		return v.b
	default:
		return nil
	}
}

// Text 返回值的文本形式，用于拼接正则或 query_string
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindNumber:
		return strconv.FormatFloat(v.n, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return ""
	}
}

func (v Value) String() string {
	if v.kind == KindString {
		return strconv.Quote(v.s)
	}
	return v.Text()
}

// Equal 比较两个值（数值按 float64 比较）
func (v Value) Equal(o Value) bool {
	return v == o
}

func (v Value) MarshalJSON() ([]byte, error) {
	if !v.IsValid() {
		return []byte("null"), nil
	}
	return json.Marshal(v.Interface())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("%w: empty value", ErrInvalidArgument)
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		*v = String(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		*v = Bool(b)
	case 'n':
		return fmt.Errorf("%w: null is not a valid field value", ErrInvalidArgument)
	case '{', '[':
		return fmt.Errorf("%w: nested values are not supported", ErrInvalidArgument)
	default:
		f, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return fmt.Errorf("%w: invalid number %s", ErrInvalidArgument, data)
		}
		*v = Number(f)
	}
	return nil
}
