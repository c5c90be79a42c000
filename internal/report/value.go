package report

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Kind 字段值类型
type Kind string

const (
	KindString     Kind = "string"
	KindNumber     Kind = "number"
	KindBool       Kind = "boolean"
	KindDate       Kind = "date"
	KindStringList Kind = "list-of-string"
	KindObjectList Kind = "list-of-object"
	KindObject     Kind = "object"
)

const dateLayout = "2006-01-02"

// Value 带类型标签的字段值
// 零值不是合法的字段值,请使用构造函数
type Value struct {
	kind Kind
	str  string
	num  decimal.Decimal
	b    bool
	date time.Time
	strs []string
	objs []*Fields
	obj  *Fields
}

// String 创建字符串值
func String(s string) Value {
	return Value{kind: KindString, str: s}
}

// Number 创建数值
func Number(d decimal.Decimal) Value {
	return Value{kind: KindNumber, num: d}
}

// Int 创建整数值
func Int(n int64) Value {
	return Number(decimal.NewFromInt(n))
}

// Bool 创建布尔值
func Bool(b bool) Value {
	return Value{kind: KindBool, b: b}
}

// Date 创建日期值
func Date(t time.Time) Value {
	return Value{kind: KindDate, date: t}
}

// StringList 创建字符串列表
func StringList(items ...string) Value {
	return Value{kind: KindStringList, strs: append([]string{}, items...)}
}

// ObjectList 创建对象列表
func ObjectList(items ...*Fields) Value {
	return Value{kind: KindObjectList, objs: append([]*Fields{}, items...)}
}

// Object 创建嵌套对象
func Object(f *Fields) Value {
	if f == nil {
		f = NewFields()
	}
	return Value{kind: KindObject, obj: f}
}

// Kind 返回值类型
func (v Value) Kind() Kind {
	return v.kind
}

func (v Value) AsString() (string, bool) {
	return v.str, v.kind == KindString
}

func (v Value) AsNumber() (decimal.Decimal, bool) {
	return v.num, v.kind == KindNumber
}

func (v Value) AsBool() (bool, bool) {
	return v.b, v.kind == KindBool
}

func (v Value) AsDate() (time.Time, bool) {
	return v.date, v.kind == KindDate
}

func (v Value) AsStringList() ([]string, bool) {
	if v.kind != KindStringList {
		return nil, false
	}
	return append([]string{}, v.strs...), true
}

func (v Value) AsObjectList() ([]*Fields, bool) {
	if v.kind != KindObjectList {
		return nil, false
	}
	return append([]*Fields{}, v.objs...), true
}

func (v Value) AsObject() (*Fields, bool) {
	return v.obj, v.kind == KindObject
}

// IsBlank 判断值是否为空(空白字符串、空列表、空对象)
func (v Value) IsBlank() bool {
	switch v.kind {
	case KindString:
		return strings.TrimSpace(v.str) == ""
	case KindStringList:
		return len(v.strs) == 0
	case KindObjectList:
		return len(v.objs) == 0
	case KindObject:
		return v.obj.Len() == 0
	case "":
		return true
	}
	return false
}

// Equal 比较两个值是否相等
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == o.str
	case KindNumber:
		return v.num.Equal(o.num)
	case KindBool:
		return v.b == o.b
	case KindDate:
		return v.date.Equal(o.date)
	case KindStringList:
		if len(v.strs) != len(o.strs) {
			return false
		}
		for i := range v.strs {
			if v.strs[i] != o.strs[i] {
				return false
			}
		}
		return true
	case KindObjectList:
		if len(v.objs) != len(o.objs) {
			return false
		}
		for i := range v.objs {
			if !v.objs[i].Equal(o.objs[i]) {
				return false
			}
		}
		return true
	case KindObject:
		return v.obj.Equal(o.obj)
	}
	return true
}

func (v Value) clone() Value {
	c := v
	if v.strs != nil {
		c.strs = append([]string{}, v.strs...)
	}
	if v.objs != nil {
		c.objs = make([]*Fields, len(v.objs))
		for i, o := range v.objs {
			c.objs[i] = o.Clone()
		}
	}
	if v.obj != nil {
		c.obj = v.obj.Clone()
	}
	return c
}

// MarshalJSON 数值按原样输出,日期在零点时输出 YYYY-MM-DD
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return []byte(v.num.String()), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindDate:
		return json.Marshal(formatDate(v.date))
	case KindStringList:
		return json.Marshal(v.strs)
	case KindObjectList:
		if v.objs == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.objs)
	case KindObject:
		return json.Marshal(v.obj)
	}
	return []byte("null"), nil
}

func formatDate(t time.Time) string {
	u := t.UTC()
	if u.Hour() == 0 && u.Minute() == 0 && u.Second() == 0 && u.Nanosecond() == 0 {
		return u.Format(dateLayout)
	}
	return t.Format(time.RFC3339Nano)
}

// parseDate 支持 RFC3339 和 YYYY-MM-DD
func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}
