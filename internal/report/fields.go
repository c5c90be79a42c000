package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Fields 有序的字段映射
// 保留插入顺序,JSON 编解码时保持键顺序
type Fields struct {
	keys   []string
	values map[string]Value
}

// NewFields 创建空字段映射
func NewFields() *Fields {
	return &Fields{values: make(map[string]Value)}
}

// Get 获取字段值
func (f *Fields) Get(name string) (Value, bool) {
	if f == nil {
		return Value{}, false
	}
	v, ok := f.values[name]
	return v, ok
}

// Set 设置字段值,新字段追加在末尾
func (f *Fields) Set(name string, v Value) *Fields {
	if f.values == nil {
		f.values = make(map[string]Value)
	}
	if _, ok := f.values[name]; !ok {
		f.keys = append(f.keys, name)
	}
	f.values[name] = v
	return f
}

// Delete 删除字段
func (f *Fields) Delete(name string) {
	if f == nil {
		return
	}
	if _, ok := f.values[name]; !ok {
		return
	}
	delete(f.values, name)
	for i, k := range f.keys {
		if k == name {
			f.keys = append(f.keys[:i], f.keys[i+1:]...)
			break
		}
	}
}

// Has 判断字段是否存在
func (f *Fields) Has(name string) bool {
	_, ok := f.Get(name)
	return ok
}

// Keys 按插入顺序返回字段名
func (f *Fields) Keys() []string {
	if f == nil {
		return nil
	}
	return append([]string{}, f.keys...)
}

func (f *Fields) Len() int {
	if f == nil {
		return 0
	}
	return len(f.keys)
}

// Clone 深拷贝
func (f *Fields) Clone() *Fields {
	c := NewFields()
	if f == nil {
		return c
	}
	for _, k := range f.keys {
		c.Set(k, f.values[k].clone())
	}
	return c
}

// Equal 比较字段名、顺序与值
func (f *Fields) Equal(o *Fields) bool {
	if f.Len() != o.Len() {
		return false
	}
	for i, k := range f.Keys() {
		if o.keys[i] != k {
			return false
		}
		if !f.values[k].Equal(o.values[k]) {
			return false
		}
	}
	return true
}

// String 读取字符串字段,缺失或类型不符时返回空串
func (f *Fields) String(name string) string {
	v, _ := f.Get(name)
	s, _ := v.AsString()
	return s
}

// Number 读取数值字段
func (f *Fields) Number(name string) (decimal.Decimal, bool) {
	v, _ := f.Get(name)
	return v.AsNumber()
}

// NumberOrZero 读取数值字段,缺失时返回 0
func (f *Fields) NumberOrZero(name string) decimal.Decimal {
	d, ok := f.Number(name)
	if !ok {
		return decimal.Zero
	}
	return d
}

// Bool 读取布尔字段,缺失时为 false
func (f *Fields) Bool(name string) bool {
	v, _ := f.Get(name)
	b, _ := v.AsBool()
	return b
}

// Date 读取日期字段
func (f *Fields) Date(name string) (time.Time, bool) {
	v, _ := f.Get(name)
	return v.AsDate()
}

// StringList 读取字符串列表
func (f *Fields) StringList(name string) []string {
	v, _ := f.Get(name)
	l, _ := v.AsStringList()
	return l
}

// ObjectList 读取对象列表
func (f *Fields) ObjectList(name string) []*Fields {
	v, _ := f.Get(name)
	l, _ := v.AsObjectList()
	return l
}

// Object 读取嵌套对象
func (f *Fields) Object(name string) *Fields {
	v, _ := f.Get(name)
	o, _ := v.AsObject()
	return o
}

// IsBlank 字段缺失或为空
func (f *Fields) IsBlank(name string) bool {
	v, ok := f.Get(name)
	return !ok || v.IsBlank()
}

// MarshalJSON 按插入顺序输出
func (f *Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range f.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := f.values[k].MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", k, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON 按字段目录解码
// 已知字段按声明类型转换,无法转换时保留原类型交由校验器报告
func (f *Fields) UnmarshalJSON(data []byte) error {
	parsed, err := decodeFields(data, topLevelSchema)
	if err != nil {
		return err
	}
	*f = *parsed
	return nil
}

// ParseFields 从 JSON 解析字段
func ParseFields(data []byte) (*Fields, error) {
	return decodeFields(data, topLevelSchema)
}

// 解码错误
var (
	ErrUnsupportedValue = errors.New("unsupported field value") // 混合类型数组、嵌套数组等
	ErrNumberOutOfRange = errors.New("number out of range")
)

// 数值精度上限,超出的数值在解码时拒绝
const (
	MaxNumberIntegerDigits = 18
	MaxNumberScale         = 18
	maxNumberLength        = 64
)

type schemaFunc func(name string) (FieldSpec, bool)

func topLevelSchema(name string) (FieldSpec, bool) {
	return Lookup(name)
}

func itemSchema(item map[string]Kind) schemaFunc {
	return func(name string) (FieldSpec, bool) {
		kind, ok := item[name]
		if !ok {
			return FieldSpec{}, false
		}
		return FieldSpec{Name: name, Kind: kind}, true
	}
}

func noSchema(string) (FieldSpec, bool) {
	return FieldSpec{}, false
}

func decodeFields(data []byte, schema schemaFunc) (*Fields, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	out := NewFields()
	if tok == nil {
		return out, nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("decode fields: expected object, got %v", tok)
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("decode fields: %w", err)
		}
		name, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("decode fields: expected key, got %v", tok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode field %s: %w", name, err)
		}

		spec, known := schema(name)
		v, present, err := decodeValue(raw, spec, known)
		if err != nil {
			return nil, fmt.Errorf("decode field %s: %w", name, err)
		}
		if present {
			out.Set(name, v)
		}
	}

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	return out, nil
}

func decodeValue(raw json.RawMessage, spec FieldSpec, known bool) (Value, bool, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Value{}, false, nil
	}

	nested := noSchema
	if known && spec.Item != nil {
		nested = itemSchema(spec.Item)
	}

	var v Value
	switch raw[0] {
	case '{':
		obj, err := decodeFields(raw, nested)
		if err != nil {
			return Value{}, false, err
		}
		v = Object(obj)
	case '[':
		list, err := decodeList(raw, spec, known, nested)
		if err != nil {
			return Value{}, false, err
		}
		v = list
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Value{}, false, err
		}
		v = String(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return Value{}, false, err
		}
		v = Bool(b)
	default:
		d, err := parseNumber(string(raw))
		if errors.Is(err, ErrNumberOutOfRange) {
			return Value{}, false, err
		}
		if err != nil {
			return Value{}, false, fmt.Errorf("%w: %s", ErrUnsupportedValue, raw)
		}
		v = Number(d)
	}

	if !known {
		return v, true, nil
	}
	return coerce(v, spec.Kind)
}

func decodeList(raw json.RawMessage, spec FieldSpec, known bool, nested schemaFunc) (Value, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return Value{}, err
	}
	if len(items) == 0 {
		if known && spec.Kind == KindObjectList {
			return ObjectList(), nil
		}
		return StringList(), nil
	}

	var (
		strs []string
		objs []*Fields
	)
	for _, item := range items {
		item = bytes.TrimSpace(item)
		switch {
		case len(item) > 0 && item[0] == '"' && objs == nil:
			var s string
			if err := json.Unmarshal(item, &s); err != nil {
				return Value{}, err
			}
			strs = append(strs, s)
		case len(item) > 0 && item[0] == '{' && strs == nil:
			obj, err := decodeFields(item, nested)
			if err != nil {
				return Value{}, err
			}
			objs = append(objs, obj)
		default:
			return Value{}, fmt.Errorf("%w: lists must hold only strings or only objects", ErrUnsupportedValue)
		}
	}
	if objs != nil {
		return ObjectList(objs...), nil
	}
	return StringList(strs...), nil
}

// parseNumber 解析十进制数,整数位和小数位都不超过上限
func parseNumber(s string) (decimal.Decimal, error) {
	if len(s) > maxNumberLength {
		return decimal.Decimal{}, ErrNumberOutOfRange
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, err
	}

	exp := int(d.Exponent())
	if exp > MaxNumberIntegerDigits || exp < -MaxNumberScale {
		return decimal.Decimal{}, ErrNumberOutOfRange
	}
	if !d.IsZero() && len(d.Abs().Coefficient().String())+exp > MaxNumberIntegerDigits {
		return decimal.Decimal{}, ErrNumberOutOfRange
	}
	return d, nil
}

// coerce 将值转换为目录声明的类型
// 返回 present=false 表示空字符串被视为未填写
func coerce(v Value, kind Kind) (Value, bool, error) {
	if v.kind == kind {
		return v, true, nil
	}

	switch kind {
	case KindNumber:
		if v.kind == KindString {
			s := strings.TrimSpace(v.str)
			if s == "" {
				return Value{}, false, nil
			}
			if d, err := parseNumber(s); err == nil {
				return Number(d), true, nil
			}
		}
	case KindDate:
		if v.kind == KindString {
			if strings.TrimSpace(v.str) == "" {
				return Value{}, false, nil
			}
			if t, ok := parseDate(v.str); ok {
				return Date(t), true, nil
			}
		}
	case KindBool:
		if v.kind == KindString {
			switch strings.TrimSpace(v.str) {
			case "true":
				return Bool(true), true, nil
			case "false":
				return Bool(false), true, nil
			case "":
				return Value{}, false, nil
			}
		}
	case KindString:
		if v.kind == KindNumber {
			return String(v.num.String()), true, nil
		}
	case KindStringList:
		if v.kind == KindString {
			if strings.TrimSpace(v.str) == "" {
				return StringList(), true, nil
			}
			return StringList(v.str), true, nil
		}
	case KindObjectList:
		if v.kind == KindObject {
			return ObjectList(v.obj), true, nil
		}
		if v.kind == KindStringList && len(v.strs) == 0 {
			return ObjectList(), true, nil
		}
	case KindObject:
		if v.kind == KindString && strings.TrimSpace(v.str) == "" {
			return Value{}, false, nil
		}
	}

	// 保留原类型,由校验器报告 type 违规
	return v, true, nil
}
