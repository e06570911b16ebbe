package revision

import (
	"bytes"
	"database/sql/driver"
	"encoding"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
)

// TimeLayout 时间值写入 old_value/new_value 时使用的格式（UTC）
const TimeLayout = "2006-01-02 15:04:05"

// Kind 属性值的分类
type Kind int

const (
	KindNil Kind = iota
	// KindScalar 可直接转为字符串
	KindScalar
	// KindComposite map/slice/array，不参与字段级比较
	KindComposite
	// KindObject 无法转为字符串的对象值
	KindObject
)

var (
	timeType       = reflect.TypeOf(time.Time{})
	stringerType   = reflect.TypeOf((*fmt.Stringer)(nil)).Elem()
	marshalerType  = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
	valuerType     = reflect.TypeOf((*driver.Valuer)(nil)).Elem()
	rawMessageType = reflect.TypeOf(json.RawMessage(nil))
	byteSliceType  = reflect.TypeOf([]byte(nil))
)

// Classify 判断值的分类
func Classify(v any) Kind {
	if v == nil {
		return KindNil
	}
	rv := reflect.ValueOf(v)
	t := rv.Type()
	if hasStringConversion(t) {
		return KindScalar
	}
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return KindNil
		}
		rv = rv.Elem()
		t = rv.Type()
		if hasStringConversion(t) {
			return KindScalar
		}
	}

	switch rv.Kind() {
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return KindScalar
	case reflect.Slice:
		if t == byteSliceType || t == rawMessageType {
			return KindScalar
		}
		return KindComposite
	case reflect.Map, reflect.Array:
		return KindComposite
	case reflect.Interface:
		if rv.IsNil() {
			return KindNil
		}
		return Classify(rv.Elem().Interface())
	default:
		return KindObject
	}
}

func hasStringConversion(t reflect.Type) bool {
	return t == timeType ||
		t.Implements(valuerType) ||
		t.Implements(marshalerType) ||
		t.Implements(stringerType)
}

// IsStringable 值能否安全地转换为字符串存储
func IsStringable(v any) bool {
	k := Classify(v)
	return k == KindNil || k == KindScalar || k == KindComposite
}

// Stringify 将属性值转换为存储用的字符串，nil 返回 (nil, true)；对象值返回 ok=false
//
// 约定：bool 写为 "1"/"0"；时间转为 UTC 后按 TimeLayout 输出；
// JSON 文本（json.RawMessage 或组合值）按键排序后输出。
func Stringify(v any) (out *string, ok bool) {
	s, isNil, ok := stringify(v, 0)
	if !ok || isNil {
		return nil, ok
	}
	return &s, true
}

func stringify(v any, depth int) (s string, isNil, ok bool) {
	if v == nil {
		return "", true, true
	}
	if depth > 4 {
		return "", false, false
	}

	switch val := v.(type) {
	case string:
		return val, false, true
	case bool:
		if val {
			return "1", false, true
		}
		return "0", false, true
	case time.Time:
		return val.UTC().Format(TimeLayout), false, true
	case *time.Time:
		if val == nil {
			return "", true, true
		}
		return val.UTC().Format(TimeLayout), false, true
	case json.RawMessage:
		if norm, ok := NormalizeJSON(string(val)); ok {
			return norm, false, true
		}
		return string(val), false, true
	case []byte:
		return string(val), false, true
	case driver.Valuer:
		rv := reflect.ValueOf(val)
		if rv.Kind() == reflect.Pointer && rv.IsNil() {
			return "", true, true
		}
		dv, err := val.Value()
		if err != nil {
			return "", false, false
		}
		return stringify(dv, depth+1)
	case encoding.TextMarshaler:
		rv := reflect.ValueOf(val)
		if rv.Kind() == reflect.Pointer && rv.IsNil() {
			return "", true, true
		}
		text, err := val.MarshalText()
		if err != nil {
			return "", false, false
		}
		return string(text), false, true
	case fmt.Stringer:
		rv := reflect.ValueOf(val)
		if rv.Kind() == reflect.Pointer && rv.IsNil() {
			return "", true, true
		}
		return val.String(), false, true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return "", true, true
		}
		return stringify(rv.Elem().Interface(), depth+1)
	case reflect.String:
		return rv.String(), false, true
	case reflect.Bool:
		return stringify(rv.Bool(), depth+1)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), false, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), false, true
	case reflect.Float32:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 32), false, true
	case reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64), false, true
	case reflect.Map, reflect.Slice, reflect.Array:
		b, err := json.Marshal(v)
		if err != nil {
			return "", false, false
		}
		if norm, ok := NormalizeJSON(string(b)); ok {
			return norm, false, true
		}
		return string(b), false, true
	default:
		return "", false, false
	}
}

// NormalizeJSON 深度按键排序后重新编码 JSON 对象/数组文本；非 JSON 返回 ok=false
func NormalizeJSON(s string) (string, bool) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || (trimmed[0] != '{' && trimmed[0] != '[') {
		return "", false
	}
	dec := json.NewDecoder(strings.NewReader(trimmed))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return "", false
	}
	// encoding/json 编码 map 时按键排序
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", false
	}
	return strings.TrimSuffix(buf.String(), "\n"), true
}

// IsEmpty nil 或空字符串
func IsEmpty(v any) bool {
	if v == nil {
		return true
	}
	s, isNil, ok := stringify(v, 0)
	return ok && (isNil || s == "")
}

// Equal 类型感知的值比较
//
// 数值按大小比较（"1" 与 1 相等，两侧都是整数时精确比较），时间按时刻比较，JSON 文本按规范化后的内容比较，
// 其余情况比较 Stringify 结果。
func Equal(a, b any) bool {
	aNil, bNil := isNilValue(a), isNilValue(b)
	if aNil || bNil {
		return aNil && bNil
	}

	if ta, ok := asTime(a); ok {
		if tb, ok := asTime(b); ok {
			return ta.Equal(tb)
		}
	}

	if na, okA := asNumber(a); okA {
		if nb, okB := asNumber(b); okB && (isNumericKind(a) || isNumericKind(b)) {
			return na.equal(nb)
		}
	}

	sa, _, okA := stringify(a, 0)
	sb, _, okB := stringify(b, 0)
	if !okA || !okB {
		return reflect.DeepEqual(a, b)
	}
	if sa == sb {
		return true
	}
	if ja, ok := NormalizeJSON(sa); ok {
		if jb, ok := NormalizeJSON(sb); ok {
			return ja == jb
		}
	}
	return false
}

func isNilValue(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return rv.IsNil()
	}
	return false
}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t != nil {
			return *t, true
		}
	}
	return time.Time{}, false
}

func isNumericKind(v any) bool {
	switch reflect.ValueOf(v).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// number 数值的精确表示：整数保存符号与绝对值，超过 2^53 的主键也能精确比较
type number struct {
	isFloat bool
	f       float64
	neg     bool
	mag     uint64
}

func intNumber(i int64) number {
	if i < 0 {
		return number{neg: true, mag: uint64(-(i + 1)) + 1}
	}
	return number{mag: uint64(i)}
}

func (n number) float() float64 {
	if n.isFloat {
		return n.f
	}
	if n.neg {
		return -float64(n.mag)
	}
	return float64(n.mag)
}

// equal 两侧都是整数时精确比较，否则按浮点比较
func (n number) equal(o number) bool {
	if !n.isFloat && !o.isFloat {
		return n.neg == o.neg && n.mag == o.mag
	}
	return n.float() == o.float()
}

func asNumber(v any) (number, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return intNumber(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return number{mag: rv.Uint()}, true
	case reflect.Float32, reflect.Float64:
		return number{isFloat: true, f: rv.Float()}, true
	case reflect.String:
		s := strings.TrimSpace(rv.String())
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return intNumber(i), true
		}
		if u, err := strconv.ParseUint(s, 10, 64); err == nil {
			return number{mag: u}, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return number{isFloat: true, f: f}, true
		}
	}
	return number{}, false
}

// ChangedKeys 两份属性中值不同的字段（含仅出现在一侧的字段），按字母序返回
func ChangedKeys(original, updated map[string]any) []string {
	keys := make([]string, 0)
	for k, nv := range updated {
		ov, ok := original[k]
		if !ok || !Equal(ov, nv) {
			keys = append(keys, k)
		}
	}
	for k := range original {
		if _, ok := updated[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
