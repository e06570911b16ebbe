package format

import (
	"reflect"
	"strings"
	"time"

	"github.com/ncruces/go-strftime"

	"revtrail/errors"
	"revtrail/revision"
)

// DefaultDatetimeLayout datetime 规则未给出格式时的输出格式
const DefaultDatetimeLayout = "Y-m-d H:i:s"

// Boolean 按真值返回 "假标签|真标签" 中的一个，标签不是恰好两个时使用 No/Yes
func Boolean(value any, arg string) (any, error) {
	labels := strings.Split(arg, "|")
	if len(labels) != 2 {
		labels = []string{"No", "Yes"}
	}
	if Truthy(value) {
		return labels[1], nil
	}
	return labels[0], nil
}

// String 将值代入模板中的第一个 %s，模板为空时原样输出值
func String(value any, arg string) (any, error) {
	if arg == "" {
		arg = "%s"
	}
	return strings.Replace(arg, "%s", ToString(value), 1), nil
}

// Datetime 解析时间并按格式输出；空值返回 nil，无法解析时返回 FORMAT_PARSE_ERROR
//
// 格式含 '%' 时按 strftime 解释，含 "2006" 时按 Go 参考时间解释，否则按 PHP date() 字母解释。
func Datetime(value any, arg string) (any, error) {
	if revision.IsEmpty(value) {
		return nil, nil
	}
	t, err := ParseTime(value)
	if err != nil {
		return nil, errors.NewFormatParseError("datetime", value, err)
	}
	if arg == "" {
		arg = DefaultDatetimeLayout
	}
	switch {
	case strings.Contains(arg, "%"):
		return strftime.Format(arg, t), nil
	case strings.Contains(arg, "2006"):
		return t.Format(arg), nil
	default:
		return phpDate(arg, t), nil
	}
}

// Options 根据 "k1.v1|k2.v2" 查找值的标签，找不到时返回 "undefined"
func Options(value any, arg string) (any, error) {
	key := ToString(value)
	for _, opt := range strings.Split(arg, "|") {
		k, v, ok := strings.Cut(opt, ".")
		if !ok {
			continue
		}
		if k == key {
			return v, nil
		}
	}
	return "undefined", nil
}

// IsEmpty 先按 "值是否非空" 选择 boolean 标签，再把值代入标签中的 %s
func IsEmpty(value any, arg string) (any, error) {
	label, _ := Boolean(!revision.IsEmpty(value), arg)
	return String(value, label.(string))
}

// Truthy 按宽松规则求值：nil、false、0、""、"0"、空集合为假
func Truthy(v any) bool {
	if v == nil {
		return false
	}
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return val != "" && val != "0"
	case *string:
		return val != nil && *val != "" && *val != "0"
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return false
		}
		return Truthy(rv.Elem().Interface())
	case reflect.Bool:
		return rv.Bool()
	case reflect.String:
		return Truthy(rv.String())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	case reflect.Map, reflect.Slice, reflect.Array:
		return rv.Len() > 0
	}
	return true
}

var parseLayouts = []string{
	revision.TimeLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
}

// ParseTime 解析时间值，字符串在 UTC 下按常见格式依次尝试
func ParseTime(value any) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case *time.Time:
		if v != nil {
			return *v, nil
		}
	}

	s := strings.TrimSpace(ToString(value))
	var lastErr error
	for _, layout := range parseLayouts {
		t, err := time.ParseInLocation(layout, s, time.UTC)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
