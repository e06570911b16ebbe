// Package format 按字段规则格式化修订值
//
// 规则写作 "名称:参数"，例如 "boolean:Inactive|Active"、"datetime:d/m/Y"、
// "options:draft.Draft|live.Published"。没有规则、规则不含 ':'、或名称未注册时原值返回。
package format

import (
	"fmt"
	"strings"
	"sync"

	"revtrail/revision"
)

// Func 格式化函数，arg 为规则中第一个 ':' 之后的全部内容
type Func func(value any, arg string) (any, error)

// Formatter 可扩展的格式化器，并发安全
type Formatter struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// NewFormatter 创建带内置规则的格式化器
func NewFormatter() *Formatter {
	f := &Formatter{funcs: make(map[string]Func)}
	f.Register("boolean", Boolean)
	f.Register("string", String)
	f.Register("datetime", Datetime)
	f.Register("options", Options)
	f.Register("isEmpty", IsEmpty)
	return f
}

// Register 注册或覆盖格式化函数
func (f *Formatter) Register(name string, fn Func) {
	f.mu.Lock()
	f.funcs[name] = fn
	f.mu.Unlock()
}

// Format 按 formats[key] 格式化 value
func (f *Formatter) Format(key string, value any, formats map[string]string) (any, error) {
	spec, ok := formats[key]
	if !ok {
		return value, nil
	}
	name, arg, found := strings.Cut(spec, ":")
	if !found {
		return value, nil
	}

	f.mu.RLock()
	fn, ok := f.funcs[name]
	f.mu.RUnlock()
	if !ok {
		return value, nil
	}
	return fn(value, arg)
}

var defaultFormatter = NewFormatter()

// Default 返回包级默认格式化器
func Default() *Formatter { return defaultFormatter }

// Format 使用默认格式化器
func Format(key string, value any, formats map[string]string) (any, error) {
	return defaultFormatter.Format(key, value, formats)
}

// ToString 将格式化结果转为展示字符串，nil 返回空串
func ToString(v any) string {
	s, ok := revision.Stringify(v)
	if !ok {
		return fmt.Sprint(v)
	}
	return revision.Deref(s)
}
