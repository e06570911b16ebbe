package revision

import (
	"fmt"
	"sort"
	"sync"
)

// Registry 主体类型 → 策略
//
// 未注册的类型使用 DefaultPolicy（追踪全部字段）。
type Registry struct {
	mu       sync.RWMutex
	config   Config
	policies map[string]Policy
}

// NewRegistry 创建注册表
func NewRegistry(config Config) *Registry {
	return &Registry{
		config:   config,
		policies: make(map[string]Policy),
	}
}

// Register 注册策略，重复注册会覆盖
func (r *Registry) Register(p Policy) error {
	if p.SubjectType == "" {
		return fmt.Errorf("revision: policy subject type is required")
	}
	if p.Retention != nil && p.Retention.Limit < 0 {
		return fmt.Errorf("revision: negative history limit for %s", p.SubjectType)
	}
	r.mu.Lock()
	r.policies[p.SubjectType] = p.withDefaults()
	r.mu.Unlock()
	return nil
}

// MustRegister 注册策略，失败时 panic（用于初始化阶段）
func (r *Registry) MustRegister(policies ...Policy) *Registry {
	for _, p := range policies {
		if err := r.Register(p); err != nil {
			panic(err)
		}
	}
	return r
}

// Policy 返回类型的策略
func (r *Registry) Policy(subjectType string) Policy {
	r.mu.RLock()
	p, ok := r.policies[subjectType]
	r.mu.RUnlock()
	if ok {
		return p
	}
	return DefaultPolicy(subjectType)
}

// Retention 类型的生效保留策略
func (r *Registry) Retention(subjectType string) Retention {
	p := r.Policy(subjectType)
	if p.Retention != nil {
		return *p.Retention
	}
	return r.config.Retention()
}

// DisableField 为类型追加排除字段（影响之后的所有变更）
func (r *Registry) DisableField(subjectType string, fields ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.policies[subjectType]
	if !ok {
		p = DefaultPolicy(subjectType)
	}
	r.policies[subjectType] = p.DisableField(fields...)
}

// Config 返回全局配置
func (r *Registry) Config() Config {
	return r.config
}

// SubjectTypes 已注册的类型
func (r *Registry) SubjectTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.policies))
	for t := range r.policies {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
