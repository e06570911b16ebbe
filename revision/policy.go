package revision

import "slices"

// Retention 历史保留策略
type Retention struct {
	// Limit 每个主体最多保留的修订数，0 表示不限制
	Limit int `validate:"gte=0"`
	// Cleanup 达到上限时删除最旧的修订；为 false 时达到上限后不再记录
	Cleanup bool
}

// Policy 单个主体类型的修订策略，不持久化
type Policy struct {
	SubjectType string
	// Disabled 关闭该类型的修订采集（零值即启用）
	Disabled bool

	// Include 非空时只追踪这些字段（优先于 Exclude）
	Include []string
	// Exclude 不追踪的字段
	Exclude []string

	TrackCreate bool
	// IgnoreSoftDelete 不记录软删除（零值即记录）
	IgnoreSoftDelete bool
	TrackForceDelete bool

	// Retention 为 nil 时继承 Config 的全局设置
	Retention *Retention

	// FieldNames 字段显示名
	FieldNames map[string]string
	// Formats 字段格式化规则，形如 "boolean:No|Yes"
	Formats map[string]string
	// Relations 显式关联映射：字段 → 关联名，关联类型由 ModelRepository.RelationAccessor 给出
	// 用于外键字段名与关联名不符合 "<关联>_id" 约定的情况
	Relations map[string]string
	// Mutators 字段值展示前的转换
	Mutators map[string]func(any) any

	NullString    string
	UnknownString string

	CreatedAtField string
	DeletedAtField string
}

// DefaultPolicy 追踪全部字段的默认策略
func DefaultPolicy(subjectType string) Policy {
	return Policy{
		SubjectType:    subjectType,
		NullString:     "nothing",
		UnknownString:  "unknown",
		CreatedAtField: DefaultCreatedAtField,
		DeletedAtField: DefaultDeletedAtField,
	}
}

// Enabled 是否采集该类型的修订
func (p Policy) Enabled() bool { return !p.Disabled }

// TracksSoftDelete 是否记录软删除
func (p Policy) TracksSoftDelete() bool { return !p.IgnoreSoftDelete }

// IsRevisionable 字段是否需要追踪
//
// 在 Include 中 → 追踪；在 Exclude 或 runtimeExcluded 中 → 不追踪；
// 否则仅当 Include 为空时追踪。
func (p Policy) IsRevisionable(key string, runtimeExcluded map[string]struct{}) bool {
	if slices.Contains(p.Include, key) {
		return true
	}
	if slices.Contains(p.Exclude, key) {
		return false
	}
	if _, ok := runtimeExcluded[key]; ok {
		return false
	}
	return len(p.Include) == 0
}

// IsRelationRevisionable 关联是否需要追踪，规则与字段相同但不考虑运行时排除
func (p Policy) IsRelationRevisionable(relation string) bool {
	return p.IsRevisionable(relation, nil)
}

// DisableField 返回追加了排除字段的策略副本
func (p Policy) DisableField(fields ...string) Policy {
	exclude := make([]string, 0, len(p.Exclude)+len(fields))
	exclude = append(exclude, p.Exclude...)
	for _, f := range fields {
		if !slices.Contains(exclude, f) {
			exclude = append(exclude, f)
		}
	}
	p.Exclude = exclude
	return p
}

// FieldName 字段显示名：有覆盖时使用覆盖，否则去掉 _id 后缀
func (p Policy) FieldName(key string) string {
	if name, ok := p.FieldNames[key]; ok && name != "" {
		return name
	}
	if len(key) > 3 && key[len(key)-3:] == "_id" {
		return key[:len(key)-3]
	}
	return key
}

// withDefaults 为空字段补默认值
func (p Policy) withDefaults() Policy {
	if p.NullString == "" {
		p.NullString = "nothing"
	}
	if p.UnknownString == "" {
		p.UnknownString = "unknown"
	}
	if p.CreatedAtField == "" {
		p.CreatedAtField = DefaultCreatedAtField
	}
	if p.DeletedAtField == "" {
		p.DeletedAtField = DefaultDeletedAtField
	}
	return p
}
