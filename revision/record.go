package revision

import (
	"maps"
	"sort"
	"sync"
	"time"
)

// IRecord 被追踪的持久化记录
//
// 宿主的持久化层（ORM 实体、仓储返回的对象等）实现该接口后即可接入采集流程。
type IRecord interface {
	// SubjectType 主体类型名，对应 revisionable_type
	SubjectType() string
	// SubjectID 主体主键，对应 revisionable_id
	SubjectID() string
	// OriginalAttributes 最近一次持久化时的属性
	OriginalAttributes() map[string]any
	// Attributes 当前内存中的属性
	Attributes() map[string]any
	// Exists 本次变更之前记录是否已持久化（区分更新与创建）
	Exists() bool
}

// IDirtyTracker 可选能力：由宿主提供脏字段集合，未实现时按属性差异计算
type IDirtyTracker interface {
	DirtyKeys() []string
}

// ISnapshotHolder 可选能力：快照挂在记录实例上，实现该接口的记录无需控制器保存状态
type ISnapshotHolder interface {
	RevisionSnapshot() *Snapshot
	SetRevisionSnapshot(s *Snapshot)
}

// ISoftDeletable 可选能力：本次删除是否为软删除
type ISoftDeletable interface {
	IsSoftDeleting() bool
}

// IRuntimeExclusions 可选能力：记录实例级别临时禁用的字段
type IRuntimeExclusions interface {
	RevisionExcludedFields() []string
}

// IIdentifiable 可选能力：关联实体在历史中的显示名称
type IIdentifiable interface {
	IdentifiableName() string
}

// IValueMutator 可选能力：字段值在展示前的转换，ok 为 false 表示不处理该字段
type IValueMutator interface {
	MutateRevisionValue(key string, value any) (any, bool)
}

// TrackedRecord 可嵌入的通用记录实现
//
// 保存原始属性与当前属性两份副本，并实现 ISnapshotHolder、ISoftDeletable、
// IRuntimeExclusions 与 IDirtyTracker。
type TrackedRecord struct {
	mu sync.Mutex

	Type string
	ID   string

	original map[string]any
	current  map[string]any
	exists   bool

	softDeleting bool
	disabled     map[string]struct{}
	snapshot     *Snapshot
}

// NewTrackedRecord 创建尚未持久化的记录
func NewTrackedRecord(subjectType, id string, attrs map[string]any) *TrackedRecord {
	return &TrackedRecord{
		Type:     subjectType,
		ID:       id,
		original: map[string]any{},
		current:  maps.Clone(nonNil(attrs)),
	}
}

// LoadTrackedRecord 创建已持久化的记录（原始属性与当前属性相同）
func LoadTrackedRecord(subjectType, id string, attrs map[string]any) *TrackedRecord {
	return &TrackedRecord{
		Type:     subjectType,
		ID:       id,
		original: maps.Clone(nonNil(attrs)),
		current:  maps.Clone(nonNil(attrs)),
		exists:   true,
	}
}

func nonNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func (r *TrackedRecord) SubjectType() string { return r.Type }
func (r *TrackedRecord) SubjectID() string   { return r.ID }

func (r *TrackedRecord) OriginalAttributes() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return maps.Clone(r.original)
}

func (r *TrackedRecord) Attributes() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return maps.Clone(r.current)
}

func (r *TrackedRecord) Exists() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.exists
}

// Get 读取当前属性
func (r *TrackedRecord) Get(key string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.current[key]
	return v, ok
}

// Set 修改当前属性
func (r *TrackedRecord) Set(key string, value any) {
	r.mu.Lock()
	r.current[key] = value
	r.mu.Unlock()
}

// Fill 批量修改当前属性
func (r *TrackedRecord) Fill(attrs map[string]any) {
	r.mu.Lock()
	for k, v := range attrs {
		r.current[k] = v
	}
	r.mu.Unlock()
}

// MarkPersisted 宿主提交成功且采集完成后调用：当前属性成为新的原始属性
func (r *TrackedRecord) MarkPersisted() {
	r.mu.Lock()
	r.original = maps.Clone(r.current)
	r.exists = true
	r.softDeleting = false
	r.mu.Unlock()
}

// SoftDelete 写入删除标记字段，并标记本次删除为软删除
func (r *TrackedRecord) SoftDelete(field string, at time.Time) {
	if field == "" {
		field = DefaultDeletedAtField
	}
	r.mu.Lock()
	r.current[field] = at
	r.softDeleting = true
	r.mu.Unlock()
}

func (r *TrackedRecord) IsSoftDeleting() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.softDeleting
}

// DisableRevisionField 仅对该实例临时排除字段
func (r *TrackedRecord) DisableRevisionField(fields ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disabled == nil {
		r.disabled = make(map[string]struct{}, len(fields))
	}
	for _, f := range fields {
		r.disabled[f] = struct{}{}
	}
}

func (r *TrackedRecord) RevisionExcludedFields() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.disabled))
	for f := range r.disabled {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// DirtyKeys 当前属性与原始属性不同的字段
func (r *TrackedRecord) DirtyKeys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return ChangedKeys(r.original, r.current)
}

func (r *TrackedRecord) RevisionSnapshot() *Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot
}

func (r *TrackedRecord) SetRevisionSnapshot(s *Snapshot) {
	r.mu.Lock()
	r.snapshot = s
	r.mu.Unlock()
}
