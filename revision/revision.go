// Package revision 定义修订记录模型与采集所需的策略、配置和记录能力接口。
//
// 一次变更（一次保存、创建或删除）对每个变化字段产生一条 Revision，
// 同一批次的 Revision 共享 RevisionID 与时间戳。
package revision

import "time"

// 结构性事件使用的默认字段名
const (
	DefaultCreatedAtField = "created_at"
	DefaultDeletedAtField = "deleted_at"

	// SystemName 没有当前操作者时写入 Name 的值
	SystemName = "SYSTEM"
)

// Which 选择 Revision 的旧值或新值
type Which int

const (
	Old Which = iota
	New
)

func (w Which) String() string {
	if w == Old {
		return "old"
	}
	return "new"
}

// Revision 一条字段级修订记录，写入后不再修改
type Revision struct {
	ID          int64  `json:"id"`
	SubjectType string `json:"revisionable_type"`
	SubjectID   string `json:"revisionable_id"`
	Key         string `json:"key"`

	OldValue *string `json:"old_value"`
	NewValue *string `json:"new_value"`

	ActorID   *string `json:"user_id"`
	ActorType *string `json:"user_type"`
	IP        *string `json:"ip"`

	Name        *string `json:"name"`
	Description *string `json:"description"`

	RevisionID       string         `json:"revision_id"`
	AdditionalFields map[string]any `json:"additional_fields,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Value 返回 which 对应的原始值
func (r *Revision) Value(which Which) *string {
	if which == Old {
		return r.OldValue
	}
	return r.NewValue
}

// SubjectRef 返回 "类型:主键" 形式的主体引用
func (r *Revision) SubjectRef() string {
	return r.SubjectType + ":" + r.SubjectID
}

// StringPtr 返回 s 的指针
func StringPtr(s string) *string {
	return &s
}

// Deref 解引用，nil 返回空串
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
