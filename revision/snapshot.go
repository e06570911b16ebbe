package revision

import "sort"

// Snapshot 一次变更在提交前记录的属性快照
//
// 由 OnBeforeSave 生成并挂在记录实例上，OnAfterSave 消费后清除。
type Snapshot struct {
	Original map[string]any
	Updated  map[string]any
	Dirty    []string
	Updating bool

	// Excluded 本次变更中运行时排除的字段（无法转为字符串的对象值等）
	Excluded map[string]struct{}
}

// Exclude 将字段加入运行时排除集合，并从两份快照中移除
func (s *Snapshot) Exclude(keys ...string) {
	if s.Excluded == nil {
		s.Excluded = make(map[string]struct{}, len(keys))
	}
	for _, k := range keys {
		s.Excluded[k] = struct{}{}
		delete(s.Original, k)
		delete(s.Updated, k)
	}
}

// IsExcluded 字段是否被运行时排除
func (s *Snapshot) IsExcluded(key string) bool {
	_, ok := s.Excluded[key]
	return ok
}

// ExcludedKeys 返回排序后的运行时排除字段
func (s *Snapshot) ExcludedKeys() []string {
	keys := make([]string, 0, len(s.Excluded))
	for k := range s.Excluded {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
