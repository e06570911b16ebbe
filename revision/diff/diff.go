// Package diff 计算一次变更中需要记录的字段
package diff

import (
	"maps"
	"sort"

	"revtrail/revision"
)

// Snapshot 变更快照
type Snapshot = revision.Snapshot

// NewSnapshot 创建快照：复制两份属性，并剔除无法转为字符串的对象值
//
// 被剔除的字段记入 Excluded，本次变更后续的比较都视其为排除字段。
func NewSnapshot(original, updated map[string]any, dirty []string, updating bool) *Snapshot {
	s := &Snapshot{
		Original: maps.Clone(original),
		Updated:  maps.Clone(updated),
		Dirty:    append([]string(nil), dirty...),
		Updating: updating,
		Excluded: make(map[string]struct{}),
	}
	if s.Original == nil {
		s.Original = map[string]any{}
	}
	if s.Updated == nil {
		s.Updated = map[string]any{}
	}

	var objects []string
	for _, m := range []map[string]any{s.Original, s.Updated} {
		for k, v := range m {
			if revision.Classify(v) == revision.KindObject {
				objects = append(objects, k)
			}
		}
	}
	s.Exclude(objects...)
	return s
}

// DirtyKeys 没有自带脏字段跟踪的宿主使用该函数计算变化字段
func DirtyKeys(original, updated map[string]any) []string {
	return revision.ChangedKeys(original, updated)
}

// ComputeChanges 返回需要记录的 字段 → 新值
//
// 只检查脏字段；组合值（map/slice/array）跳过；不可追踪的字段从两份快照中移除；
// 原值缺失或与新值不同才记录；新旧值都为空（nil 或 ""）时不记录。
func ComputeChanges(s *Snapshot, p revision.Policy) map[string]any {
	changes := make(map[string]any)
	if s == nil {
		return changes
	}

	dirty := append([]string(nil), s.Dirty...)
	sort.Strings(dirty)

	for _, key := range dirty {
		newValue, inUpdated := s.Updated[key]
		if !inUpdated {
			// 字段被移除或已运行时排除
			continue
		}
		if revision.Classify(newValue) == revision.KindComposite {
			continue
		}
		if !p.IsRevisionable(key, s.Excluded) {
			delete(s.Original, key)
			delete(s.Updated, key)
			continue
		}

		oldValue, inOriginal := s.Original[key]
		if inOriginal && oldValue != nil && revision.Equal(oldValue, newValue) {
			continue
		}
		if revision.IsEmpty(oldValue) && revision.IsEmpty(newValue) {
			continue
		}
		changes[key] = newValue
	}
	return changes
}

// Change 一个字段的变化
type Change struct {
	Key      string
	OldValue any
	NewValue any
}

// Changes 返回按字段名排序的变化列表，旧值取自快照的 Original
func Changes(s *Snapshot, p revision.Policy) []Change {
	changed := ComputeChanges(s, p)
	keys := make([]string, 0, len(changed))
	for k := range changed {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Change, 0, len(keys))
	for _, k := range keys {
		out = append(out, Change{Key: k, OldValue: s.Original[k], NewValue: changed[k]})
	}
	return out
}
