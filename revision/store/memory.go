package store

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"

	"revtrail/errors"
	"revtrail/revision"
)

// MemoryStore 内存实现，并发安全
type MemoryStore struct {
	mu   sync.Mutex
	rows []*revision.Revision
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func clone(r *revision.Revision) *revision.Revision {
	c := *r
	c.AdditionalFields = maps.Clone(r.AdditionalFields)
	return &c
}

func less(a, b *revision.Revision) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func (m *MemoryStore) InsertBatch(ctx context.Context, revs []*revision.Revision) error {
	if err := ctx.Err(); err != nil {
		return errors.WrapError(err, errors.ErrCodeStorageWrite, "insert revisions")
	}
	if len(revs) == 0 {
		return nil
	}
	if _, _, err := batchSubject(revs); err != nil {
		return errors.WrapError(err, errors.ErrCodeStorageWrite, "insert revisions")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertLocked(revs)
	return nil
}

func (m *MemoryStore) insertLocked(revs []*revision.Revision) {
	for _, r := range revs {
		m.rows = append(m.rows, clone(r))
	}
}

func (m *MemoryStore) InsertBatchCapped(ctx context.Context, revs []*revision.Revision, limit int, cleanup bool) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, errors.WrapError(err, errors.ErrCodeStorageWrite, "insert revisions")
	}
	if len(revs) == 0 {
		return false, nil
	}
	subjectType, subjectID, err := batchSubject(revs)
	if err != nil {
		return false, errors.WrapError(err, errors.ErrCodeStorageWrite, "insert revisions")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if limit > 0 && len(m.subjectLocked(subjectType, subjectID)) >= limit {
		if !cleanup {
			return false, nil
		}
		m.deleteOldestLocked(subjectType, subjectID, len(revs))
	}
	m.insertLocked(revs)
	return true, nil
}

// subjectLocked 主体的修订，按时间升序
func (m *MemoryStore) subjectLocked(subjectType, subjectID string) []*revision.Revision {
	var out []*revision.Revision
	for _, r := range m.rows {
		if r.SubjectType == subjectType && r.SubjectID == subjectID {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func (m *MemoryStore) Query(ctx context.Context, subjectType, subjectID string) ([]*revision.Revision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneAll(m.subjectLocked(subjectType, subjectID)), nil
}

func (m *MemoryStore) QueryByType(ctx context.Context, subjectType string, limit int, order Order) ([]*revision.Revision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*revision.Revision
	for _, r := range m.rows {
		if r.SubjectType == subjectType {
			out = append(out, r)
		}
	}
	sortRows(out, order)
	return cloneAll(truncate(out, limit)), nil
}

func (m *MemoryStore) QueryByActor(ctx context.Context, actorID, actorType string, limit int) ([]*revision.Revision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*revision.Revision
	for _, r := range m.rows {
		if revision.Deref(r.ActorID) != actorID || r.ActorID == nil {
			continue
		}
		if actorType != "" && revision.Deref(r.ActorType) != actorType {
			continue
		}
		out = append(out, r)
	}
	sortRows(out, Desc)
	return cloneAll(truncate(out, limit)), nil
}

func (m *MemoryStore) Count(ctx context.Context, subjectType, subjectID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subjectLocked(subjectType, subjectID)), nil
}

func (m *MemoryStore) DeleteOldest(ctx context.Context, subjectType, subjectID string, count int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteOldestLocked(subjectType, subjectID, count)
	return nil
}

func (m *MemoryStore) deleteOldestLocked(subjectType, subjectID string, count int) {
	if count <= 0 {
		return
	}
	victims := make(map[*revision.Revision]struct{}, count)
	for _, r := range truncate(m.subjectLocked(subjectType, subjectID), count) {
		victims[r] = struct{}{}
	}
	m.removeLocked(func(r *revision.Revision) bool {
		_, ok := victims[r]
		return ok
	})
}

func (m *MemoryStore) Purge(ctx context.Context, subjectType, subjectID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.removeLocked(func(r *revision.Revision) bool {
		return r.SubjectType == subjectType && r.SubjectID == subjectID
	})
	return int64(n), nil
}

// removeLocked 删除匹配的修订；slices.DeleteFunc 会清零尾部，被删除的修订可以被回收
func (m *MemoryStore) removeLocked(match func(*revision.Revision) bool) int {
	before := len(m.rows)
	m.rows = slices.DeleteFunc(m.rows, match)
	return before - len(m.rows)
}

// Len 全部修订数（测试辅助）
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func sortRows(rows []*revision.Revision, order Order) {
	sort.SliceStable(rows, func(i, j int) bool {
		if order == Asc {
			return less(rows[i], rows[j])
		}
		return less(rows[j], rows[i])
	})
}

func truncate(rows []*revision.Revision, limit int) []*revision.Revision {
	if limit > 0 && len(rows) > limit {
		return rows[:limit]
	}
	return rows
}

func cloneAll(rows []*revision.Revision) []*revision.Revision {
	out := make([]*revision.Revision, len(rows))
	for i, r := range rows {
		out[i] = clone(r)
	}
	return out
}
