// Package store 持久化修订记录
//
// SQLStore 基于 data/db 抽象（sqlite/postgres），MemoryStore 用于测试与嵌入式场景。
// 两者都实现 ICappedStore，使保留上限检查、删除最旧记录与写入在同一临界区内完成。
package store

import (
	"context"
	"fmt"
	"strings"

	"revtrail/revision"
)

// Order 排序方向
type Order string

const (
	Asc  Order = "asc"
	Desc Order = "desc"
)

// ParseOrder 解析排序方向，无法识别时返回 Desc
func ParseOrder(s string) Order {
	if strings.EqualFold(strings.TrimSpace(s), string(Asc)) {
		return Asc
	}
	return Desc
}

// IStore 修订存储
type IStore interface {
	// InsertBatch 在一个事务内写入一批修订，全部成功或全部失败
	InsertBatch(ctx context.Context, revs []*revision.Revision) error
	// Query 主体的全部修订，按 created_at、id 升序
	Query(ctx context.Context, subjectType, subjectID string) ([]*revision.Revision, error)
	// QueryByType 同一类型下所有主体的修订，limit <= 0 表示不限制
	QueryByType(ctx context.Context, subjectType string, limit int, order Order) ([]*revision.Revision, error)
	// QueryByActor 某个操作者产生的修订，按时间倒序；actorType 为空时不按类型过滤
	QueryByActor(ctx context.Context, actorID, actorType string, limit int) ([]*revision.Revision, error)
	// Count 主体的修订数
	Count(ctx context.Context, subjectType, subjectID string) (int, error)
	// DeleteOldest 删除主体最旧的 count 条修订
	DeleteOldest(ctx context.Context, subjectType, subjectID string, count int) error
	// Purge 删除主体的全部修订，返回删除条数
	Purge(ctx context.Context, subjectType, subjectID string) (int64, error)
}

// ICappedStore 可选能力：在同一事务内完成上限检查、清理与写入
//
// 修订数达到 limit 时：cleanup 为 false 则不写入并返回 written=false；
// cleanup 为 true 则先删除最旧的 len(revs) 条再写入。limit <= 0 表示不限制。
type ICappedStore interface {
	InsertBatchCapped(ctx context.Context, revs []*revision.Revision, limit int, cleanup bool) (written bool, err error)
}

// batchSubject 校验一批修订属于同一主体
func batchSubject(revs []*revision.Revision) (subjectType, subjectID string, err error) {
	for i, r := range revs {
		if r == nil {
			return "", "", fmt.Errorf("revision %d is nil", i)
		}
		if i == 0 {
			subjectType, subjectID = r.SubjectType, r.SubjectID
			continue
		}
		if r.SubjectType != subjectType || r.SubjectID != subjectID {
			return "", "", fmt.Errorf("batch mixes subjects %s:%s and %s", subjectType, subjectID, r.SubjectRef())
		}
	}
	return subjectType, subjectID, nil
}
