package capture

import (
	"context"

	"revtrail/errors"
	"revtrail/revision"
)

// ChildChange 一次子记录保存，由 BeginChildSave 返回，子记录提交后调用 Commit
//
// nil 表示该关联不追踪，Commit 可以直接调用。
type ChildChange struct {
	c        *Controller
	parent   revision.IRecord
	relation string
	child    revision.IRecord
	before   *string
}

// BeginChildSave 子记录保存前记录其已持久化的状态（新记录为 nil）
func (c *Controller) BeginChildSave(ctx context.Context, parent revision.IRecord, relation string, child revision.IRecord) *ChildChange {
	if !c.tracksRelation(parent, relation) {
		return nil
	}
	var before *string
	if child.Exists() {
		before = attributesJSON(child.OriginalAttributes())
	}
	return &ChildChange{c: c, parent: parent, relation: relation, child: child, before: before}
}

// Commit 子记录提交成功后写入一条以关联名为 key 的修订，新旧值为子记录的 JSON
func (cc *ChildChange) Commit(ctx context.Context) error {
	if cc == nil {
		return nil
	}
	after := attributesJSON(cc.child.Attributes())
	if after != nil && cc.before != nil && *after == *cc.before {
		return nil
	}
	return cc.c.recordRelation(ctx, cc.parent, cc.relation, cc.before, after)
}

// OnAfterDeleteChild 子记录删除后记录其最后的状态
func (c *Controller) OnAfterDeleteChild(ctx context.Context, parent revision.IRecord, relation string, child revision.IRecord) error {
	if !c.tracksRelation(parent, relation) {
		return nil
	}
	return c.recordRelation(ctx, parent, relation, attributesJSON(child.Attributes()), nil)
}

// SyncChange 多对多关联同步，由 BeginSync 返回
type SyncChange struct {
	c        *Controller
	parent   revision.IRecord
	relation string
	before   *string
}

// BeginSync 同步前记录当前关联的主键列表
func (c *Controller) BeginSync(ctx context.Context, parent revision.IRecord, relation string, currentIDs []string) *SyncChange {
	if !c.tracksRelation(parent, relation) {
		return nil
	}
	return &SyncChange{c: c, parent: parent, relation: relation, before: idsJSON(currentIDs)}
}

// Commit 同步成功后记录新旧主键列表，列表未变化时不记录
func (sc *SyncChange) Commit(ctx context.Context, ids []string) error {
	if sc == nil {
		return nil
	}
	after := idsJSON(ids)
	if *after == *sc.before {
		return nil
	}
	return sc.c.recordRelation(ctx, sc.parent, sc.relation, sc.before, after)
}

func (c *Controller) tracksRelation(parent revision.IRecord, relation string) bool {
	policy := c.registry.Policy(parent.SubjectType())
	return policy.Enabled() && policy.IsRelationRevisionable(relation)
}

func (c *Controller) recordRelation(ctx context.Context, parent revision.IRecord, relation string, before, after *string) (err error) {
	if relation == "" {
		return c.fail(ctx, parent, errors.NewError(errors.ErrCodeCapture, "relation name is required"))
	}
	defer c.recoverCapture(ctx, parent, "relation "+relation, &err)
	return c.recordOne(ctx, parent, c.newBatch(ctx, parent), relation, before, after)
}

// attributesJSON 子记录属性的 JSON，无法转为字符串的对象值被忽略
func attributesJSON(attrs map[string]any) *string {
	clean := make(map[string]any, len(attrs))
	for k, v := range attrs {
		if revision.Classify(v) == revision.KindObject {
			continue
		}
		clean[k] = v
	}
	return text(clean)
}

func idsJSON(ids []string) *string {
	if ids == nil {
		ids = []string{}
	}
	return text(ids)
}
