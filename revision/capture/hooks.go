package capture

import (
	"context"

	"revtrail/errors"
	"revtrail/revision"
)

// Hook 生命周期回调
type Hook func(ctx context.Context, rec revision.IRecord) error

// Hooks 绑定到一个主体类型的生命周期回调，宿主在装配阶段按类型注册
type Hooks struct {
	SubjectType      string
	BeforeSave       Hook
	AfterSave        Hook
	AfterCreate      Hook
	AfterDelete      Hook
	AfterForceDelete Hook

	c *Controller
}

// persistable 提交后可把当前属性标记为已持久化的记录（如 revision.TrackedRecord）
type persistable interface {
	MarkPersisted()
}

// Hooks 返回 subjectType 的回调；传入其他类型的记录视为装配错误
func (c *Controller) Hooks(subjectType string) Hooks {
	bind := func(fn Hook) Hook {
		return func(ctx context.Context, rec revision.IRecord) error {
			if rec.SubjectType() != subjectType {
				return c.fail(ctx, rec, errors.NewError(errors.ErrCodeCapture,
					"hooks for "+subjectType+" received "+rec.SubjectType()))
			}
			return fn(ctx, rec)
		}
	}
	return Hooks{
		SubjectType:      subjectType,
		BeforeSave:       bind(c.OnBeforeSave),
		AfterSave:        bind(c.OnAfterSave),
		AfterCreate:      bind(c.OnAfterCreate),
		AfterDelete:      bind(c.OnAfterDelete),
		AfterForceDelete: bind(c.OnAfterForceDelete),
		c:                c,
	}
}

// Save 按顺序执行一次保存：BeforeSave → persist → AfterCreate（新记录）→ AfterSave
//
// persist 失败时不写入任何修订，快照被丢弃；成功后记录若实现 MarkPersisted 则被标记为已持久化。
func (h Hooks) Save(ctx context.Context, rec revision.IRecord, persist func(ctx context.Context) error) error {
	creating := !rec.Exists()
	if err := h.BeforeSave(ctx, rec); err != nil {
		return err
	}
	if err := persist(ctx); err != nil {
		h.c.takeSnapshot(rec)
		return err
	}

	var err error
	if creating {
		err = h.AfterCreate(ctx, rec)
	}
	if err == nil {
		err = h.AfterSave(ctx, rec)
	}
	if p, ok := rec.(persistable); ok {
		p.MarkPersisted()
	}
	return err
}

// Delete 执行一次删除：persist 成功后 force 为 true 调用 AfterForceDelete，否则调用 AfterDelete
func (h Hooks) Delete(ctx context.Context, rec revision.IRecord, force bool, persist func(ctx context.Context) error) error {
	if err := persist(ctx); err != nil {
		return err
	}
	if force {
		return h.AfterForceDelete(ctx, rec)
	}
	err := h.AfterDelete(ctx, rec)
	if p, ok := rec.(persistable); ok {
		p.MarkPersisted()
	}
	return err
}
