// Package capture 实现修订采集协议
//
// 宿主在持久化生命周期的固定位置调用控制器：
//
//	OnBeforeSave   提交前，生成快照并挂在记录实例上
//	OnAfterSave    提交成功后（更新路径），计算变化并写入修订
//	OnAfterCreate  创建成功后，记录 created_at
//	OnAfterDelete  软删除成功后，记录 deleted_at
//
// 采集是主操作之外的辅助工作：失败只记录日志，不影响主操作的结果；
// Config.StrictAudit 为 true 时错误才会返回给调用方。
package capture

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"

	"revtrail/codegen/snowflake"
	"revtrail/errors"
	"revtrail/logging"
	"revtrail/messaging"
	"revtrail/revision"
	"revtrail/revision/diff"
	"revtrail/revision/notify"
	"revtrail/revision/resolve"
	"revtrail/revision/store"
)

// IDGenerator 修订主键生成器
type IDGenerator interface {
	NextID() (int64, error)
}

// Describer 为写入前的修订生成描述
type Describer interface {
	Describe(ctx context.Context, rev *revision.Revision) string
}

// Options 控制器配置
type Options struct {
	Store    store.IStore
	Registry *revision.Registry
	// Config Registry 为 nil 时用于创建注册表
	Config revision.Config

	Actors revision.ActorResolver
	Clock  func() time.Time
	IDs    IDGenerator
	Logger logging.Logger

	// Publisher 非 nil 时写入成功后发布 revision.recorded
	Publisher messaging.Publisher
	// Models 默认 Describer 用它把外键渲染为关联实体名称；为 nil 时描述中保留原始主键
	Models resolve.ModelRepository
	// Describer 非 nil 时替代默认的 resolve.Resolver，Models 被忽略
	Describer Describer
}

// Controller 修订采集控制器，并发安全
type Controller struct {
	store     store.IStore
	registry  *revision.Registry
	actors    revision.ActorResolver
	clock     func() time.Time
	ids       IDGenerator
	logger    logging.Logger
	notifier  *notify.Notifier
	describer Describer

	locks *subjectLocks

	// pending 未实现 ISnapshotHolder 的记录，快照按记录指针暂存，
	// 非指针记录退化为按主体引用暂存
	pendingMu sync.Mutex
	pending   map[any]*revision.Snapshot
}

// New 创建控制器
func New(opts Options) (*Controller, error) {
	if opts.Store == nil {
		return nil, errors.NewError(errors.ErrCodeInvalidInput, "revision store is required")
	}
	if opts.Registry == nil {
		cfg := opts.Config
		if cfg.Table == "" {
			cfg = revision.DefaultConfig()
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		opts.Registry = revision.NewRegistry(cfg)
	}
	if opts.Actors == nil {
		opts.Actors = revision.ContextActorResolver{}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logging.ComponentLogger("revision.capture")
	}
	if opts.IDs == nil {
		gen, err := snowflake.NewGenerator(0, 0)
		if err != nil {
			return nil, err
		}
		opts.IDs = gen
	}
	if opts.Describer == nil {
		// 描述在写入时定稿，关联名称不缓存
		opts.Describer = resolve.NewResolver(resolve.Options{
			Registry: opts.Registry,
			Models:   opts.Models,
			Logger:   opts.Logger,
			CacheTTL: -1,
		})
	}

	c := &Controller{
		store:     opts.Store,
		registry:  opts.Registry,
		actors:    opts.Actors,
		clock:     opts.Clock,
		ids:       opts.IDs,
		logger:    opts.Logger,
		describer: opts.Describer,
		locks:     newSubjectLocks(),
		pending:   make(map[any]*revision.Snapshot),
	}
	if opts.Publisher != nil {
		c.notifier = notify.NewNotifier(opts.Publisher, notify.WithLogger(opts.Logger))
	}
	return c, nil
}

// Registry 返回策略注册表
func (c *Controller) Registry() *revision.Registry { return c.registry }

// OnBeforeSave 提交前生成快照
func (c *Controller) OnBeforeSave(ctx context.Context, rec revision.IRecord) (err error) {
	policy := c.registry.Policy(rec.SubjectType())
	if !policy.Enabled() {
		return nil
	}
	defer c.recoverCapture(ctx, rec, "before save", &err)

	original := rec.OriginalAttributes()
	updated := rec.Attributes()

	var dirty []string
	if tracker, ok := rec.(revision.IDirtyTracker); ok {
		dirty = tracker.DirtyKeys()
	} else {
		dirty = diff.DirtyKeys(original, updated)
	}

	s := diff.NewSnapshot(original, updated, dirty, rec.Exists())
	s.Exclude(runtimeExclusions(rec)...)
	c.putSnapshot(rec, s)
	return nil
}

// OnAfterSave 提交成功后记录变化字段，仅处理更新已有记录的情况
func (c *Controller) OnAfterSave(ctx context.Context, rec revision.IRecord) (err error) {
	s := c.takeSnapshot(rec)
	if s == nil || !s.Updating {
		return nil
	}
	policy := c.registry.Policy(rec.SubjectType())
	if !policy.Enabled() {
		return nil
	}
	defer c.recoverCapture(ctx, rec, "after save", &err)

	changes := diff.Changes(s, policy)
	if len(changes) == 0 {
		return nil
	}

	b := c.newBatch(ctx, rec)
	revs := make([]*revision.Revision, 0, len(changes))
	for _, ch := range changes {
		rev, err := c.build(ctx, b, ch.Key, text(ch.OldValue), text(ch.NewValue))
		if err != nil {
			return c.fail(ctx, rec, err)
		}
		revs = append(revs, rev)
	}
	return c.write(ctx, rec, revs)
}

// OnAfterCreate 创建成功后记录创建时间（需要策略开启 TrackCreate）
func (c *Controller) OnAfterCreate(ctx context.Context, rec revision.IRecord) (err error) {
	c.takeSnapshot(rec)
	// 主键在插入时才分配的非指针记录，提交前以空主键暂存
	c.dropPending(rec.SubjectType() + ":")
	policy := c.registry.Policy(rec.SubjectType())
	if !policy.Enabled() || !policy.TrackCreate {
		return nil
	}
	defer c.recoverCapture(ctx, rec, "after create", &err)

	b := c.newBatch(ctx, rec)
	created := text(rec.Attributes()[policy.CreatedAtField])
	if created == nil || *created == "" {
		created = text(b.at)
	}
	return c.recordOne(ctx, rec, b, policy.CreatedAtField, nil, created)
}

// OnAfterDelete 软删除成功后记录删除标记
//
// 记录不支持软删除、本次为物理删除、或删除标记字段不可追踪时不记录。
func (c *Controller) OnAfterDelete(ctx context.Context, rec revision.IRecord) (err error) {
	c.takeSnapshot(rec)
	policy := c.registry.Policy(rec.SubjectType())
	if !policy.Enabled() || !policy.TracksSoftDelete() {
		return nil
	}
	soft, ok := rec.(revision.ISoftDeletable)
	if !ok || !soft.IsSoftDeleting() {
		return nil
	}
	if !policy.IsRevisionable(policy.DeletedAtField, toSet(runtimeExclusions(rec))) {
		return nil
	}
	defer c.recoverCapture(ctx, rec, "after delete", &err)

	b := c.newBatch(ctx, rec)
	deleted := text(rec.Attributes()[policy.DeletedAtField])
	if deleted == nil || *deleted == "" {
		deleted = text(b.at)
	}
	return c.recordOne(ctx, rec, b, policy.DeletedAtField, nil, deleted)
}

// OnAfterForceDelete 物理删除后记录创建时间被销毁（需要策略开启 TrackForceDelete）
func (c *Controller) OnAfterForceDelete(ctx context.Context, rec revision.IRecord) (err error) {
	c.takeSnapshot(rec)
	policy := c.registry.Policy(rec.SubjectType())
	if !policy.Enabled() || !policy.TrackForceDelete {
		return nil
	}
	defer c.recoverCapture(ctx, rec, "after force delete", &err)

	created, ok := rec.OriginalAttributes()[policy.CreatedAtField]
	if !ok {
		created = rec.Attributes()[policy.CreatedAtField]
	}
	return c.recordOne(ctx, rec, c.newBatch(ctx, rec), policy.CreatedAtField, text(created), nil)
}

// batch 一次变更共享的元数据
type batch struct {
	subjectType string
	subjectID   string
	at          time.Time
	revisionID  string
	actor       revision.Actor
	hasActor    bool
	ip          string
	additional  map[string]any
}

func (c *Controller) newBatch(ctx context.Context, rec revision.IRecord) *batch {
	b := &batch{
		subjectType: rec.SubjectType(),
		subjectID:   rec.SubjectID(),
		at:          c.clock().UTC().Truncate(time.Microsecond),
		revisionID:  uuid.NewString(),
	}
	b.actor, b.hasActor = c.actors.CurrentActor(ctx)
	b.ip, _ = revision.IPFromContext(ctx)

	if fields := c.registry.Config().AdditionalFields; len(fields) > 0 {
		attrs := rec.Attributes()
		for _, f := range fields {
			v, ok := attrs[f]
			if !ok {
				continue
			}
			if b.additional == nil {
				b.additional = make(map[string]any, len(fields))
			}
			if s := text(v); s != nil {
				b.additional[f] = *s
			} else {
				b.additional[f] = nil
			}
		}
	}
	return b
}

// build 组装一条修订并生成描述
func (c *Controller) build(ctx context.Context, b *batch, key string, oldValue, newValue *string) (*revision.Revision, error) {
	id, err := c.ids.NextID()
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeCapture, "generate revision id")
	}
	rev := &revision.Revision{
		ID:               id,
		SubjectType:      b.subjectType,
		SubjectID:        b.subjectID,
		Key:              key,
		OldValue:         oldValue,
		NewValue:         newValue,
		Name:             revision.StringPtr(revision.SystemName),
		RevisionID:       b.revisionID,
		AdditionalFields: b.additional,
		CreatedAt:        b.at,
		UpdatedAt:        b.at,
	}
	if b.hasActor {
		rev.ActorID = revision.StringPtr(b.actor.ID)
		if b.actor.Type != "" {
			rev.ActorType = revision.StringPtr(b.actor.Type)
		}
		if b.actor.Name != "" {
			rev.Name = revision.StringPtr(b.actor.Name)
		}
	}
	if b.ip != "" {
		rev.IP = revision.StringPtr(b.ip)
	}
	rev.Description = revision.StringPtr(c.describer.Describe(ctx, rev))
	return rev, nil
}

func (c *Controller) recordOne(ctx context.Context, rec revision.IRecord, b *batch, key string, oldValue, newValue *string) error {
	rev, err := c.build(ctx, b, key, oldValue, newValue)
	if err != nil {
		return c.fail(ctx, rec, err)
	}
	return c.write(ctx, rec, []*revision.Revision{rev})
}

// write 按保留策略写入一批修订，成功后发布通知
func (c *Controller) write(ctx context.Context, rec revision.IRecord, revs []*revision.Revision) error {
	ref := revs[0].SubjectRef()
	retention := c.registry.Retention(revs[0].SubjectType)

	unlock := c.locks.lock(ref)
	written, err := c.insert(ctx, revs, retention)
	unlock()

	if err != nil {
		if !errors.IsErrorCode(err, errors.ErrCodeStorageWrite) {
			err = errors.WrapError(err, errors.ErrCodeStorageWrite, "record revisions")
		}
		return c.fail(ctx, rec, err)
	}
	if !written {
		c.logger.Debug(ctx, "已达修订上限，本次变更不记录",
			logging.String("subject", ref), logging.Int("limit", retention.Limit))
		return nil
	}

	c.logger.Debug(ctx, "修订已记录",
		logging.String("subject", ref),
		logging.String("revision_id", revs[0].RevisionID),
		logging.Int("count", len(revs)))

	if c.notifier != nil {
		_ = c.notifier.Recorded(ctx, revs)
	}
	return nil
}

// insert 达到上限时：Cleanup 为 true 先删除最旧的 len(revs) 条，否则不写入
func (c *Controller) insert(ctx context.Context, revs []*revision.Revision, retention revision.Retention) (bool, error) {
	if retention.Limit <= 0 {
		return true, c.store.InsertBatch(ctx, revs)
	}
	if capped, ok := c.store.(store.ICappedStore); ok {
		return capped.InsertBatchCapped(ctx, revs, retention.Limit, retention.Cleanup)
	}

	subjectType, subjectID := revs[0].SubjectType, revs[0].SubjectID
	count, err := c.store.Count(ctx, subjectType, subjectID)
	if err != nil {
		return false, err
	}
	if count >= retention.Limit {
		if !retention.Cleanup {
			return false, nil
		}
		if err := c.store.DeleteOldest(ctx, subjectType, subjectID, len(revs)); err != nil {
			return false, err
		}
	}
	return true, c.store.InsertBatch(ctx, revs)
}

// fail 记录采集错误；StrictAudit 时返回错误
func (c *Controller) fail(ctx context.Context, rec revision.IRecord, err error) error {
	c.logger.Error(ctx, "修订采集失败",
		logging.String("subject", rec.SubjectType()+":"+rec.SubjectID()),
		logging.String("code", string(errors.GetErrorCode(err))),
		logging.Error(err))
	if c.registry.Config().StrictAudit {
		return err
	}
	return nil
}

// recoverCapture 把采集过程中的 panic 转为 CAPTURE_ERROR
func (c *Controller) recoverCapture(ctx context.Context, rec revision.IRecord, op string, err *error) {
	if r := recover(); r != nil {
		*err = c.fail(ctx, rec, errors.NewError(errors.ErrCodeCapture, fmt.Sprintf("%s: %v", op, r)))
	}
}

func (c *Controller) putSnapshot(rec revision.IRecord, s *revision.Snapshot) {
	if holder, ok := rec.(revision.ISnapshotHolder); ok {
		holder.SetRevisionSnapshot(s)
		return
	}
	c.pendingMu.Lock()
	c.pending[pendingKey(rec)] = s
	c.pendingMu.Unlock()
}

// takeSnapshot 取出并清除快照
func (c *Controller) takeSnapshot(rec revision.IRecord) *revision.Snapshot {
	if holder, ok := rec.(revision.ISnapshotHolder); ok {
		s := holder.RevisionSnapshot()
		holder.SetRevisionSnapshot(nil)
		return s
	}
	key := pendingKey(rec)
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	s := c.pending[key]
	delete(c.pending, key)
	return s
}

func (c *Controller) dropPending(key string) {
	c.pendingMu.Lock()
	delete(c.pending, key)
	c.pendingMu.Unlock()
}

// pendingKey 指针记录以自身为键，主键在提交时变化也能取回快照
func pendingKey(rec revision.IRecord) any {
	if reflect.ValueOf(rec).Kind() == reflect.Pointer {
		return rec
	}
	return rec.SubjectType() + ":" + rec.SubjectID()
}

func runtimeExclusions(rec revision.IRecord) []string {
	if ex, ok := rec.(revision.IRuntimeExclusions); ok {
		return ex.RevisionExcludedFields()
	}
	return nil
}

func toSet(keys []string) map[string]struct{} {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}

// text 把属性值转为修订文本，nil 保持为 nil
func text(v any) *string {
	s, ok := revision.Stringify(v)
	if !ok {
		return revision.StringPtr(fmt.Sprint(v))
	}
	return s
}
