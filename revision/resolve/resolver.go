// Package resolve 把修订中的原始值渲染为可读文本
//
// 解析顺序：空值 → NullString；外键字段 → 关联实体的显示名称；
// 普通字段 → mutator 或字段格式化规则。关联查找失败只记录日志并退化为普通字段处理，
// 对调用方只会返回格式化解析错误。
package resolve

import (
	"context"
	"strings"
	"time"

	"revtrail/cache"
	"revtrail/errors"
	"revtrail/logging"
	"revtrail/revision"
	"revtrail/revision/format"
)

// ModelRepository 宿主模型仓储
type ModelRepository interface {
	// FindByID 按类型与主键查找实体，不存在时返回 (nil, nil) 或 NOT_FOUND 错误
	FindByID(ctx context.Context, subjectType, id string) (any, error)

	// RelationAccessor 返回 subjectType 上名为 relation 的关联所指向的类型
	RelationAccessor(subjectType, relation string) (relatedType string, ok bool)
}

// IPrototypeProvider 可选能力：返回类型的空实例，用于查找实体级 IValueMutator
type IPrototypeProvider interface {
	Prototype(subjectType string) (any, bool)
}

// Options 解析器配置
type Options struct {
	Registry  *revision.Registry
	Models    ModelRepository
	Formatter *format.Formatter
	Logger    logging.Logger

	// CacheSize 关联名称缓存条目上限，默认 1024
	CacheSize int
	// CacheTTL 关联名称缓存时长，默认 5 分钟；负数关闭缓存
	CacheTTL time.Duration
}

// relatedEntry 关联查找结果，found 为 false 表示实体不存在
type relatedEntry struct {
	name  string
	found bool
}

// Resolver 修订值解析器，并发安全
type Resolver struct {
	registry  *revision.Registry
	models    ModelRepository
	formatter *format.Formatter
	logger    logging.Logger
	names     *cache.Cache[string, relatedEntry]
}

// NewResolver 创建解析器
func NewResolver(opts Options) *Resolver {
	if opts.Registry == nil {
		opts.Registry = revision.NewRegistry(revision.DefaultConfig())
	}
	if opts.Formatter == nil {
		opts.Formatter = format.Default()
	}
	if opts.Logger == nil {
		opts.Logger = logging.ComponentLogger("revision.resolve")
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 1024
	}
	if opts.CacheTTL == 0 {
		opts.CacheTTL = 5 * time.Minute
	}

	r := &Resolver{
		registry:  opts.Registry,
		models:    opts.Models,
		formatter: opts.Formatter,
		logger:    opts.Logger,
	}
	if opts.CacheTTL > 0 {
		r.names = cache.New[string, relatedEntry](cache.Config{
			Name:    "revision.related-names",
			MaxSize: opts.CacheSize,
			TTL:     opts.CacheTTL,
		})
	}
	return r
}

// Resolve 解析修订的旧值或新值
//
// 返回错误时（仅格式化解析错误）第一个返回值为原始值。
func (r *Resolver) Resolve(ctx context.Context, rev *revision.Revision, which revision.Which) (string, error) {
	policy := r.registry.Policy(rev.SubjectType)
	raw := rev.Value(which)
	if raw == nil || *raw == "" {
		return policy.NullString, nil
	}

	if relatedType, ok := r.relationOf(rev.SubjectType, rev.Key, policy); ok {
		value, err := r.resolveRelated(ctx, rev, policy, relatedType, *raw)
		if err == nil {
			return value, nil
		}
		if errors.IsFormatParse(err) {
			return *raw, err
		}
		r.logger.Warn(ctx, "关联解析失败，按普通字段展示",
			logging.String("subject", rev.SubjectRef()),
			logging.String("key", rev.Key),
			logging.String("related_type", relatedType),
			logging.Error(err))
	}

	var value any = *raw
	if mutate, ok := policy.Mutators[rev.Key]; ok && mutate != nil {
		value = mutate(value)
	} else if m, ok := r.prototypeMutator(rev.SubjectType); ok {
		if mutated, handled := m.MutateRevisionValue(rev.Key, value); handled {
			value = mutated
		}
	}
	return r.format(rev, policy, value, *raw)
}

// resolveRelated 查找关联实体的显示名称
func (r *Resolver) resolveRelated(ctx context.Context, rev *revision.Revision, policy revision.Policy, relatedType, id string) (string, error) {
	entry, err := r.lookup(ctx, relatedType, id)
	if err != nil {
		return "", errors.NewRelationError(rev.SubjectType, rev.Key, err)
	}
	if !entry.found {
		return r.format(rev, policy, policy.UnknownString, id)
	}
	return r.format(rev, policy, entry.name, id)
}

func (r *Resolver) lookup(ctx context.Context, relatedType, id string) (relatedEntry, error) {
	if r.models == nil {
		return relatedEntry{}, errors.NewError(errors.ErrCodeRelationResolution, "未配置模型仓储")
	}
	load := func() (relatedEntry, error) {
		item, err := r.models.FindByID(ctx, relatedType, id)
		if err != nil {
			if errors.IsNotFound(err) {
				return relatedEntry{}, nil
			}
			return relatedEntry{}, err
		}
		if item == nil {
			return relatedEntry{}, nil
		}
		if named, ok := item.(revision.IIdentifiable); ok {
			return relatedEntry{name: named.IdentifiableName(), found: true}, nil
		}
		return relatedEntry{name: id, found: true}, nil
	}
	if r.names == nil {
		return load()
	}
	return r.names.GetOrLoad(relatedType+":"+id, load)
}

// relationOf 判断字段是否为外键并返回关联类型
//
// 关联名取自 Policy.Relations，未配置时按 "<关联>_id" 约定推导；
// 关联类型一律经 RelationAccessor 取得，依次尝试原名与驼峰名。
// 关联不存在时按普通字段处理。
func (r *Resolver) relationOf(subjectType, key string, policy revision.Policy) (string, bool) {
	if r.models == nil {
		return "", false
	}
	name := policy.Relations[key]
	if name == "" {
		base, ok := strings.CutSuffix(key, "_id")
		if !ok || base == "" {
			return "", false
		}
		name = base
	}
	if t, ok := r.models.RelationAccessor(subjectType, name); ok {
		return t, true
	}
	if camel := camelCase(name); camel != name {
		return r.models.RelationAccessor(subjectType, camel)
	}
	return "", false
}

func (r *Resolver) prototypeMutator(subjectType string) (revision.IValueMutator, bool) {
	provider, ok := r.models.(IPrototypeProvider)
	if !ok {
		return nil, false
	}
	proto, ok := provider.Prototype(subjectType)
	if !ok {
		return nil, false
	}
	m, ok := proto.(revision.IValueMutator)
	return m, ok
}

// format 应用字段格式化规则，失败时返回原始值与 FORMAT_PARSE_ERROR
func (r *Resolver) format(rev *revision.Revision, policy revision.Policy, value any, raw string) (string, error) {
	out, err := r.formatter.Format(rev.Key, value, policy.Formats)
	if err != nil {
		if !errors.IsFormatParse(err) {
			err = errors.NewFormatParseError(policy.Formats[rev.Key], value, err)
		}
		return raw, err
	}
	return format.ToString(out), nil
}

// OldValue 旧值的展示文本，不返回错误
func (r *Resolver) OldValue(ctx context.Context, rev *revision.Revision) string {
	return r.mustResolve(ctx, rev, revision.Old)
}

// NewValue 新值的展示文本，不返回错误
func (r *Resolver) NewValue(ctx context.Context, rev *revision.Revision) string {
	return r.mustResolve(ctx, rev, revision.New)
}

func (r *Resolver) mustResolve(ctx context.Context, rev *revision.Revision, which revision.Which) string {
	s, err := r.Resolve(ctx, rev, which)
	if err != nil {
		r.logger.Debug(ctx, "格式化失败，展示原始值",
			logging.String("subject", rev.SubjectRef()),
			logging.String("key", rev.Key),
			logging.String("which", which.String()),
			logging.Error(err))
	}
	return s
}

// Forget 丢弃关联实体的缓存名称，宿主在实体改名或删除后调用
func (r *Resolver) Forget(relatedType, id string) {
	if r.names != nil {
		r.names.Delete(relatedType + ":" + id)
	}
}

// FieldName 字段展示名
func (r *Resolver) FieldName(rev *revision.Revision) string {
	return r.registry.Policy(rev.SubjectType).FieldName(rev.Key)
}

// Describe 生成修订描述
//
// 旧值为真值时为 "Changed k from a to b"，否则为 "Initialised k with b"。
func (r *Resolver) Describe(ctx context.Context, rev *revision.Revision) string {
	if rev.OldValue != nil && format.Truthy(*rev.OldValue) {
		return "Changed " + rev.Key + " from " + r.OldValue(ctx, rev) + " to " + r.NewValue(ctx, rev)
	}
	return "Initialised " + rev.Key + " with " + r.NewValue(ctx, rev)
}

// Subject 查找修订所属的主体，不存在时 found 为 false
func (r *Resolver) Subject(ctx context.Context, rev *revision.Revision) (subject any, found bool, err error) {
	return r.find(ctx, rev.SubjectType, rev.SubjectID)
}

// Actor 查找执行变更的操作者
//
// 未记录 user_id 时 found 为 false；未记录 user_type 时使用 Config.DefaultModel。
func (r *Resolver) Actor(ctx context.Context, rev *revision.Revision) (actor any, found bool, err error) {
	id := revision.Deref(rev.ActorID)
	if id == "" {
		return nil, false, nil
	}
	actorType := revision.Deref(rev.ActorType)
	if actorType == "" {
		actorType = r.registry.Config().DefaultModel
	}
	return r.find(ctx, actorType, id)
}

func (r *Resolver) find(ctx context.Context, subjectType, id string) (any, bool, error) {
	if r.models == nil || subjectType == "" {
		return nil, false, nil
	}
	item, err := r.models.FindByID(ctx, subjectType, id)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, errors.WrapError(err, errors.ErrCodeRelationResolution, "find "+subjectType)
	}
	return item, item != nil, nil
}

// camelCase published_status → publishedStatus
func camelCase(s string) string {
	parts := strings.Split(s, "_")
	var b strings.Builder
	b.Grow(len(s))
	for i, p := range parts {
		if p == "" {
			continue
		}
		if i == 0 || b.Len() == 0 {
			b.WriteString(p)
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]) + p[1:])
	}
	return b.String()
}
