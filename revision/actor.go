package revision

import "context"

// Actor 执行变更的操作者
type Actor struct {
	ID   string
	Type string
	Name string
}

// ActorResolver 提供当前操作者，没有时返回 false
type ActorResolver interface {
	CurrentActor(ctx context.Context) (Actor, bool)
}

// ActorResolverFunc 函数适配器
type ActorResolverFunc func(ctx context.Context) (Actor, bool)

func (f ActorResolverFunc) CurrentActor(ctx context.Context) (Actor, bool) {
	return f(ctx)
}

type ctxKey int

const (
	actorKey ctxKey = iota
	ipKey
)

// WithActor 在上下文中记录当前操作者
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext 读取上下文中的操作者
func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey).(Actor)
	return a, ok && a.ID != ""
}

// WithIP 在上下文中记录请求来源 IP
func WithIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ipKey, ip)
}

// IPFromContext 读取上下文中的 IP
func IPFromContext(ctx context.Context) (string, bool) {
	ip, ok := ctx.Value(ipKey).(string)
	return ip, ok && ip != ""
}

// ContextActorResolver 从上下文读取操作者的默认实现
type ContextActorResolver struct{}

func (ContextActorResolver) CurrentActor(ctx context.Context) (Actor, bool) {
	return ActorFromContext(ctx)
}
