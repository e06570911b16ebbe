package messaging

import (
	"context"
)

// IMessageHandler 消息处理器接口
type IMessageHandler interface {
	// Handle 处理消息
	Handle(ctx context.Context, message IMessage) error

	// Type 返回处理器类型（用于日志和调试）
	Type() string
}

// HandlerFunc 函数适配器
type HandlerFunc func(ctx context.Context, message IMessage) error

// NewHandler 用函数创建处理器，name 用于日志
func NewHandler(name string, fn HandlerFunc) IMessageHandler {
	return &funcHandler{name: name, fn: fn}
}

type funcHandler struct {
	name string
	fn   HandlerFunc
}

func (h *funcHandler) Handle(ctx context.Context, message IMessage) error {
	return h.fn(ctx, message)
}

func (h *funcHandler) Type() string { return h.name }

// Dispatch 依次调用精确匹配与通配的处理器，返回第一个错误
func Dispatch(ctx context.Context, message IMessage, exact, wildcard []IMessageHandler) error {
	var first error
	for _, group := range [][]IMessageHandler{exact, wildcard} {
		for _, h := range group {
			if err := h.Handle(ctx, message); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}
