// Package sync 提供同步的进程内消息传输
//
// Publish 在调用方 goroutine 中直接执行处理器，适合嵌入式部署和测试。
package sync

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"revtrail/errors"
	"revtrail/messaging"
)

// SyncTransport 同步内存传输
type SyncTransport struct {
	handlers map[string][]messaging.IMessageHandler
	mutex    sync.RWMutex
	running  bool
}

// NewSyncTransport 创建同步传输
func NewSyncTransport() *SyncTransport {
	return &SyncTransport{
		handlers: make(map[string][]messaging.IMessageHandler),
	}
}

// Publish 同步调用匹配的处理器，没有处理器时不算错误
func (t *SyncTransport) Publish(ctx context.Context, message messaging.IMessage) error {
	t.mutex.RLock()
	if !t.running {
		t.mutex.RUnlock()
		return errors.NewError(errors.ErrCodeQueue, "sync transport is not running")
	}
	exact := append([]messaging.IMessageHandler(nil), t.handlers[message.GetType()]...)
	wildcard := append([]messaging.IMessageHandler(nil), t.handlers[messaging.WildcardType]...)
	t.mutex.RUnlock()

	if err := messaging.Dispatch(ctx, message, exact, wildcard); err != nil {
		return errors.WrapError(err, errors.ErrCodeQueue, "handle "+message.GetType())
	}
	return nil
}

// PublishAll 批量发布，遇到错误即停止
func (t *SyncTransport) PublishAll(ctx context.Context, messages []messaging.IMessage) error {
	for _, message := range messages {
		if err := t.Publish(ctx, message); err != nil {
			return fmt.Errorf("publish message %s: %w", message.GetID(), err)
		}
	}
	return nil
}

// Subscribe 订阅消息类型，messaging.WildcardType 订阅全部
func (t *SyncTransport) Subscribe(messageType string, handler messaging.IMessageHandler) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.handlers[messageType] = append(t.handlers[messageType], handler)
	return nil
}

// Unsubscribe 取消订阅
func (t *SyncTransport) Unsubscribe(messageType string, handler messaging.IMessageHandler) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	handlers := t.handlers[messageType]
	for i, h := range handlers {
		if h == handler {
			t.handlers[messageType] = append(handlers[:i:i], handlers[i+1:]...)
			return nil
		}
	}
	return errors.NewNotFoundError("handler %s for %s", handler.Type(), messageType)
}

// Start 启动传输层
func (t *SyncTransport) Start(ctx context.Context) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.running {
		return errors.NewError(errors.ErrCodeQueue, "sync transport is already running")
	}
	t.running = true
	return nil
}

// Close 关闭传输层，重复关闭无副作用
func (t *SyncTransport) Close() error {
	t.mutex.Lock()
	t.running = false
	t.mutex.Unlock()
	return nil
}

// Stats 返回统计信息
func (t *SyncTransport) Stats() messaging.TransportStats {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	handlerCount := 0
	messageTypes := make([]string, 0, len(t.handlers))
	for mt, h := range t.handlers {
		messageTypes = append(messageTypes, mt)
		handlerCount += len(h)
	}
	sort.Strings(messageTypes)

	return messaging.TransportStats{
		Running:      t.running,
		HandlerCount: handlerCount,
		MessageTypes: messageTypes,
	}
}
