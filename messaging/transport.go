package messaging

import (
	"context"
)

// Publisher 只负责发送的一端，采集控制器只依赖它
type Publisher interface {
	Publish(ctx context.Context, message IMessage) error
}

// Transport 消息传输接口
type Transport interface {
	Publisher
	PublishAll(ctx context.Context, messages []IMessage) error
	Subscribe(messageType string, handler IMessageHandler) error
	Unsubscribe(messageType string, handler IMessageHandler) error
	Start(ctx context.Context) error
	Close() error
	Stats() TransportStats
}

// TransportStats 传输层统计信息
type TransportStats struct {
	Running      bool     `json:"running"`
	HandlerCount int      `json:"handler_count"`
	MessageTypes []string `json:"message_types"`
}

// WildcardType 订阅全部消息类型
const WildcardType = "*"
