// Package natsjetstream 基于 NATS JetStream 的消息传输
//
// 所有消息写入同一个 stream，subject 为前缀 + 消息类型；订阅端使用 durable 队列消费者。
package natsjetstream

import (
	"context"
	stdErrors "errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"revtrail/errors"
	"revtrail/logging"
	"revtrail/messaging"
)

// Config JetStream 传输配置
type Config struct {
	URL           string        `mapstructure:"url"`
	Stream        string        `mapstructure:"stream"`
	SubjectPrefix string        `mapstructure:"subject_prefix"`
	DurablePrefix string        `mapstructure:"durable_prefix"`
	AckWait       time.Duration `mapstructure:"ack_wait"`
	MaxAckPending int           `mapstructure:"max_ack_pending"`
	// Retention limits|interest|workqueue，默认 limits（审计通知允许多个消费者各自读取）
	Retention string `mapstructure:"retention"`
	// MaxAge 消息保留时长，0 表示不限制
	MaxAge time.Duration `mapstructure:"max_age"`
	Logger logging.Logger
	Conn   *nats.Conn
}

// jetStream JetStreamContext 子集，便于测试替换
type jetStream interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
	StreamInfo(stream string, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	AddStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	QueueSubscribe(subj, queue string, cb nats.MsgHandler, opts ...nats.SubOpt) (*nats.Subscription, error)
}

// Transport messaging.Transport 的 JetStream 实现
type Transport struct {
	cfg      Config
	logger   logging.Logger
	conn     *nats.Conn
	js       jetStream
	ownsConn bool

	handlers map[string][]messaging.IMessageHandler
	subs     map[string]*nats.Subscription

	mu      sync.RWMutex
	running bool
}

// NewTransport 创建传输，连接在 Start 时建立
func NewTransport(cfg Config) *Transport {
	if cfg.Stream == "" {
		cfg.Stream = "REVTRAIL"
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "revtrail."
	}
	if cfg.DurablePrefix == "" {
		cfg.DurablePrefix = "revtrail-"
	}
	if cfg.AckWait <= 0 {
		cfg.AckWait = 30 * time.Second
	}
	if cfg.MaxAckPending <= 0 {
		cfg.MaxAckPending = 1024
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.ComponentLogger("transport.nats")
	}
	return &Transport{
		cfg:      cfg,
		logger:   cfg.Logger,
		handlers: make(map[string][]messaging.IMessageHandler),
		subs:     make(map[string]*nats.Subscription),
	}
}

// Publish 发布一条消息，消息 ID 作为 JetStream 去重 ID
func (t *Transport) Publish(ctx context.Context, message messaging.IMessage) error {
	t.mu.RLock()
	js := t.js
	running := t.running
	t.mu.RUnlock()
	if !running || js == nil {
		return errors.NewError(errors.ErrCodeQueue, "nats transport not running")
	}
	data, err := messaging.Marshal(message)
	if err != nil {
		return errors.WrapError(err, errors.ErrCodeQueue, "encode message")
	}
	opts := []nats.PubOpt{nats.Context(ctx)}
	if id := message.GetID(); id != "" {
		opts = append(opts, nats.MsgId(id))
	}
	if _, err := js.Publish(t.subjectName(message.GetType()), data, opts...); err != nil {
		return errors.WrapError(err, errors.ErrCodeQueue, "publish "+message.GetType())
	}
	return nil
}

// PublishAll 逐条发布
func (t *Transport) PublishAll(ctx context.Context, messages []messaging.IMessage) error {
	for _, msg := range messages {
		if err := t.Publish(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe 注册处理器；运行中注册会立即创建订阅
func (t *Transport) Subscribe(messageType string, handler messaging.IMessageHandler) error {
	if messageType == messaging.WildcardType {
		return errors.NewError(errors.ErrCodeInvalidInput, "nats transport requires a concrete message type")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[messageType] = append(t.handlers[messageType], handler)
	if t.running {
		return t.subscribeLocked(messageType)
	}
	return nil
}

// Unsubscribe 移除处理器，类型下没有处理器时排空订阅
func (t *Transport) Unsubscribe(messageType string, handler messaging.IMessageHandler) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	handlers := t.handlers[messageType]
	for i, h := range handlers {
		if h == handler {
			t.handlers[messageType] = append(handlers[:i:i], handlers[i+1:]...)
			break
		}
	}
	if len(t.handlers[messageType]) == 0 {
		if sub, ok := t.subs[messageType]; ok {
			_ = sub.Drain()
			delete(t.subs, messageType)
		}
	}
	return nil
}

// Start 建立连接、确保 stream 存在并创建订阅
func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return errors.NewError(errors.ErrCodeQueue, "nats transport already running")
	}
	if err := t.ensureConnection(); err != nil {
		return errors.WrapError(err, errors.ErrCodeQueue, "connect nats")
	}
	if err := t.ensureStream(); err != nil {
		return errors.WrapError(err, errors.ErrCodeQueue, "ensure stream "+t.cfg.Stream)
	}
	for mt := range t.handlers {
		if err := t.subscribeLocked(mt); err != nil {
			return err
		}
	}
	t.running = true
	return nil
}

// Close 排空订阅并关闭自建连接
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = false
	for mt, sub := range t.subs {
		_ = sub.Drain()
		delete(t.subs, mt)
	}
	if t.ownsConn && t.conn != nil {
		t.conn.Close()
	}
	t.conn = nil
	t.js = nil
	return nil
}

// Stats 返回处理器信息
func (t *Transport) Stats() messaging.TransportStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	handlerCount := 0
	types := make([]string, 0, len(t.handlers))
	for mt, hs := range t.handlers {
		handlerCount += len(hs)
		types = append(types, mt)
	}
	sort.Strings(types)
	return messaging.TransportStats{Running: t.running, HandlerCount: handlerCount, MessageTypes: types}
}

func (t *Transport) ensureConnection() error {
	if t.js != nil {
		return nil
	}
	if t.cfg.Conn != nil {
		t.conn = t.cfg.Conn
	} else {
		url := t.cfg.URL
		if url == "" {
			url = nats.DefaultURL
		}
		conn, err := nats.Connect(url, nats.Name("revtrail"))
		if err != nil {
			return err
		}
		t.conn = conn
		t.ownsConn = true
	}
	js, err := t.conn.JetStream()
	if err != nil {
		return err
	}
	t.js = js
	return nil
}

func (t *Transport) ensureStream() error {
	_, err := t.js.StreamInfo(t.cfg.Stream)
	if err == nil {
		return nil
	}
	if !stdErrors.Is(err, nats.ErrStreamNotFound) && !strings.Contains(err.Error(), "stream not found") {
		return err
	}
	_, err = t.js.AddStream(t.streamConfig())
	return err
}

func (t *Transport) streamConfig() *nats.StreamConfig {
	retention := nats.LimitsPolicy
	switch strings.ToLower(t.cfg.Retention) {
	case "interest":
		retention = nats.InterestPolicy
	case "workqueue":
		retention = nats.WorkQueuePolicy
	}
	return &nats.StreamConfig{
		Name:              t.cfg.Stream,
		Subjects:          []string{t.cfg.SubjectPrefix + ">"},
		Retention:         retention,
		MaxAge:            t.cfg.MaxAge,
		MaxMsgsPerSubject: -1,
	}
}

func (t *Transport) subscribeLocked(messageType string) error {
	if _, exists := t.subs[messageType]; exists {
		return nil
	}
	durable := t.durableName(messageType)
	sub, err := t.js.QueueSubscribe(t.subjectName(messageType), durable, t.handleMessage(messageType),
		nats.ManualAck(),
		nats.Durable(durable),
		nats.AckWait(t.cfg.AckWait),
		nats.MaxAckPending(t.cfg.MaxAckPending))
	if err != nil {
		return errors.WrapError(err, errors.ErrCodeQueue, "subscribe "+messageType)
	}
	t.subs[messageType] = sub
	return nil
}

// handleMessage 解码失败的消息直接确认，处理失败的消息 Nak 以便重投
func (t *Transport) handleMessage(messageType string) nats.MsgHandler {
	return func(msg *nats.Msg) {
		ctx := context.Background()
		decoded, err := messaging.Unmarshal(msg.Data)
		if err != nil {
			t.logger.Warn(ctx, "解码 nats 消息失败", logging.String("subject", msg.Subject), logging.Error(err))
			_ = msg.Ack()
			return
		}
		if decoded.Type == "" {
			decoded.Type = messageType
		}
		if err := t.dispatch(ctx, messageType, decoded); err != nil {
			t.logger.Warn(ctx, "处理消息失败", logging.String("id", decoded.ID), logging.Error(err))
			_ = msg.Nak()
			return
		}
		if err := msg.Ack(); err != nil {
			t.logger.Warn(ctx, "nats ack 失败", logging.Error(err))
		}
	}
}

func (t *Transport) dispatch(ctx context.Context, messageType string, message messaging.IMessage) error {
	t.mu.RLock()
	handlers := append([]messaging.IMessageHandler(nil), t.handlers[messageType]...)
	t.mu.RUnlock()
	return messaging.Dispatch(ctx, message, handlers, nil)
}

func (t *Transport) subjectName(messageType string) string {
	return t.cfg.SubjectPrefix + messageType
}

// durableName durable 名称不能包含 '.'
func (t *Transport) durableName(messageType string) string {
	return t.cfg.DurablePrefix + strings.ReplaceAll(messageType, ".", "-")
}
