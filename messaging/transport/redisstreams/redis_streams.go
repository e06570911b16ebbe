// Package redisstreams 基于 Redis Streams 的消息传输
//
// 每种消息类型对应一个 stream（前缀 + 类型），发布用 XADD，
// 订阅端以消费组读取并在处理后 XACK。
package redisstreams

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"revtrail/errors"
	"revtrail/logging"
	"revtrail/messaging"
)

// client go-redis 命令子集，便于测试替换
type client interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	Close() error
}

// Config Redis Streams 传输配置
type Config struct {
	Client       redis.UniversalClient
	Addr         string `mapstructure:"addr"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	StreamPrefix string `mapstructure:"stream_prefix"`
	GroupName    string `mapstructure:"group"`
	ConsumerName string `mapstructure:"consumer"`
	// MaxLen 每个 stream 的近似最大长度，0 表示不裁剪
	MaxLen       int64         `mapstructure:"max_len"`
	BlockTimeout time.Duration `mapstructure:"block_timeout"`
	ReadCount    int64         `mapstructure:"read_count"`
	Logger       logging.Logger

	MinReadBackoff time.Duration // 读取失败最小退避，默认 100ms
	MaxReadBackoff time.Duration // 读取失败最大退避，默认 5s
}

// Transport messaging.Transport 的 Redis Streams 实现
type Transport struct {
	cfg       Config
	client    client
	ownClient bool
	logger    logging.Logger

	handlers map[string][]messaging.IMessageHandler
	readers  map[string]bool

	mu      sync.RWMutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewTransport 创建传输；未提供 Client 时按 Addr 自建连接并在 Close 时关闭
func NewTransport(cfg Config) (*Transport, error) {
	if cfg.StreamPrefix == "" {
		cfg.StreamPrefix = "revtrail:"
	}
	if cfg.GroupName == "" {
		cfg.GroupName = "revtrail"
	}
	if cfg.ConsumerName == "" {
		cfg.ConsumerName = "consumer-" + uuid.NewString()
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = 5 * time.Second
	}
	if cfg.ReadCount <= 0 {
		cfg.ReadCount = 10
	}
	if cfg.MinReadBackoff <= 0 {
		cfg.MinReadBackoff = 100 * time.Millisecond
	}
	if cfg.MaxReadBackoff <= 0 {
		cfg.MaxReadBackoff = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.ComponentLogger("transport.redisstreams")
	}

	t := &Transport{
		cfg:      cfg,
		logger:   cfg.Logger,
		handlers: make(map[string][]messaging.IMessageHandler),
		readers:  make(map[string]bool),
	}
	switch {
	case cfg.Client != nil:
		t.client = cfg.Client
	case cfg.Addr != "":
		t.client = redis.NewClient(&redis.Options{Addr: cfg.Addr, Username: cfg.Username, Password: cfg.Password, DB: cfg.DB})
		t.ownClient = true
	default:
		return nil, errors.NewError(errors.ErrCodeInvalidInput, "redis client or addr is required")
	}
	return t, nil
}

// Publish XADD 一条消息
func (t *Transport) Publish(ctx context.Context, message messaging.IMessage) error {
	values, err := encodeMessage(message)
	if err != nil {
		return errors.WrapError(err, errors.ErrCodeQueue, "encode message")
	}
	args := &redis.XAddArgs{Stream: t.streamName(message.GetType()), Values: values}
	if t.cfg.MaxLen > 0 {
		args.MaxLen = t.cfg.MaxLen
		args.Approx = true
	}
	if err := t.client.XAdd(ctx, args).Err(); err != nil {
		return errors.WrapError(err, errors.ErrCodeQueue, "xadd "+args.Stream)
	}
	return nil
}

// PublishAll 逐条发布，Redis Streams 不支持一次追加多条
func (t *Transport) PublishAll(ctx context.Context, messages []messaging.IMessage) error {
	for _, msg := range messages {
		if err := t.Publish(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe 注册处理器；运行中注册会立即启动该类型的读取协程
func (t *Transport) Subscribe(messageType string, handler messaging.IMessageHandler) error {
	if messageType == messaging.WildcardType {
		return errors.NewError(errors.ErrCodeInvalidInput, "redis streams transport requires a concrete message type")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[messageType] = append(t.handlers[messageType], handler)
	if t.running {
		t.startReaderLocked(messageType)
	}
	return nil
}

// Unsubscribe 移除处理器，不存在时忽略
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
	return nil
}

// Start 为每个已订阅类型启动读取协程
func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return errors.NewError(errors.ErrCodeQueue, "redis streams transport already running")
	}
	t.ctx, t.cancel = context.WithCancel(ctx)
	for mt := range t.handlers {
		t.startReaderLocked(mt)
	}
	t.running = true
	return nil
}

// Close 停止读取协程，并关闭自建的连接
func (t *Transport) Close() error {
	t.mu.Lock()
	cancel := t.cancel
	t.running = false
	t.cancel = nil
	t.readers = make(map[string]bool)
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	t.wg.Wait()
	if t.ownClient {
		return t.client.Close()
	}
	return nil
}

// Stats 返回处理器与 stream 信息
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

func (t *Transport) startReaderLocked(messageType string) {
	if t.readers[messageType] {
		return
	}
	t.readers[messageType] = true
	t.wg.Add(1)
	go t.readLoop(t.ctx, messageType)
}

func (t *Transport) readLoop(ctx context.Context, messageType string) {
	defer t.wg.Done()
	stream := t.streamName(messageType)
	if err := t.ensureGroup(ctx, stream); err != nil {
		t.logger.Warn(ctx, "创建消费组失败", logging.String("stream", stream), logging.Error(err))
	}
	args := &redis.XReadGroupArgs{
		Group:    t.cfg.GroupName,
		Consumer: t.cfg.ConsumerName,
		Streams:  []string{stream, ">"},
		Count:    t.cfg.ReadCount,
		Block:    t.cfg.BlockTimeout,
	}
	backoff := t.cfg.MinReadBackoff
	for ctx.Err() == nil {
		res, err := t.client.XReadGroup(ctx, args).Result()
		if err != nil {
			if stdErrors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			t.logger.Warn(ctx, "读取 stream 失败", logging.String("stream", stream),
				logging.Duration("backoff", backoff), logging.Error(err))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			backoff = min(backoff*2, t.cfg.MaxReadBackoff)
			continue
		}
		backoff = t.cfg.MinReadBackoff
		for _, streamRes := range res {
			for _, entry := range streamRes.Messages {
				t.handleEntry(ctx, streamRes.Stream, messageType, entry)
			}
		}
	}
}

// handleEntry 解码并分发一条记录；无法解码的记录直接确认，避免反复投递
func (t *Transport) handleEntry(ctx context.Context, stream, messageType string, entry redis.XMessage) {
	msg, err := decodeMessage(entry)
	if err != nil {
		t.logger.Warn(ctx, "解码 stream 记录失败", logging.String("entry", entry.ID), logging.Error(err))
	} else {
		if msg.Type == "" {
			msg.Type = messageType
		}
		t.mu.RLock()
		handlers := append([]messaging.IMessageHandler(nil), t.handlers[messageType]...)
		t.mu.RUnlock()
		if err := messaging.Dispatch(ctx, msg, handlers, nil); err != nil {
			t.logger.Warn(ctx, "处理消息失败", logging.String("id", msg.ID), logging.Error(err))
		}
	}
	if err := t.client.XAck(ctx, stream, t.cfg.GroupName, entry.ID).Err(); err != nil {
		t.logger.Warn(ctx, "xack 失败", logging.String("entry", entry.ID), logging.Error(err))
	}
}

func (t *Transport) ensureGroup(ctx context.Context, stream string) error {
	err := t.client.XGroupCreateMkStream(ctx, stream, t.cfg.GroupName, "0").Err()
	if err == nil || strings.Contains(strings.ToUpper(err.Error()), "BUSYGROUP") {
		return nil
	}
	return err
}

func (t *Transport) streamName(messageType string) string {
	return t.cfg.StreamPrefix + messageType
}

func encodeMessage(msg messaging.IMessage) (map[string]any, error) {
	payload, err := json.Marshal(msg.GetPayload())
	if err != nil {
		return nil, err
	}
	metadata, err := json.Marshal(msg.GetMetadata())
	if err != nil {
		return nil, err
	}
	ts := msg.GetTimestamp()
	if ts.IsZero() {
		ts = time.Now()
	}
	return map[string]any{
		"id":        msg.GetID(),
		"type":      msg.GetType(),
		"timestamp": strconv.FormatInt(ts.UnixNano(), 10),
		"payload":   string(payload),
		"metadata":  string(metadata),
	}, nil
}

// decodeMessage Payload 保持为 json.RawMessage，由 messaging.DecodePayload 还原
func decodeMessage(entry redis.XMessage) (*messaging.Message, error) {
	id, _ := entry.Values["id"].(string)
	msgType, _ := entry.Values["type"].(string)
	payloadRaw, _ := entry.Values["payload"].(string)
	metadataRaw, _ := entry.Values["metadata"].(string)

	if payloadRaw != "" && !json.Valid([]byte(payloadRaw)) {
		return nil, errors.NewError(errors.ErrCodeQueue, "invalid payload json")
	}
	metadata := make(map[string]any)
	if metadataRaw != "" {
		if err := json.Unmarshal([]byte(metadataRaw), &metadata); err != nil {
			return nil, err
		}
	}

	ts := time.Now()
	switch v := entry.Values["timestamp"].(type) {
	case int64:
		ts = time.Unix(0, v)
	case string:
		if ns, err := strconv.ParseInt(v, 10, 64); err == nil {
			ts = time.Unix(0, ns)
		}
	}
	if id == "" {
		id = entry.ID
	}

	return &messaging.Message{
		ID:        id,
		Type:      msgType,
		Timestamp: ts,
		Payload:   json.RawMessage(payloadRaw),
		Metadata:  metadata,
	}, nil
}
