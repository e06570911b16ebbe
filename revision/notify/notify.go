// Package notify 在修订写入成功后发布 revision.recorded 消息
package notify

import (
	"context"
	"time"

	"revtrail/errors"
	"revtrail/logging"
	"revtrail/messaging"
	"revtrail/patterns/retry"
	"revtrail/revision"
)

// MessageType 修订写入通知的消息类型
const MessageType = "revision.recorded"

// Recorded 通知载荷：一个批次的全部修订
type Recorded struct {
	SubjectType string               `json:"revisionable_type"`
	SubjectID   string               `json:"revisionable_id"`
	RevisionID  string               `json:"revision_id"`
	RecordedAt  time.Time            `json:"recorded_at"`
	Revisions   []*revision.Revision `json:"revisions"`
}

// NewMessage 把一个批次包装为消息，消息 ID 使用批次的 RevisionID
func NewMessage(revs []*revision.Revision) (*messaging.Message, error) {
	if len(revs) == 0 {
		return nil, errors.NewError(errors.ErrCodeInvalidInput, "empty revision batch")
	}
	first := revs[0]
	payload := Recorded{
		SubjectType: first.SubjectType,
		SubjectID:   first.SubjectID,
		RevisionID:  first.RevisionID,
		RecordedAt:  first.CreatedAt,
		Revisions:   revs,
	}
	msg := messaging.NewMessage(first.RevisionID, MessageType, payload)
	msg.Timestamp = first.CreatedAt
	msg.SetMetadata("subject", first.SubjectRef())
	msg.SetMetadata("count", len(revs))
	return msg, nil
}

// Decode 从消息还原载荷
func Decode(msg messaging.IMessage) (*Recorded, error) {
	if msg.GetType() != MessageType {
		return nil, errors.NewError(errors.ErrCodeInvalidInput, "unexpected message type "+msg.GetType())
	}
	if payload, ok := msg.GetPayload().(Recorded); ok {
		return &payload, nil
	}
	var out Recorded
	if err := messaging.DecodePayload(msg, &out); err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeInvalidInput, "decode revision.recorded payload")
	}
	return &out, nil
}

// Notifier 带重试的发布器，失败只记录日志
type Notifier struct {
	publisher messaging.Publisher
	retry     retry.Config
	logger    logging.Logger
}

// Option Notifier 选项
type Option func(*Notifier)

// WithRetry 设置重试策略
func WithRetry(cfg retry.Config) Option {
	return func(n *Notifier) { n.retry = cfg }
}

// WithLogger 设置日志
func WithLogger(logger logging.Logger) Option {
	return func(n *Notifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// NewNotifier 创建通知器
func NewNotifier(publisher messaging.Publisher, opts ...Option) *Notifier {
	n := &Notifier{
		publisher: publisher,
		retry:     retry.DefaultConfig(),
		logger:    logging.ComponentLogger("revision.notify"),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Recorded 发布一个批次，返回发布错误供调用方决定是否上报
func (n *Notifier) Recorded(ctx context.Context, revs []*revision.Revision) error {
	if n == nil || n.publisher == nil || len(revs) == 0 {
		return nil
	}
	msg, err := NewMessage(revs)
	if err != nil {
		return err
	}
	err = retry.Do(ctx, func(ctx context.Context, attempt int) error {
		if err := n.publisher.Publish(ctx, msg); err != nil {
			n.logger.Debug(ctx, "发布修订通知失败", logging.Int("attempt", attempt), logging.Error(err))
			return err
		}
		return nil
	}, n.retry)
	if err != nil {
		n.logger.Warn(ctx, "修订通知未送达",
			logging.String("subject", revs[0].SubjectRef()),
			logging.String("revision_id", revs[0].RevisionID),
			logging.Error(err))
		return errors.WrapError(err, errors.ErrCodeQueue, "publish "+MessageType)
	}
	return nil
}
