package natsjetstream

import (
	"context"
	stdErrors "errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"revtrail/errors"
	"revtrail/logging"
	"revtrail/messaging"
)

type fakeJS struct {
	published []*nats.Msg
	streams   map[string]*nats.StreamConfig
	failWith  error
}

func (f *fakeJS) Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.published = append(f.published, &nats.Msg{Subject: subj, Data: data})
	return &nats.PubAck{Stream: "REVTRAIL", Sequence: uint64(len(f.published))}, nil
}

func (f *fakeJS) StreamInfo(stream string, opts ...nats.JSOpt) (*nats.StreamInfo, error) {
	if cfg, ok := f.streams[stream]; ok {
		return &nats.StreamInfo{Config: *cfg}, nil
	}
	return nil, nats.ErrStreamNotFound
}

func (f *fakeJS) AddStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error) {
	if f.streams == nil {
		f.streams = map[string]*nats.StreamConfig{}
	}
	f.streams[cfg.Name] = cfg
	return &nats.StreamInfo{Config: *cfg}, nil
}

func (f *fakeJS) QueueSubscribe(subj, queue string, cb nats.MsgHandler, opts ...nats.SubOpt) (*nats.Subscription, error) {
	return nil, stdErrors.New("not supported in tests")
}

func runningTransport(js *fakeJS) *Transport {
	t := NewTransport(Config{Logger: logging.NewNoopLogger()})
	t.js = js
	t.running = true
	return t
}

func TestPublish(t *testing.T) {
	js := &fakeJS{}
	tpt := runningTransport(js)

	msg := messaging.NewMessage("rev-1", "revision.recorded", map[string]any{"key": "title"})
	require.NoError(t, tpt.Publish(context.Background(), msg))

	require.Len(t, js.published, 1)
	assert.Equal(t, "revtrail.revision.recorded", js.published[0].Subject)

	decoded, err := messaging.Unmarshal(js.published[0].Data)
	require.NoError(t, err)
	assert.Equal(t, "rev-1", decoded.ID)
	var payload map[string]string
	require.NoError(t, messaging.DecodePayload(decoded, &payload))
	assert.Equal(t, "title", payload["key"])
}

func TestPublish_Errors(t *testing.T) {
	t.Run("未启动", func(t *testing.T) {
		tpt := NewTransport(Config{Logger: logging.NewNoopLogger()})
		err := tpt.Publish(context.Background(), messaging.NewMessage("1", "T", nil))
		assert.True(t, errors.IsErrorCode(err, errors.ErrCodeQueue))
	})

	t.Run("发布失败", func(t *testing.T) {
		tpt := runningTransport(&fakeJS{failWith: stdErrors.New("no responders")})
		err := tpt.Publish(context.Background(), messaging.NewMessage("1", "T", nil))
		require.Error(t, err)
		assert.True(t, errors.IsErrorCode(err, errors.ErrCodeQueue))
	})
}

func TestEnsureStream(t *testing.T) {
	js := &fakeJS{}
	tpt := NewTransport(Config{Logger: logging.NewNoopLogger(), MaxAge: time.Hour, Retention: "interest"})
	tpt.js = js

	require.NoError(t, tpt.ensureStream())
	cfg := js.streams["REVTRAIL"]
	require.NotNil(t, cfg)
	assert.Equal(t, []string{"revtrail.>"}, cfg.Subjects)
	assert.Equal(t, nats.InterestPolicy, cfg.Retention)
	assert.Equal(t, time.Hour, cfg.MaxAge)

	// 已存在时不重复创建
	require.NoError(t, tpt.ensureStream())
	assert.Len(t, js.streams, 1)
}

func TestHandleMessage(t *testing.T) {
	tpt := NewTransport(Config{Logger: logging.NewNoopLogger()})

	var got []messaging.IMessage
	tpt.handlers["revision.recorded"] = []messaging.IMessageHandler{
		messaging.NewHandler("collect", func(ctx context.Context, m messaging.IMessage) error {
			got = append(got, m)
			return nil
		}),
	}

	data, err := messaging.Marshal(&messaging.Message{ID: "rev-9", Timestamp: time.Unix(0, 42)})
	require.NoError(t, err)

	handler := tpt.handleMessage("revision.recorded")
	handler(&nats.Msg{Subject: "revtrail.revision.recorded", Data: data})
	handler(&nats.Msg{Subject: "revtrail.revision.recorded", Data: []byte("not json")})

	require.Len(t, got, 1)
	assert.Equal(t, "rev-9", got[0].GetID())
	assert.Equal(t, "revision.recorded", got[0].GetType(), "缺少类型时使用订阅的类型")
}

func TestDurableName(t *testing.T) {
	tpt := NewTransport(Config{})
	assert.Equal(t, "revtrail-revision-recorded", tpt.durableName("revision.recorded"))
	assert.Error(t, tpt.Subscribe(messaging.WildcardType, messaging.NewHandler("x", nil)))
}
