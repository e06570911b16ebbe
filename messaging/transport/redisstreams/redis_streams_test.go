package redisstreams

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"revtrail/errors"
	"revtrail/logging"
	"revtrail/messaging"
)

type fakeClient struct {
	added []*redis.XAddArgs
	acked []string
}

func (f *fakeClient) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.added = append(f.added, a)
	return redis.NewStringResult("1-0", nil)
}

func (f *fakeClient) XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd {
	return redis.NewXStreamSliceCmdResult(nil, redis.Nil)
}

func (f *fakeClient) XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd {
	f.acked = append(f.acked, ids...)
	return redis.NewIntResult(int64(len(ids)), nil)
}

func (f *fakeClient) XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd {
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeClient) Close() error { return nil }

func newTestTransport(t *testing.T, cfg Config) (*Transport, *fakeClient) {
	t.Helper()
	cfg.Addr = "127.0.0.1:0"
	cfg.Logger = logging.NewNoopLogger()
	tpt, err := NewTransport(cfg)
	require.NoError(t, err)
	fake := &fakeClient{}
	tpt.client = fake
	tpt.ownClient = false
	return tpt, fake
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	ts := time.Unix(0, 1700000000000000000)
	msg := &messaging.Message{
		ID:        "rev-1",
		Type:      "revision.recorded",
		Timestamp: ts,
		Payload:   map[string]any{"revisionable_id": "42"},
		Metadata:  map[string]any{"subject": "post:42"},
	}

	values, err := encodeMessage(msg)
	require.NoError(t, err)

	decoded, err := decodeMessage(redis.XMessage{ID: "1-0", Values: values})
	require.NoError(t, err)

	assert.Equal(t, msg.ID, decoded.GetID())
	assert.Equal(t, msg.Type, decoded.GetType())
	assert.Equal(t, ts.UnixNano(), decoded.GetTimestamp().UnixNano())
	assert.Equal(t, "post:42", decoded.GetMetadata()["subject"])

	var payload map[string]string
	require.NoError(t, messaging.DecodePayload(decoded, &payload))
	assert.Equal(t, "42", payload["revisionable_id"])
}

func TestDecodeFallbacks(t *testing.T) {
	decoded, err := decodeMessage(redis.XMessage{ID: "2-0", Values: map[string]any{
		"timestamp": int64(1700000000000000000),
		"payload":   "{}",
	}})
	require.NoError(t, err)
	assert.Equal(t, "2-0", decoded.GetID(), "缺少 id 时使用 entry ID")
	assert.Equal(t, int64(1700000000000000000), decoded.GetTimestamp().UnixNano())

	_, err = decodeMessage(redis.XMessage{ID: "3-0", Values: map[string]any{"payload": "{broken"}})
	require.Error(t, err)
}

func TestPublish(t *testing.T) {
	tpt, fake := newTestTransport(t, Config{MaxLen: 1000})

	err := tpt.Publish(context.Background(), messaging.NewMessage("rev-1", "revision.recorded", map[string]any{"n": 1}))
	require.NoError(t, err)

	require.Len(t, fake.added, 1)
	args := fake.added[0]
	assert.Equal(t, "revtrail:revision.recorded", args.Stream)
	assert.Equal(t, int64(1000), args.MaxLen)
	assert.True(t, args.Approx)
}

func TestHandleEntry(t *testing.T) {
	tpt, fake := newTestTransport(t, Config{})

	var got []string
	require.NoError(t, tpt.Subscribe("revision.recorded", messaging.NewHandler("collect",
		func(ctx context.Context, m messaging.IMessage) error {
			got = append(got, m.GetID())
			return nil
		})))

	values, err := encodeMessage(&messaging.Message{ID: "rev-1", Timestamp: time.Now(), Payload: "x"})
	require.NoError(t, err)
	tpt.handleEntry(context.Background(), "revtrail:revision.recorded", "revision.recorded",
		redis.XMessage{ID: "5-0", Values: values})

	t.Run("无法解码的记录也会确认", func(t *testing.T) {
		tpt.handleEntry(context.Background(), "revtrail:revision.recorded", "revision.recorded",
			redis.XMessage{ID: "6-0", Values: map[string]any{"payload": "{broken"}})
	})

	assert.Equal(t, []string{"rev-1"}, got)
	assert.Equal(t, []string{"5-0", "6-0"}, fake.acked)
}

func TestSubscribeRejectsWildcard(t *testing.T) {
	tpt, _ := newTestTransport(t, Config{})
	err := tpt.Subscribe(messaging.WildcardType, messaging.NewHandler("x", nil))
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeInvalidInput))
}

func TestNewTransportRequiresClient(t *testing.T) {
	_, err := NewTransport(Config{})
	require.Error(t, err)
}

func TestStartClose(t *testing.T) {
	tpt, _ := newTestTransport(t, Config{BlockTimeout: time.Millisecond})
	require.NoError(t, tpt.Subscribe("revision.recorded", messaging.NewHandler("noop",
		func(ctx context.Context, m messaging.IMessage) error { return nil })))

	require.NoError(t, tpt.Start(context.Background()))
	assert.True(t, tpt.Stats().Running)
	require.Error(t, tpt.Start(context.Background()))
	require.NoError(t, tpt.Close())
	assert.False(t, tpt.Stats().Running)
}
