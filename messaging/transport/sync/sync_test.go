package sync

import (
	"context"
	stdErrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"revtrail/errors"
	msg "revtrail/messaging"
)

func counter(n *int) msg.IMessageHandler {
	return msg.NewHandler("inc", func(ctx context.Context, m msg.IMessage) error {
		*n++
		return nil
	})
}

func TestSyncTransport_PublishFlow(t *testing.T) {
	tpt := NewSyncTransport()
	require.NoError(t, tpt.Start(context.Background()))
	defer tpt.Close()

	var exact, all int
	require.NoError(t, tpt.Subscribe("revision.recorded", counter(&exact)))
	require.NoError(t, tpt.Subscribe(msg.WildcardType, counter(&all)))

	require.NoError(t, tpt.Publish(context.Background(), &msg.Message{ID: "1", Type: "revision.recorded"}))
	require.NoError(t, tpt.Publish(context.Background(), &msg.Message{ID: "2", Type: "other"}))

	assert.Equal(t, 1, exact)
	assert.Equal(t, 2, all)

	stats := tpt.Stats()
	assert.True(t, stats.Running)
	assert.Equal(t, 2, stats.HandlerCount)
	assert.Equal(t, []string{"*", "revision.recorded"}, stats.MessageTypes)
}

func TestSyncTransport_NotRunning(t *testing.T) {
	tpt := NewSyncTransport()
	err := tpt.Publish(context.Background(), &msg.Message{ID: "x", Type: "T"})
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeQueue))
}

func TestSyncTransport_HandlerError(t *testing.T) {
	tpt := NewSyncTransport()
	require.NoError(t, tpt.Start(context.Background()))

	boom := stdErrors.New("boom")
	var after int
	require.NoError(t, tpt.Subscribe("T", msg.NewHandler("fail", func(ctx context.Context, m msg.IMessage) error {
		return boom
	})))
	require.NoError(t, tpt.Subscribe("T", counter(&after)))

	err := tpt.Publish(context.Background(), &msg.Message{ID: "1", Type: "T"})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, after, "失败的处理器不影响后续处理器")
}

func TestSyncTransport_Unsubscribe(t *testing.T) {
	tpt := NewSyncTransport()
	require.NoError(t, tpt.Start(context.Background()))

	var n int
	h := counter(&n)
	require.NoError(t, tpt.Subscribe("T", h))
	require.NoError(t, tpt.Unsubscribe("T", h))
	require.NoError(t, tpt.Publish(context.Background(), &msg.Message{ID: "1", Type: "T"}))
	assert.Equal(t, 0, n)

	err := tpt.Unsubscribe("T", h)
	assert.True(t, errors.IsNotFound(err))
}
