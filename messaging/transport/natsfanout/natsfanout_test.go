package natsfanout

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"

	"stockroom/logging"
	"stockroom/messaging"
)

func TestMarshalUnmarshal(t *testing.T) {
	ts := time.Unix(0, 1700000000000000000)
	msg := &messaging.Message{
		ID:        "msg-1",
		Type:      messaging.TypeUserSignedUp,
		Timestamp: ts,
		Payload:   map[string]any{"user_id": "u1", "email": "ada@example.com"},
	}
	data, err := marshalMessage(msg)
	require.NoError(t, err)

	decoded, err := unmarshalMessage(data)
	require.NoError(t, err)

	require.Equal(t, msg.ID, decoded.GetID())
	require.Equal(t, msg.Type, decoded.GetType())
	require.Equal(t, ts.UnixNano(), decoded.GetTimestamp().UnixNano())
	require.Equal(t, "u1", decoded.GetPayload()["user_id"])
	require.Equal(t, "ada@example.com", decoded.GetPayload()["email"])
}

func TestUnmarshal_Malformed(t *testing.T) {
	_, err := unmarshalMessage([]byte("not json at all"))
	require.Error(t, err)

	_, err = unmarshalMessage([]byte(`{"id":"x","type":"t","payload":"not an object"}`))
	require.Error(t, err)
}

// TestHandleMessage_MalformedAckedWithoutHandler 畸形消息被记录并确认，
// 处理器不被调用，消费循环不中断
func TestHandleMessage_MalformedAckedWithoutHandler(t *testing.T) {
	conn := &brokerConn{
		cfg:    Config{Subject: "notify.signup"},
		logger: logging.NewNoopLogger(),
		closed: make(chan struct{}),
	}

	called := false
	handler := messaging.HandlerFunc{
		Name: "test",
		Fn: func(ctx context.Context, m messaging.IMessage) error {
			called = true
			return nil
		},
	}

	// 不应该panic，也不触发处理器
	conn.handleMessage(context.Background(), handler, &nats.Msg{Data: []byte("garbage")})
	require.False(t, called)
}

// TestHandleMessage_RunsToCompletionAfterCancel 停机时订阅 ctx 已取消，
// 在途消息的处理器仍要在未取消的 ctx 下执行完毕
func TestHandleMessage_RunsToCompletionAfterCancel(t *testing.T) {
	conn := &brokerConn{
		cfg:    Config{Subject: "notify.signup"},
		logger: logging.NewNoopLogger(),
		closed: make(chan struct{}),
	}

	data, err := marshalMessage(messaging.NewSignupNotification("u1", "ada@example.com"))
	require.NoError(t, err)

	handled := false
	handler := messaging.HandlerFunc{
		Name: messaging.TypeUserSignedUp,
		Fn: func(ctx context.Context, m messaging.IMessage) error {
			handled = true
			require.NoError(t, ctx.Err())
			return nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	conn.handleMessage(ctx, handler, &nats.Msg{Data: data})
	require.True(t, handled)
}

// TestHandleMessage_HandlerErrorStillAcked 处理器失败不会向上传播
func TestHandleMessage_HandlerErrorStillAcked(t *testing.T) {
	conn := &brokerConn{
		cfg:    Config{Subject: "notify.signup"},
		logger: logging.NewNoopLogger(),
		closed: make(chan struct{}),
	}

	data, err := marshalMessage(messaging.NewSignupNotification("u1", "ada@example.com"))
	require.NoError(t, err)

	handler := messaging.HandlerFunc{
		Name: "failing",
		Fn: func(ctx context.Context, m messaging.IMessage) error {
			return context.DeadlineExceeded
		},
	}

	require.NotPanics(t, func() {
		conn.handleMessage(context.Background(), handler, &nats.Msg{Data: data})
	})
}
