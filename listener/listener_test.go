package listener

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"stockroom/errors"
	"stockroom/messaging"
)

// fakeConn 可手动断开的假连接，订阅后记录处理器以便注入消息
type fakeConn struct {
	mu      sync.Mutex
	handler messaging.IMessageHandler
	closed  chan struct{}
	once    sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{closed: make(chan struct{})}
}

func (c *fakeConn) Subscribe(ctx context.Context, handler messaging.IMessageHandler) (messaging.ISubscription, error) {
	c.mu.Lock()
	c.handler = handler
	c.mu.Unlock()
	return fakeSubscription{}, nil
}

func (c *fakeConn) Closed() <-chan struct{} { return c.closed }

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// deliver 把一条消息直接交给已注册的处理器
func (c *fakeConn) deliver(t *testing.T, msg messaging.IMessage) {
	t.Helper()
	c.mu.Lock()
	handler := c.handler
	c.mu.Unlock()
	require.NotNil(t, handler, "no subscription registered")
	require.NoError(t, handler.Handle(context.Background(), msg))
}

type fakeSubscription struct{}

func (fakeSubscription) Close() error { return nil }

// fakeDialer 按序返回预置的连接或错误
type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	errs  int // 先失败的次数
	dials int
}

func (d *fakeDialer) Dial(ctx context.Context) (messaging.IBrokerConn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.errs > 0 {
		d.errs--
		return nil, errors.NewBrokerConnectionError("broker unavailable", nil)
	}
	if len(d.conns) == 0 {
		return nil, errors.NewBrokerConnectionError("no more connections", nil)
	}
	conn := d.conns[0]
	d.conns = d.conns[1:]
	return conn, nil
}

// recordingProvisioner 记录开通调用
type recordingProvisioner struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (p *recordingProvisioner) ProvisionDefaultInventory(ctx context.Context, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, userID)
	return p.err
}

func (p *recordingProvisioner) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func (p *recordingProvisioner) snapshot() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestListener_ProvisionsOncePerNotification(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn}}
	prov := &recordingProvisioner{}

	l := NewSignupListener(Config{Dialer: dialer, ReconnectDelay: 10 * time.Millisecond}, prov)
	l.Start(context.Background())
	defer l.Stop()

	waitFor(t, func() bool { return l.State() == StateConsuming }, "listener never reached consuming state")

	conn.deliver(t, messaging.NewSignupNotification("u1", "u1@example.com"))
	require.Equal(t, 1, prov.callCount())
	require.Equal(t, []string{"u1"}, prov.snapshot())
}

func TestListener_ProvisionFailureDoesNotKillLoop(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn}}
	prov := &recordingProvisioner{err: errors.NewStorageError("db down", nil)}

	l := NewSignupListener(Config{Dialer: dialer, ReconnectDelay: 10 * time.Millisecond}, prov)
	l.Start(context.Background())
	defer l.Stop()

	waitFor(t, func() bool { return l.State() == StateConsuming }, "listener never reached consuming state")

	conn.deliver(t, messaging.NewSignupNotification("u1", "u1@example.com"))
	conn.deliver(t, messaging.NewSignupNotification("u2", "u2@example.com"))

	require.Equal(t, 2, prov.callCount())
	require.Equal(t, StateConsuming, l.State())
}

func TestListener_IgnoresOtherNotificationTypes(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn}}
	prov := &recordingProvisioner{}

	l := NewSignupListener(Config{Dialer: dialer, ReconnectDelay: 10 * time.Millisecond}, prov)
	l.Start(context.Background())
	defer l.Stop()

	waitFor(t, func() bool { return l.State() == StateConsuming }, "listener never reached consuming state")

	// 带 user_id 但类型不是注册：不得触发开通
	conn.deliver(t, messaging.NewMessage("user_deleted", map[string]any{messaging.PayloadKeyUserID: "u1"}))
	require.Zero(t, prov.callCount())

	// 监听器仍然存活，真正的注册照常处理
	conn.deliver(t, messaging.NewSignupNotification("u1", "u1@example.com"))
	require.Equal(t, 1, prov.callCount())
}

func TestListener_MissingUserIDSkipped(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn}}
	prov := &recordingProvisioner{}

	l := NewSignupListener(Config{Dialer: dialer, ReconnectDelay: 10 * time.Millisecond}, prov)
	l.Start(context.Background())
	defer l.Stop()

	waitFor(t, func() bool { return l.State() == StateConsuming }, "listener never reached consuming state")

	conn.deliver(t, messaging.NewMessage(messaging.TypeUserSignedUp, map[string]any{"email": "x@example.com"}))
	require.Zero(t, prov.callCount())
}

func TestListener_ReconnectsAfterConnectionLoss(t *testing.T) {
	first := newFakeConn()
	second := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{first, second}}
	prov := &recordingProvisioner{}

	l := NewSignupListener(Config{Dialer: dialer, ReconnectDelay: 10 * time.Millisecond}, prov)
	l.Start(context.Background())
	defer l.Stop()

	waitFor(t, func() bool { return l.State() == StateConsuming }, "listener never reached consuming state")

	// 模拟 broker 掉线
	first.Close()
	waitFor(t, func() bool {
		second.mu.Lock()
		defer second.mu.Unlock()
		return second.handler != nil
	}, "listener did not resubscribe on the new connection")

	second.deliver(t, messaging.NewSignupNotification("u1", "u1@example.com"))
	require.Equal(t, 1, prov.callCount())
}

func TestListener_RetriesDialUntilBrokerUp(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn}, errs: 3}
	prov := &recordingProvisioner{}

	l := NewSignupListener(Config{Dialer: dialer, ReconnectDelay: 5 * time.Millisecond}, prov)
	l.Start(context.Background())
	defer l.Stop()

	waitFor(t, func() bool { return l.State() == StateConsuming }, "listener never reached consuming state")

	dialer.mu.Lock()
	dials := dialer.dials
	dialer.mu.Unlock()
	require.Equal(t, 4, dials)
}

func TestListener_StopWhileDisconnected(t *testing.T) {
	// 永远连不上的 broker：Stop 必须在一个重试间隔内返回
	dialer := &fakeDialer{errs: 1 << 30}
	l := NewSignupListener(Config{Dialer: dialer, ReconnectDelay: 50 * time.Millisecond}, &recordingProvisioner{})
	l.Start(context.Background())

	done := make(chan struct{})
	go func() {
		l.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return while dialing")
	}
	require.Equal(t, StateDisconnected, l.State())
}

func TestListener_StopIsIdempotent(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn}}
	l := NewSignupListener(Config{Dialer: dialer, ReconnectDelay: 10 * time.Millisecond}, &recordingProvisioner{})

	l.Start(context.Background())
	waitFor(t, func() bool { return l.State() == StateConsuming }, "listener never reached consuming state")

	l.Stop()
	l.Stop() // 二次调用无副作用
	require.Equal(t, StateDisconnected, l.State())
}
