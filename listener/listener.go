// Package listener 运行用户注册通知的后台消费者
//
// 监听器维护自己的连接生命周期：断线后以固定间隔无限重连，
// 每次连上都建立新的临时订阅（广播语义，多实例各收一份）。
// 消息处理失败只记录，绝不让监听循环死掉。
package listener

import (
	"context"
	"sync"
	"time"

	"stockroom/logging"
	"stockroom/messaging"
	"stockroom/patterns/retry"
)

// State 监听器状态
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConsuming    State = "consuming"
	StateShuttingDown State = "shutting_down"
)

// Provisioner 收到注册通知后执行的开通动作
type Provisioner interface {
	ProvisionDefaultInventory(ctx context.Context, userID string) error
}

// Config 监听器配置
type Config struct {
	Dialer messaging.IBrokerDialer
	// ReconnectDelay 断线重连的固定间隔，默认 5s
	ReconnectDelay time.Duration
	Logger         logging.Logger
}

// SignupListener 消费注册通知并触发默认库存开通
type SignupListener struct {
	dialer      messaging.IBrokerDialer
	provisioner Provisioner
	delay       time.Duration
	logger      logging.Logger

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSignupListener 创建注册监听器
func NewSignupListener(cfg Config, provisioner Provisioner) *SignupListener {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.GetLogger().WithFields(logging.String("component", "signup-listener"))
	}
	return &SignupListener{
		dialer:      cfg.Dialer,
		provisioner: provisioner,
		delay:       cfg.ReconnectDelay,
		logger:      cfg.Logger,
		state:       StateDisconnected,
	}
}

// State 返回当前监听器状态
func (l *SignupListener) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *SignupListener) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

// Start 启动监听循环（后台 goroutine），重复调用是空操作
func (l *SignupListener) Start(ctx context.Context) {
	l.mu.Lock()
	if l.done != nil {
		l.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})
	done := l.done
	l.mu.Unlock()

	go func() {
		defer close(done)
		l.run(runCtx)
	}()
}

// Stop 停止监听并等待循环退出，重复调用是空操作
func (l *SignupListener) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.state = StateShuttingDown
	l.mu.Unlock()

	if cancel == nil {
		l.setState(StateDisconnected)
		return
	}
	cancel()
	<-done

	l.mu.Lock()
	l.cancel = nil
	l.done = nil
	l.state = StateDisconnected
	l.mu.Unlock()
}

// run 连接循环：连不上就按固定间隔重试，连接断开就重来
func (l *SignupListener) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		l.setState(StateConnecting)
		conn, err := l.dial(ctx)
		if err != nil {
			// dial 只有在 ctx 取消时才会放弃
			return
		}

		if !l.consume(ctx, conn) {
			return
		}

		// 连接掉了：隔一拍再连，避免对 broker 打满重连风暴
		l.setState(StateDisconnected)
		l.logger.Warn(ctx, "broker connection lost, reconnecting",
			logging.Duration("delay", l.delay))
		select {
		case <-ctx.Done():
			return
		case <-time.After(l.delay):
		}
	}
}

// dial 以固定间隔无限重试，直到连上或 ctx 取消
func (l *SignupListener) dial(ctx context.Context) (messaging.IBrokerConn, error) {
	var conn messaging.IBrokerConn
	err := retry.Do(ctx, func(ctx context.Context) error {
		c, err := l.dialer.Dial(ctx)
		if err != nil {
			l.logger.Warn(ctx, "broker dial failed, will retry",
				logging.Duration("delay", l.delay), logging.Error(err))
			return err
		}
		conn = c
		return nil
	}, retry.ForeverConfig(l.delay))
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// consume 订阅并阻塞到连接断开或 ctx 取消；返回 false 表示退出循环
func (l *SignupListener) consume(ctx context.Context, conn messaging.IBrokerConn) bool {
	defer conn.Close()

	sub, err := conn.Subscribe(ctx, messaging.HandlerFunc{
		Name: messaging.TypeUserSignedUp,
		Fn:   l.handleSignup,
	})
	if err != nil {
		l.logger.Error(ctx, "subscribe failed", logging.Error(err))
		// 当作一次断线，外层循环会重连
		return ctx.Err() == nil
	}
	defer sub.Close()

	l.setState(StateConsuming)
	l.logger.Info(ctx, "consuming signup notifications")

	select {
	case <-ctx.Done():
		return false
	case <-conn.Closed():
		return true
	}
}

// handleSignup 单条通知的处理器
//
// 开通失败只记录不传播：传播会中断消费循环，而通知本身
// 是至少一次投递，下一次注册重放仍会命中幂等的开通逻辑。
func (l *SignupListener) handleSignup(ctx context.Context, msg messaging.IMessage) error {
	// 共享通知主题上可能出现其他类型的通知，只处理注册
	if msg.GetType() != messaging.TypeUserSignedUp {
		l.logger.Debug(ctx, "ignoring notification of other type",
			logging.String("message_id", msg.GetID()),
			logging.String("message_type", msg.GetType()))
		return nil
	}

	userID := userIDOf(msg)
	if userID == "" {
		l.logger.Warn(ctx, "signup notification without user_id, skipping",
			logging.String("message_id", msg.GetID()))
		return nil
	}

	if err := l.provisioner.ProvisionDefaultInventory(ctx, userID); err != nil {
		l.logger.Error(ctx, "default inventory provisioning failed",
			logging.String("user_id", userID), logging.Error(err))
	}
	return nil
}

func userIDOf(msg messaging.IMessage) string {
	v, ok := msg.GetPayload()[messaging.PayloadKeyUserID].(string)
	if !ok {
		return ""
	}
	return v
}
