// Package natsfanout 基于 NATS JetStream 的扇出式通知传输
//
// 发布侧：单一持久的通知流（文件存储，持久投递），对应原系统的
// durable fanout exchange。
// 订阅侧：每个订阅者实例创建自己独占的临时（非持久）消费者并手动确认，
// 广播语义而非竞争消费；重连后是一个全新的空临时队列，断开期间
// 发布的通知不会补投。
package natsfanout

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"stockroom/errors"
	"stockroom/logging"
	"stockroom/messaging"
)

// Config 传输配置
type Config struct {
	URL     string
	Stream  string
	Subject string
	AckWait time.Duration
	Logger  logging.Logger

	// Conn 可选的外部连接；为空时由传输自行建连并负责关闭
	Conn *nats.Conn
}

func (cfg *Config) withDefaults() {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.Stream == "" {
		cfg.Stream = "STOCKROOM_NOTIFY"
	}
	if cfg.Subject == "" {
		cfg.Subject = "notify.signup"
	}
	if cfg.AckWait <= 0 {
		cfg.AckWait = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.GetLogger().WithFields(logging.String("component", "transport.natsfanout"))
	}
}

// Publisher 通知发布端（实现 messaging.IPublisher）
type Publisher struct {
	cfg      Config
	logger   logging.Logger
	conn     *nats.Conn
	js       nats.JetStreamContext
	ownsConn bool

	mu sync.Mutex
}

// NewPublisher 创建发布端并确保通知流存在
func NewPublisher(cfg Config) (*Publisher, error) {
	cfg.withDefaults()
	p := &Publisher{cfg: cfg, logger: cfg.Logger}

	conn, owns, err := connect(cfg)
	if err != nil {
		return nil, err
	}
	js, err := conn.JetStream()
	if err != nil {
		if owns {
			conn.Close()
		}
		return nil, errors.NewBrokerConnectionError("jetstream context failed", err)
	}
	if err := ensureStream(js, cfg); err != nil {
		if owns {
			conn.Close()
		}
		return nil, err
	}

	p.conn = conn
	p.js = js
	p.ownsConn = owns
	return p, nil
}

// Publish 发布一条消息到通知流（JetStream 默认持久投递）
func (p *Publisher) Publish(ctx context.Context, message messaging.IMessage) error {
	data, err := marshalMessage(message)
	if err != nil {
		return errors.NewMessageProcessingError("marshal notification failed", err)
	}
	if _, err := p.js.Publish(p.cfg.Subject, data, nats.Context(ctx)); err != nil {
		return errors.NewBrokerConnectionError("publish notification failed", err).
			WithContext("message_type", message.GetType())
	}
	return nil
}

// Close 关闭发布端持有的连接
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ownsConn && p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
	return nil
}

// Dialer 订阅端连接工厂（实现 messaging.IBrokerDialer）
type Dialer struct {
	cfg Config
}

// NewDialer 创建订阅端连接工厂
func NewDialer(cfg Config) *Dialer {
	cfg.withDefaults()
	return &Dialer{cfg: cfg}
}

// Dial 建立一条消费者独占的连接并确保通知流存在
//
// 连接禁用客户端自动重连：连接丢失通过 Closed 通道上报，
// 由持有方的重连循环决定何时重新 Dial，避免两层重连互相掩盖。
func (d *Dialer) Dial(ctx context.Context) (messaging.IBrokerConn, error) {
	cfg := d.cfg
	closed := make(chan struct{})

	var closeOnce sync.Once
	notifyClosed := func(*nats.Conn) {
		closeOnce.Do(func() { close(closed) })
	}

	conn, err := nats.Connect(cfg.URL,
		nats.NoReconnect(),
		nats.ClosedHandler(notifyClosed))
	if err != nil {
		return nil, errors.NewBrokerConnectionError("broker connect failed", err).
			WithContext("url", cfg.URL)
	}
	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, errors.NewBrokerConnectionError("jetstream context failed", err)
	}
	if err := ensureStream(js, cfg); err != nil {
		conn.Close()
		return nil, err
	}

	return &brokerConn{
		cfg:    cfg,
		logger: cfg.Logger,
		conn:   conn,
		js:     js,
		closed: closed,
	}, nil
}

// brokerConn 一条活跃的订阅连接
type brokerConn struct {
	cfg    Config
	logger logging.Logger
	conn   *nats.Conn
	js     nats.JetStreamContext
	closed chan struct{}

	mu   sync.Mutex
	done bool
}

// Subscribe 创建本实例独占的临时消费者
//
// 非持久、从当前位置起投递（DeliverNew）：每个运行实例都会
// 收到此后发布的每条通知。消息在处理器返回后确认——包括处理器
// 返回错误的情形：单条消息的处理失败记录日志后仍然确认，
// 不阻塞队列，也不自动重投。
func (c *brokerConn) Subscribe(ctx context.Context, handler messaging.IMessageHandler) (messaging.ISubscription, error) {
	sub, err := c.js.Subscribe(c.cfg.Subject, func(msg *nats.Msg) {
		c.handleMessage(ctx, handler, msg)
	},
		nats.ManualAck(),
		nats.DeliverNew(),
		nats.AckWait(c.cfg.AckWait))
	if err != nil {
		return nil, errors.NewBrokerConnectionError("subscribe failed", err).
			WithContext("subject", c.cfg.Subject)
	}
	return &subscription{sub: sub}, nil
}

func (c *brokerConn) handleMessage(ctx context.Context, handler messaging.IMessageHandler, msg *nats.Msg) {
	// 订阅方的 ctx 只控制消费循环。关闭订阅时 Drain 会等在途回调
	// 跑完，此时 ctx 已取消——处理器必须在脱离取消的 ctx 下执行
	// 完毕，否则半路夭折的处理仍被确认，通知就永久丢了。
	ctx = context.WithoutCancel(ctx)

	decoded, err := unmarshalMessage(msg.Data)
	if err != nil {
		// 畸形消息：记录并确认，保持消费状态
		c.logger.Error(ctx, "decode notification failed",
			logging.Error(errors.NewMessageProcessingError("malformed notification", err)))
		c.ack(ctx, msg)
		return
	}

	if err := handler.Handle(ctx, decoded); err != nil {
		c.logger.Error(ctx, "notification handler failed",
			logging.String("message_id", decoded.GetID()),
			logging.String("message_type", decoded.GetType()),
			logging.Error(err))
	}
	// 处理器返回后（无论成败）确认，消息处理失败不重投
	c.ack(ctx, msg)
}

func (c *brokerConn) ack(ctx context.Context, msg *nats.Msg) {
	if err := msg.Ack(); err != nil {
		c.logger.Warn(ctx, "notification ack failed", logging.Error(err))
	}
}

// Closed 连接意外关闭时收到通知
func (c *brokerConn) Closed() <-chan struct{} { return c.closed }

// Close 主动关闭连接，可重复调用
func (c *brokerConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return nil
	}
	c.done = true
	c.conn.Close()
	return nil
}

// subscription 活跃订阅句柄
type subscription struct {
	sub  *nats.Subscription
	once sync.Once
}

func (s *subscription) Close() error {
	var err error
	s.once.Do(func() {
		err = s.sub.Drain()
	})
	return err
}

func connect(cfg Config) (*nats.Conn, bool, error) {
	if cfg.Conn != nil {
		return cfg.Conn, false, nil
	}
	conn, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, false, errors.NewBrokerConnectionError("broker connect failed", err).
			WithContext("url", cfg.URL)
	}
	return conn, true, nil
}

// ensureStream 确保通知流存在（幂等）
//
// LimitsPolicy + 文件存储：消息持久保留，对所有绑定的
// 临时消费者广播，与持久 fanout exchange 对应。
func ensureStream(js nats.JetStreamContext, cfg Config) error {
	_, err := js.StreamInfo(cfg.Stream)
	if err == nil {
		return nil
	}
	if err != nats.ErrStreamNotFound && !strings.Contains(err.Error(), "stream not found") {
		return errors.NewBrokerConnectionError("stream info failed", err)
	}
	_, err = js.AddStream(&nats.StreamConfig{
		Name:      cfg.Stream,
		Subjects:  []string{cfg.Subject},
		Retention: nats.LimitsPolicy,
		Storage:   nats.FileStorage,
		MaxAge:    24 * time.Hour,
	})
	if err != nil {
		return errors.NewBrokerConnectionError("create stream failed", err)
	}
	return nil
}

// wireMessage 线上格式：{id, type, timestamp, payload}
type wireMessage struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

func marshalMessage(msg messaging.IMessage) ([]byte, error) {
	payload, err := json.Marshal(msg.GetPayload())
	if err != nil {
		return nil, err
	}
	ts := msg.GetTimestamp()
	if ts.IsZero() {
		ts = time.Now()
	}
	return json.Marshal(wireMessage{
		ID:        msg.GetID(),
		Type:      msg.GetType(),
		Timestamp: ts.UnixNano(),
		Payload:   payload,
	})
}

func unmarshalMessage(data []byte) (messaging.IMessage, error) {
	var wire wireMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, err
	}
	payload := make(map[string]any)
	if len(wire.Payload) > 0 {
		if err := json.Unmarshal(wire.Payload, &payload); err != nil {
			return nil, err
		}
	}
	return &messaging.Message{
		ID:        wire.ID,
		Type:      wire.Type,
		Timestamp: time.Unix(0, wire.Timestamp),
		Payload:   payload,
	}, nil
}
