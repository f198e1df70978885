package messaging

import "context"

// IPublisher 消息发布接口
type IPublisher interface {
	// Publish 发布一条消息到共享通知主题（持久投递）
	Publish(ctx context.Context, message IMessage) error
}

// IMessageHandler 消息处理器接口
type IMessageHandler interface {
	// Handle 处理消息
	Handle(ctx context.Context, message IMessage) error

	// Type 返回处理器类型（用于日志和调试）
	Type() string
}

// HandlerFunc 把函数适配为消息处理器
type HandlerFunc struct {
	Name string
	Fn   func(ctx context.Context, message IMessage) error
}

func (h HandlerFunc) Handle(ctx context.Context, message IMessage) error {
	return h.Fn(ctx, message)
}

func (h HandlerFunc) Type() string { return h.Name }

// ISubscription 活跃订阅句柄
type ISubscription interface {
	// Close 终止订阅并释放底层资源，可重复调用
	Close() error
}

// ISubscriber 消息订阅接口
//
// 每个订阅者绑定自己独占的、非持久的临时队列（广播语义，
// 不是竞争消费），消息在处理器返回后手动确认。
type ISubscriber interface {
	// Subscribe 订阅共享通知主题，handler 逐条串行调用
	Subscribe(ctx context.Context, handler IMessageHandler) (ISubscription, error)
}

// IBrokerConn 一条活跃的消息代理连接
//
// 由单个长生命周期消费者独占持有，其他组件不得共享或修改。
type IBrokerConn interface {
	ISubscriber

	// Closed 连接意外关闭时收到通知（用于触发重连循环）
	Closed() <-chan struct{}

	// Close 主动关闭连接，可重复调用
	Close() error
}

// IBrokerDialer 建立消息代理连接的工厂
type IBrokerDialer interface {
	// Dial 建立一条新连接，失败返回 BROKER_CONNECTION_ERROR
	Dial(ctx context.Context) (IBrokerConn, error)
}
