// Package messaging 提供跨服务通知的消息抽象
package messaging

import (
	"time"

	"github.com/google/uuid"
)

// 跨服务通知类型常量
const (
	// TypeUserSignedUp 用户注册通知：认证侧发布，库存侧消费并创建默认库存
	TypeUserSignedUp = "user_signed_up"
)

// 通知载荷约定键
const (
	PayloadKeyUserID = "user_id"
	PayloadKeyEmail  = "email"
)

// IMessage 消息接口
type IMessage interface {
	// GetID 获取消息ID
	GetID() string

	// GetType 获取消息类型
	GetType() string

	// GetTimestamp 获取时间戳
	GetTimestamp() time.Time

	// GetPayload 获取消息数据
	GetPayload() map[string]any
}

// Message 消息基础实现（线上实体，不落库）
type Message struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload"`
}

// GetID 获取消息ID
func (m *Message) GetID() string { return m.ID }

// GetType 获取消息类型
func (m *Message) GetType() string { return m.Type }

// GetTimestamp 获取时间戳
func (m *Message) GetTimestamp() time.Time { return m.Timestamp }

// GetPayload 获取消息数据
func (m *Message) GetPayload() map[string]any {
	if m.Payload == nil {
		m.Payload = make(map[string]any)
	}
	return m.Payload
}

// NewMessage 创建新消息
func NewMessage(messageType string, payload map[string]any) *Message {
	if payload == nil {
		payload = make(map[string]any)
	}
	return &Message{
		ID:        uuid.NewString(),
		Type:      messageType,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}

// NewSignupNotification 创建用户注册通知
func NewSignupNotification(userID, email string) *Message {
	return NewMessage(TypeUserSignedUp, map[string]any{
		PayloadKeyUserID: userID,
		PayloadKeyEmail:  email,
	})
}

// UserID 获取通知关联的用户标识，缺失时返回空串
func (m *Message) UserID() string {
	if v, ok := m.GetPayload()[PayloadKeyUserID].(string); ok {
		return v
	}
	return ""
}
