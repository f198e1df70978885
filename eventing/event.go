// Package eventing 提供库存领域事件的核心抽象
package eventing

import (
	"time"

	"github.com/google/uuid"
)

// 领域事件类型常量
const (
	EventItemCreated    = "ItemCreated"
	EventItemUpdated    = "ItemUpdated"
	EventItemDeleted    = "ItemDeleted"
	EventQuantityChange = "QuantityUpdated"
	EventUserSignedUp   = "UserSignedUp"
)

// 事件载荷约定键
//
// 事件与物品的关联通过载荷中的 item_id 建立：
// 一个物品的完整历史就是载荷 item_id 匹配的事件子序列。
const (
	PayloadKeyItemID        = "item_id"
	PayloadKeyUserID        = "user_id"
	PayloadKeyDelta         = "delta"
	PayloadKeyUpdatedFields = "updated_fields"
)

// Event 领域事件
//
// 不可变记录：一旦追加，永不修改或删除。
// Seq 由存储在追加时分配，用于同一时间戳内的次序判定；
// Timestamp 同样由存储在追加时分配，保证单调不减。
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
	Seq       int64          `json:"seq"`
}

// NewEvent 创建事件（时间戳与序号留待存储分配）
func NewEvent(eventType string, payload map[string]any) Event {
	if payload == nil {
		payload = make(map[string]any)
	}
	return Event{
		ID:      uuid.NewString(),
		Type:    eventType,
		Payload: payload,
	}
}

// ItemID 获取事件关联的物品键，未关联物品时返回空串
func (e Event) ItemID() string {
	if v, ok := e.Payload[PayloadKeyItemID].(string); ok {
		return v
	}
	return ""
}

// Delta 获取数量变更事件的增量
//
// 载荷经过 JSON 往返后数值是 float64，直接写入时是 int，
// 两种表示都要接受。
func (e Event) Delta() (int, bool) {
	switch v := e.Payload[PayloadKeyDelta].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

// UpdatedFields 获取更新事件的部分字段映射
func (e Event) UpdatedFields() map[string]any {
	if v, ok := e.Payload[PayloadKeyUpdatedFields].(map[string]any); ok {
		return v
	}
	return nil
}
