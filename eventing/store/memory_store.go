package store

import (
	"context"
	"sync"
	"time"

	"stockroom/eventing"
)

// MemoryEventStore 一个简单的内存实现，用于测试与示例
//
// 内部以追加顺序保存事件并分配单调序号，时间戳在追加时取当前时间，
// 若与上一条事件相同或回退则沿用上一条的时间戳，保证单调不减。
type MemoryEventStore struct {
	mu     sync.RWMutex
	events []eventing.Event
	lastTS time.Time
	seq    int64

	// now 可注入的时钟，零值时使用 time.Now
	now func() time.Time
}

func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{
		events: make([]eventing.Event, 0),
	}
}

// WithClock 注入时钟（仅测试使用）
func (m *MemoryEventStore) WithClock(now func() time.Time) *MemoryEventStore {
	m.now = now
	return m
}

func (m *MemoryEventStore) Append(ctx context.Context, eventType string, payload map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	evt := eventing.NewEvent(eventType, payload)

	ts := time.Now()
	if m.now != nil {
		ts = m.now()
	}
	// 时间戳单调不减；同一时间戳内由 Seq 决定次序
	if ts.Before(m.lastTS) {
		ts = m.lastTS
	}
	m.lastTS = ts
	m.seq++

	evt.Timestamp = ts
	evt.Seq = m.seq
	m.events = append(m.events, evt)

	return evt.ID, nil
}

func (m *MemoryEventStore) StreamAll(ctx context.Context) ([]eventing.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	res := make([]eventing.Event, len(m.events))
	copy(res, m.events)
	return res, nil
}

func (m *MemoryEventStore) StreamForKey(ctx context.Context, itemID string) ([]eventing.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	res := make([]eventing.Event, 0)
	for _, e := range m.events {
		if e.ItemID() == itemID {
			res = append(res, e)
		}
	}
	return res, nil
}

// Len 返回当前事件总数（用于测试断言事件数不变）
func (m *MemoryEventStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events)
}
