// Package replay 提供事件重放引擎：把事件日志按序折叠回物品仓储
//
// 重放是恢复路径，不保证仓储起点为空，因此每一步都以 upsert 语义
// 应用：ItemCreated 覆盖写入、ItemUpdated 对缺失的键跳过而不是失败。
// 同一日志在同一策略下重放两次得到同一状态。
package replay

import (
	"context"
	"sync"

	"stockroom/errors"
	"stockroom/eventing"
	estore "stockroom/eventing/store"
	"stockroom/inventory"
	"stockroom/logging"
)

// State 引擎状态
type State string

const (
	StateIdle      State = "idle"
	StateReplaying State = "replaying"
	StateFailed    State = "failed"
)

// Engine 事件重放引擎
//
// 同一引擎上的重放串行化：重放过程中再次触发重放返回错误，
// 避免两次折叠交错产生无法解释的中间状态。
type Engine struct {
	events estore.IEventStore
	items  inventory.IItemRepository
	logger logging.Logger

	mu    sync.Mutex
	state State
}

// NewEngine 创建重放引擎
func NewEngine(events estore.IEventStore, items inventory.IItemRepository, logger logging.Logger) *Engine {
	if logger == nil {
		logger = logging.GetLogger().WithFields(logging.String("component", "replay"))
	}
	return &Engine{events: events, items: items, logger: logger, state: StateIdle}
}

// State 返回当前引擎状态
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// ReplayAll 重放完整事件日志，返回应用的事件数
func (e *Engine) ReplayAll(ctx context.Context) (int, error) {
	return e.run(ctx, func(ctx context.Context) ([]eventing.Event, error) {
		return e.events.StreamAll(ctx)
	})
}

// ReplayItem 重放单个物品的事件子流
//
// 子流保持全量日志中的相对顺序，重放结果只影响该键。
func (e *Engine) ReplayItem(ctx context.Context, itemID string) (int, error) {
	if itemID == "" {
		return 0, errors.NewValidationError("item_id is required")
	}
	return e.run(ctx, func(ctx context.Context) ([]eventing.Event, error) {
		return e.events.StreamForKey(ctx, itemID)
	})
}

func (e *Engine) run(ctx context.Context, load func(context.Context) ([]eventing.Event, error)) (int, error) {
	e.mu.Lock()
	if e.state == StateReplaying {
		e.mu.Unlock()
		return 0, errors.NewValidationError("replay already in progress")
	}
	e.state = StateReplaying
	e.mu.Unlock()

	finish := func(s State) {
		e.mu.Lock()
		e.state = s
		e.mu.Unlock()
	}

	stream, err := load(ctx)
	if err != nil {
		e.logger.Error(ctx, "load event stream failed", logging.Error(err))
		finish(StateFailed)
		return 0, err
	}

	applied := 0
	for _, event := range stream {
		if err := ctx.Err(); err != nil {
			finish(StateFailed)
			return applied, errors.NewStorageError("replay interrupted", err)
		}
		if err := e.apply(ctx, event); err != nil {
			e.logger.Error(ctx, "apply event failed",
				logging.String("event_id", event.ID), logging.String("event_type", event.Type), logging.Error(err))
			finish(StateFailed)
			return applied, err
		}
		applied++
	}

	e.logger.Info(ctx, "replay complete", logging.Int("events_applied", applied))
	finish(StateIdle)
	return applied, nil
}

// apply 把单个事件折叠到仓储上
func (e *Engine) apply(ctx context.Context, event eventing.Event) error {
	switch event.Type {
	case eventing.EventItemCreated:
		return e.applyCreated(ctx, event)
	case eventing.EventItemUpdated:
		return e.applyUpdated(ctx, event)
	case eventing.EventItemDeleted:
		return e.applyDeleted(ctx, event)
	case eventing.EventQuantityChange:
		return e.applyQuantity(ctx, event)
	case eventing.EventUserSignedUp:
		// 用户注册不影响物品状态
		return nil
	default:
		// 未知类型跳过：老引擎必须能读新日志
		e.logger.Warn(ctx, "skipping unknown event type",
			logging.String("event_id", event.ID), logging.String("event_type", event.Type))
		return nil
	}
}

func (e *Engine) applyCreated(ctx context.Context, event eventing.Event) error {
	id := event.ItemID()
	if id == "" {
		return errors.NewValidationError("ItemCreated event %s has no item_id", event.ID)
	}

	item := itemFromPayload(id, event.Payload)

	// 键已存在时先删再建：部分更新覆盖不到 user_id，
	// 完整快照（含归属）必须以新行落库，重放才幂等
	if _, err := e.items.Delete(ctx, id); err != nil {
		return err
	}
	_, err := e.items.Create(ctx, item)
	return err
}

func (e *Engine) applyUpdated(ctx context.Context, event eventing.Event) error {
	id := event.ItemID()
	if id == "" {
		return errors.NewValidationError("ItemUpdated event %s has no item_id", event.ID)
	}
	fields := event.UpdatedFields()
	if len(fields) == 0 {
		return nil
	}
	// 白名单过滤：日志里可能混有后续版本新增的字段
	filtered := make(map[string]any, len(fields))
	for name, value := range fields {
		if inventory.IsUpdatableField(name) {
			filtered[name] = value
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	if _, err := e.items.Update(ctx, id, filtered); err != nil {
		if errors.IsNotFound(err) {
			// 后被删除的物品，更新跳过
			return nil
		}
		return err
	}
	return nil
}

func (e *Engine) applyDeleted(ctx context.Context, event eventing.Event) error {
	id := event.ItemID()
	if id == "" {
		return errors.NewValidationError("ItemDeleted event %s has no item_id", event.ID)
	}
	// 已不存在视为成功
	_, err := e.items.Delete(ctx, id)
	return err
}

func (e *Engine) applyQuantity(ctx context.Context, event eventing.Event) error {
	id := event.ItemID()
	if id == "" {
		return errors.NewValidationError("QuantityUpdated event %s has no item_id", event.ID)
	}
	delta, ok := event.Delta()
	if !ok {
		return errors.NewValidationError("QuantityUpdated event %s has no delta", event.ID)
	}
	if _, err := e.items.AdjustQuantity(ctx, id, delta); err != nil {
		if errors.IsNotFound(err) {
			return nil
		}
		return err
	}
	return nil
}

func itemFromPayload(id string, payload map[string]any) *inventory.Item {
	item := &inventory.Item{ID: id}
	if v, ok := payload[eventing.PayloadKeyUserID].(string); ok {
		item.UserID = v
	}
	if v, ok := payload["name"].(string); ok {
		item.Name = v
	}
	if v, ok := payload["category_id"].(string); ok {
		item.CategoryID = v
	}
	if v, ok := payload["location_id"].(string); ok {
		item.LocationID = v
	}
	if q, ok := quantityFromPayload(payload["quantity"]); ok {
		item.Quantity = q
	}
	return item
}

// quantityFromPayload 事件经 JSON 往返后数字是 float64
func quantityFromPayload(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
