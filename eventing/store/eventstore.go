// Package store 提供事件存储的抽象与实现
package store

import (
	"context"

	"stockroom/eventing"
)

// IEventStore 定义追加型事件日志的核心接口（最小化设计）
//
// 事件存储是事件溯源写路径的核心组件：每个成功的命令在仓储
// 写入确认之后追加一条对应事件，重放引擎按序读取事件以重建状态。
//
// 契约：
//   - Append 失败必须向调用方传播，绝不静默丢弃
//   - 事件排序以时间戳升序为准，同一时间戳按插入序号判定
//   - 日志只追加：实现不得提供修改或删除已有事件的途径
type IEventStore interface {
	// Append 追加一条事件，时间戳与序号由存储分配
	//
	// 返回：
	//   - string: 事件ID
	//   - error: 持久化失败时返回 StorageError
	Append(ctx context.Context, eventType string, payload map[string]any) (string, error)

	// StreamAll 按序读取全部事件（时间戳升序，序号决胜）
	//
	// 用于全量重放：以当前日志末尾为界，每次调用从头开始。
	StreamAll(ctx context.Context) ([]eventing.Event, error)

	// StreamForKey 按序读取载荷关联指定物品键的事件子序列
	StreamForKey(ctx context.Context, itemID string) ([]eventing.Event, error)
}
