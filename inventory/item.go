// Package inventory 提供库存领域模型与仓储抽象
package inventory

import (
	"fmt"
	"strings"
	"time"
)

// Item 库存物品
//
// 键由仓储在创建时分配（不透明字符串）。
// Quantity 在成功的数量调整命令之后永远不可观测为负
// （越界调整按 QuantityPolicy 处理）。
type Item struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Name       string    `json:"name"`
	CategoryID string    `json:"category_id"`
	LocationID string    `json:"location_id"`
	Quantity   int       `json:"quantity"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// 物品可部分更新的规范字段名
//
// 历史数据存在 category_id / catefory_id 的字段名漂移，
// 规范模式取 category_id，边界处拒绝其他写法。
const (
	FieldName       = "name"
	FieldCategoryID = "category_id"
	FieldLocationID = "location_id"
	FieldQuantity   = "quantity"
)

// updatableFields 允许出现在部分更新里的字段集合
var updatableFields = map[string]bool{
	FieldName:       true,
	FieldCategoryID: true,
	FieldLocationID: true,
	FieldQuantity:   true,
}

// IsUpdatableField 判断字段是否允许部分更新
func IsUpdatableField(name string) bool {
	return updatableFields[name]
}

// Filter 物品列表查询过滤条件，零值字段不参与过滤
type Filter struct {
	UserID     string
	CategoryID string
}

// QuantityPolicy 数量下限策略
//
// 决定会把数量驱动到负数的调整如何处理：
//   - reject: 拒绝该次调整，返回验证错误，不产生事件
//   - clamp:  将结果钳制为 0
//   - allow:  允许负数（视为缺货预订）
//
// 默认 reject：被拒绝的调整不追加事件，重放与直接执行保持等价。
type QuantityPolicy string

const (
	QuantityPolicyReject QuantityPolicy = "reject"
	QuantityPolicyClamp  QuantityPolicy = "clamp"
	QuantityPolicyAllow  QuantityPolicy = "allow"
)

// ParseQuantityPolicy 解析策略名称
func ParseQuantityPolicy(s string) (QuantityPolicy, error) {
	switch QuantityPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case QuantityPolicyReject, "":
		return QuantityPolicyReject, nil
	case QuantityPolicyClamp:
		return QuantityPolicyClamp, nil
	case QuantityPolicyAllow:
		return QuantityPolicyAllow, nil
	}
	return "", fmt.Errorf("unknown quantity policy %q", s)
}

// Apply 按策略计算调整结果
//
// 返回：
//   - int:  新数量
//   - bool: 该次调整是否被策略拒绝
func (p QuantityPolicy) Apply(current, delta int) (int, bool) {
	next := current + delta
	if next >= 0 {
		return next, false
	}
	switch p {
	case QuantityPolicyClamp:
		return 0, false
	case QuantityPolicyAllow:
		return next, false
	default:
		return current, true
	}
}
