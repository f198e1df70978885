package inventory

import "context"

// IItemRepository 库存物品仓储接口
//
// 所有变更操作都是针对单个物品键的原子读-改-写，不需要跨物品事务。
// 预期的查找未命中返回 NOT_FOUND 错误值（errors.IsNotFound 判定），
// 存储不可达等异常情况返回 STORAGE_ERROR。
type IItemRepository interface {
	// Create 创建物品并分配键，返回新键
	Create(ctx context.Context, item *Item) (string, error)

	// Get 按键获取物品
	Get(ctx context.Context, id string) (*Item, error)

	// List 按过滤条件列出物品
	List(ctx context.Context, filter Filter) ([]*Item, error)

	// Update 按键应用部分字段更新，返回更新后的物品
	//
	// 作为副作用刷新 updated_at。字段名必须是规范字段
	// （调用方负责验证，见 IsUpdatableField）。
	Update(ctx context.Context, id string, fields map[string]any) (*Item, error)

	// Delete 按键删除物品，返回是否确实删除了一行
	Delete(ctx context.Context, id string) (bool, error)

	// AdjustQuantity 按增量原子调整数量，返回调整后的物品
	//
	// 数量下限按仓储配置的 QuantityPolicy 处理；
	// 被策略拒绝的调整返回验证错误，物品保持不变。
	AdjustQuantity(ctx context.Context, id string, delta int) (*Item, error)

	// CountByUser 统计指定用户拥有的物品数（用于默认库存的幂等判定）
	CountByUser(ctx context.Context, userID string) (int64, error)
}

// IShoppingListRepository 购物清单仓储接口
type IShoppingListRepository interface {
	// Create 创建条目并分配键，返回新键
	Create(ctx context.Context, entry *ShoppingListItem) (string, error)

	// Get 按键获取条目
	Get(ctx context.Context, id string) (*ShoppingListItem, error)

	// ListByUser 列出指定用户的全部条目
	ListByUser(ctx context.Context, userID string) ([]*ShoppingListItem, error)

	// Update 按键应用部分字段更新，返回更新后的条目
	Update(ctx context.Context, id string, fields map[string]any) (*ShoppingListItem, error)

	// Delete 按键删除条目，返回是否确实删除了一行
	Delete(ctx context.Context, id string) (bool, error)
}

// IUserRepository 用户仓储接口
type IUserRepository interface {
	// Create 创建用户，ID 为空时由仓储分配，返回键
	Create(ctx context.Context, user *User) (string, error)

	// Get 按键获取用户
	Get(ctx context.Context, id string) (*User, error)

	// GetByEmail 按邮箱获取用户
	GetByEmail(ctx context.Context, email string) (*User, error)
}
