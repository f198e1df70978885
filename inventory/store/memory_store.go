// Package store 提供库存仓储的内存、SQL 与缓存实现
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"stockroom/errors"
	"stockroom/inventory"
)

// MemoryItemRepository 库存物品仓储的内存实现，用于测试与示例
type MemoryItemRepository struct {
	mu     sync.RWMutex
	items  map[string]*inventory.Item
	policy inventory.QuantityPolicy
}

func NewMemoryItemRepository(policy inventory.QuantityPolicy) *MemoryItemRepository {
	if policy == "" {
		policy = inventory.QuantityPolicyReject
	}
	return &MemoryItemRepository{
		items:  make(map[string]*inventory.Item),
		policy: policy,
	}
}

func (r *MemoryItemRepository) Create(ctx context.Context, item *inventory.Item) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := *item
	if clone.ID == "" {
		clone.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = now
	}
	if clone.UpdatedAt.IsZero() {
		clone.UpdatedAt = clone.CreatedAt
	}
	r.items[clone.ID] = &clone
	item.ID = clone.ID
	return clone.ID, nil
}

func (r *MemoryItemRepository) Get(ctx context.Context, id string) (*inventory.Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[id]
	if !ok {
		return nil, errors.NewNotFoundError("item %s not found", id)
	}
	clone := *item
	return &clone, nil
}

func (r *MemoryItemRepository) List(ctx context.Context, filter inventory.Filter) ([]*inventory.Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := make([]*inventory.Item, 0)
	for _, item := range r.items {
		if filter.UserID != "" && item.UserID != filter.UserID {
			continue
		}
		if filter.CategoryID != "" && item.CategoryID != filter.CategoryID {
			continue
		}
		clone := *item
		res = append(res, &clone)
	}
	// 稳定输出顺序，便于调用方与测试
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	return res, nil
}

func (r *MemoryItemRepository) Update(ctx context.Context, id string, fields map[string]any) (*inventory.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[id]
	if !ok {
		return nil, errors.NewNotFoundError("item %s not found", id)
	}
	applyItemFields(item, fields)
	item.UpdatedAt = time.Now().UTC()
	clone := *item
	return &clone, nil
}

func (r *MemoryItemRepository) Delete(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return false, nil
	}
	delete(r.items, id)
	return true, nil
}

func (r *MemoryItemRepository) AdjustQuantity(ctx context.Context, id string, delta int) (*inventory.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[id]
	if !ok {
		return nil, errors.NewNotFoundError("item %s not found", id)
	}
	next, rejected := r.policy.Apply(item.Quantity, delta)
	if rejected {
		return nil, errors.NewValidationError("quantity adjustment by %d would drop item %s below zero", delta, id)
	}
	item.Quantity = next
	item.UpdatedAt = time.Now().UTC()
	clone := *item
	return &clone, nil
}

func (r *MemoryItemRepository) CountByUser(ctx context.Context, userID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var n int64
	for _, item := range r.items {
		if item.UserID == userID {
			n++
		}
	}
	return n, nil
}

// applyItemFields 将规范字段映射应用到物品上
//
// 数值从 JSON 载荷回放时是 float64，直接调用时是 int，两者都接受。
func applyItemFields(item *inventory.Item, fields map[string]any) {
	for name, value := range fields {
		switch name {
		case inventory.FieldName:
			if v, ok := value.(string); ok {
				item.Name = v
			}
		case inventory.FieldCategoryID:
			if v, ok := value.(string); ok {
				item.CategoryID = v
			}
		case inventory.FieldLocationID:
			if v, ok := value.(string); ok {
				item.LocationID = v
			}
		case inventory.FieldQuantity:
			if v, ok := toInt(value); ok {
				item.Quantity = v
			}
		}
	}
}

func toInt(v any) (int, bool) {
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

// MemoryShoppingListRepository 购物清单仓储的内存实现
type MemoryShoppingListRepository struct {
	mu      sync.RWMutex
	entries map[string]*inventory.ShoppingListItem
}

func NewMemoryShoppingListRepository() *MemoryShoppingListRepository {
	return &MemoryShoppingListRepository{
		entries: make(map[string]*inventory.ShoppingListItem),
	}
}

func (r *MemoryShoppingListRepository) Create(ctx context.Context, entry *inventory.ShoppingListItem) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := *entry
	if clone.ID == "" {
		clone.ID = uuid.NewString()
	}
	if clone.Quantity == 0 {
		clone.Quantity = 1
	}
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now().UTC()
	}
	r.entries[clone.ID] = &clone
	entry.ID = clone.ID
	return clone.ID, nil
}

func (r *MemoryShoppingListRepository) Get(ctx context.Context, id string) (*inventory.ShoppingListItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[id]
	if !ok {
		return nil, errors.NewNotFoundError("shopping entry %s not found", id)
	}
	clone := *entry
	return &clone, nil
}

func (r *MemoryShoppingListRepository) ListByUser(ctx context.Context, userID string) ([]*inventory.ShoppingListItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := make([]*inventory.ShoppingListItem, 0)
	for _, entry := range r.entries {
		if entry.UserID == userID {
			clone := *entry
			res = append(res, &clone)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	return res, nil
}

func (r *MemoryShoppingListRepository) Update(ctx context.Context, id string, fields map[string]any) (*inventory.ShoppingListItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if !ok {
		return nil, errors.NewNotFoundError("shopping entry %s not found", id)
	}
	for name, value := range fields {
		switch name {
		case inventory.FieldItemName:
			if v, ok := value.(string); ok {
				entry.ItemName = v
			}
		case inventory.FieldQuantity:
			if v, ok := toInt(value); ok {
				entry.Quantity = v
			}
		case inventory.FieldPurchased:
			if v, ok := value.(bool); ok {
				entry.Purchased = v
			}
		}
	}
	clone := *entry
	return &clone, nil
}

func (r *MemoryShoppingListRepository) Delete(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[id]; !ok {
		return false, nil
	}
	delete(r.entries, id)
	return true, nil
}

// MemoryUserRepository 用户仓储的内存实现
type MemoryUserRepository struct {
	mu    sync.RWMutex
	users map[string]*inventory.User
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[string]*inventory.User)}
}

func (r *MemoryUserRepository) Create(ctx context.Context, user *inventory.User) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := *user
	if clone.ID == "" {
		clone.ID = uuid.NewString()
	}
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now().UTC()
	}
	r.users[clone.ID] = &clone
	user.ID = clone.ID
	return clone.ID, nil
}

func (r *MemoryUserRepository) Get(ctx context.Context, id string) (*inventory.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return nil, errors.NewNotFoundError("user %s not found", id)
	}
	clone := *user
	return &clone, nil
}

func (r *MemoryUserRepository) GetByEmail(ctx context.Context, email string) (*inventory.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, user := range r.users {
		if user.Email == email {
			clone := *user
			return &clone, nil
		}
	}
	return nil, errors.NewNotFoundError("user with email %s not found", email)
}
