package command

import (
	"context"

	"stockroom/errors"
	"stockroom/inventory"
	"stockroom/logging"
	"stockroom/validation"
)

// 购物清单是普通 CRUD，不参与事件溯源：
// 清单条目是意图而非库存事实，重放时无须重建。

// AddShoppingEntryInput 添加购物清单条目的输入
type AddShoppingEntryInput struct {
	UserID   string `json:"user_id"`
	ItemName string `json:"item_name"`
	Quantity int    `json:"quantity"`
}

// AddShoppingEntry 添加购物清单条目，返回新键
func (s *Service) AddShoppingEntry(ctx context.Context, input AddShoppingEntryInput) (string, error) {
	if err := validation.ValidateRequired(input.UserID, "user_id"); err != nil {
		return "", err
	}
	if err := validation.ValidateRequired(input.ItemName, "item_name"); err != nil {
		return "", err
	}
	if input.Quantity <= 0 {
		return "", errors.NewValidationError("quantity must be positive, got %d", input.Quantity)
	}

	entry := &inventory.ShoppingListItem{
		UserID:   input.UserID,
		ItemName: input.ItemName,
		Quantity: input.Quantity,
	}
	id, err := s.shopping.Create(ctx, entry)
	if err != nil {
		s.logger.Error(ctx, "add shopping entry failed",
			logging.String("user_id", input.UserID), logging.Error(err))
		return "", err
	}
	return id, nil
}

// UpdateShoppingEntry 按键部分更新购物清单条目
func (s *Service) UpdateShoppingEntry(ctx context.Context, id string, fields map[string]any) (*inventory.ShoppingListItem, error) {
	if err := validation.ValidateRequired(id, "entry_id"); err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, errors.NewValidationError("no fields to update")
	}
	for name := range fields {
		if !inventory.IsShoppingUpdatableField(name) {
			return nil, errors.NewValidationError("unknown field %q in partial update", name)
		}
	}

	entry, err := s.shopping.Update(ctx, id, fields)
	if err != nil {
		if !errors.IsNotFound(err) {
			s.logger.Error(ctx, "update shopping entry failed", logging.String("entry_id", id), logging.Error(err))
		}
		return nil, err
	}
	return entry, nil
}

// RemoveShoppingEntry 按键删除购物清单条目，返回是否确实删除
func (s *Service) RemoveShoppingEntry(ctx context.Context, id string) (bool, error) {
	if err := validation.ValidateRequired(id, "entry_id"); err != nil {
		return false, err
	}
	deleted, err := s.shopping.Delete(ctx, id)
	if err != nil {
		s.logger.Error(ctx, "remove shopping entry failed", logging.String("entry_id", id), logging.Error(err))
		return false, err
	}
	return deleted, nil
}

// ListShoppingEntries 列出用户的购物清单
func (s *Service) ListShoppingEntries(ctx context.Context, userID string) ([]*inventory.ShoppingListItem, error) {
	if err := validation.ValidateRequired(userID, "user_id"); err != nil {
		return nil, err
	}
	return s.shopping.ListByUser(ctx, userID)
}
