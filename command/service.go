// Package command 提供库存核心的命令服务：唯一的写入口
//
// 每一次库存状态变更都必须经过这里，保证事件日志是忠实的因果记录。
// 顺序约定：先写仓储、确认成功后再追加事件（write-then-log），
// 绝不先记日志——避免为不存在的物品留下幻影事件。
// 反向的弱点被有意接受：仓储写入成功而事件追加失败时，
// 状态与日志出现可补偿的不一致，此时错误带上下文记录并向调用方传播。
package command

import (
	"context"

	"stockroom/errors"
	"stockroom/eventing"
	estore "stockroom/eventing/store"
	"stockroom/inventory"
	"stockroom/logging"
	"stockroom/messaging"
	"stockroom/validation"
)

// 默认库存：新用户开通时创建的物品（每用户各一份）
var defaultInventoryItems = []inventory.Item{
	{Name: "Sample Item 1", Quantity: 10},
	{Name: "Sample Item 2", Quantity: 5},
}

// Service 命令服务
type Service struct {
	items    inventory.IItemRepository
	shopping inventory.IShoppingListRepository
	users    inventory.IUserRepository
	events   estore.IEventStore
	// publisher 可选：开通用户后向共享通知主题发布注册通知
	publisher messaging.IPublisher
	logger    logging.Logger
}

// Config 命令服务依赖
type Config struct {
	Items     inventory.IItemRepository
	Shopping  inventory.IShoppingListRepository
	Users     inventory.IUserRepository
	Events    estore.IEventStore
	Publisher messaging.IPublisher
	Logger    logging.Logger
}

// NewService 创建命令服务
func NewService(cfg Config) *Service {
	if cfg.Logger == nil {
		cfg.Logger = logging.GetLogger().WithFields(logging.String("component", "command"))
	}
	return &Service{
		items:     cfg.Items,
		shopping:  cfg.Shopping,
		users:     cfg.Users,
		events:    cfg.Events,
		publisher: cfg.Publisher,
		logger:    cfg.Logger,
	}
}

// CreateItemInput 创建物品命令输入
type CreateItemInput struct {
	UserID     string `json:"user_id"`
	Name       string `json:"name"`
	CategoryID string `json:"category_id"`
	LocationID string `json:"location_id"`
	Quantity   int    `json:"quantity"`
}

// CreateItem 创建库存物品并追加 ItemCreated 事件，返回新键
func (s *Service) CreateItem(ctx context.Context, input CreateItemInput) (string, error) {
	if err := validation.ValidateRequired(input.Name, "name"); err != nil {
		return "", err
	}
	if err := validation.ValidateRequired(input.UserID, "user_id"); err != nil {
		return "", err
	}
	if err := validation.ValidateNonNegative(input.Quantity, "quantity"); err != nil {
		return "", err
	}

	item := &inventory.Item{
		UserID:     input.UserID,
		Name:       input.Name,
		CategoryID: input.CategoryID,
		LocationID: input.LocationID,
		Quantity:   input.Quantity,
	}
	id, err := s.items.Create(ctx, item)
	if err != nil {
		s.logger.Error(ctx, "create item failed",
			logging.String("name", input.Name), logging.String("user_id", input.UserID), logging.Error(err))
		return "", err
	}

	payload := map[string]any{
		eventing.PayloadKeyItemID: id,
		eventing.PayloadKeyUserID: input.UserID,
		"name":                    input.Name,
		"category_id":             input.CategoryID,
		"location_id":             input.LocationID,
		"quantity":                input.Quantity,
	}
	if _, err := s.events.Append(ctx, eventing.EventItemCreated, payload); err != nil {
		s.logger.Error(ctx, "append ItemCreated failed, state and log diverged",
			logging.String("item_id", id), logging.Any("payload", payload), logging.Error(err))
		return "", err
	}

	s.logger.Info(ctx, "item created", logging.String("item_id", id), logging.String("name", input.Name))
	return id, nil
}

// UpdateItem 按键应用部分更新并追加 ItemUpdated 事件
//
// 仅当仓储确认键存在时才追加事件；未找到返回 NOT_FOUND。
func (s *Service) UpdateItem(ctx context.Context, id string, fields map[string]any) (*inventory.Item, error) {
	if err := validation.ValidateRequired(id, "item_id"); err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, errors.NewValidationError("no fields to update")
	}
	for name := range fields {
		if !inventory.IsUpdatableField(name) {
			return nil, errors.NewValidationError("unknown field %q in partial update", name)
		}
	}

	item, err := s.items.Update(ctx, id, fields)
	if err != nil {
		if errors.IsNotFound(err) {
			s.logger.Warn(ctx, "item not found for update", logging.String("item_id", id))
			return nil, err
		}
		s.logger.Error(ctx, "update item failed",
			logging.String("item_id", id), logging.Any("fields", fields), logging.Error(err))
		return nil, err
	}

	payload := map[string]any{
		eventing.PayloadKeyItemID:        id,
		eventing.PayloadKeyUpdatedFields: fields,
	}
	if _, err := s.events.Append(ctx, eventing.EventItemUpdated, payload); err != nil {
		s.logger.Error(ctx, "append ItemUpdated failed, state and log diverged",
			logging.String("item_id", id), logging.Any("payload", payload), logging.Error(err))
		return nil, err
	}

	s.logger.Info(ctx, "item updated", logging.String("item_id", id))
	return item, nil
}

// DeleteItem 按键删除物品并追加 ItemDeleted 事件
//
// 返回是否确实删除了一行；只有确实删除时才追加事件。
func (s *Service) DeleteItem(ctx context.Context, id string) (bool, error) {
	if err := validation.ValidateRequired(id, "item_id"); err != nil {
		return false, err
	}

	deleted, err := s.items.Delete(ctx, id)
	if err != nil {
		s.logger.Error(ctx, "delete item failed", logging.String("item_id", id), logging.Error(err))
		return false, err
	}
	if !deleted {
		s.logger.Warn(ctx, "item not found for deletion", logging.String("item_id", id))
		return false, nil
	}

	payload := map[string]any{eventing.PayloadKeyItemID: id}
	if _, err := s.events.Append(ctx, eventing.EventItemDeleted, payload); err != nil {
		s.logger.Error(ctx, "append ItemDeleted failed, state and log diverged",
			logging.String("item_id", id), logging.Error(err))
		return false, err
	}

	s.logger.Info(ctx, "item deleted", logging.String("item_id", id))
	return true, nil
}

// AdjustQuantity 按增量调整数量并追加 QuantityUpdated 事件
//
// 增量可以为负；数量下限由仓储的 QuantityPolicy 决定。
// 被策略拒绝或未找到时不追加事件。
func (s *Service) AdjustQuantity(ctx context.Context, id string, delta int) (*inventory.Item, error) {
	if err := validation.ValidateRequired(id, "item_id"); err != nil {
		return nil, err
	}

	item, err := s.items.AdjustQuantity(ctx, id, delta)
	if err != nil {
		if errors.IsNotFound(err) || errors.IsValidation(err) {
			s.logger.Warn(ctx, "quantity adjustment not applied",
				logging.String("item_id", id), logging.Int("delta", delta), logging.Error(err))
			return nil, err
		}
		s.logger.Error(ctx, "adjust quantity failed",
			logging.String("item_id", id), logging.Int("delta", delta), logging.Error(err))
		return nil, err
	}

	payload := map[string]any{
		eventing.PayloadKeyItemID: id,
		eventing.PayloadKeyDelta:  delta,
	}
	if _, err := s.events.Append(ctx, eventing.EventQuantityChange, payload); err != nil {
		s.logger.Error(ctx, "append QuantityUpdated failed, state and log diverged",
			logging.String("item_id", id), logging.Int("delta", delta), logging.Error(err))
		return nil, err
	}

	s.logger.Info(ctx, "quantity adjusted",
		logging.String("item_id", id), logging.Int("delta", delta), logging.Int("quantity", item.Quantity))
	return item, nil
}

// GetItem 按键读取物品
func (s *Service) GetItem(ctx context.Context, id string) (*inventory.Item, error) {
	return s.items.Get(ctx, id)
}

// ListItems 按过滤条件列出物品
func (s *Service) ListItems(ctx context.Context, filter inventory.Filter) ([]*inventory.Item, error) {
	return s.items.List(ctx, filter)
}

// ListItemsByCategory 列出指定分类下的物品
func (s *Service) ListItemsByCategory(ctx context.Context, categoryID string) ([]*inventory.Item, error) {
	return s.items.List(ctx, inventory.Filter{CategoryID: categoryID})
}

// ProvisionDefaultInventory 为新用户开通默认库存
//
// 幂等：用户名下已有任何物品时直接跳过（重复的注册通知不会
// 产生重复的默认物品）。每个默认物品都走常规创建路径，
// 因此各自追加一条 ItemCreated 事件。
func (s *Service) ProvisionDefaultInventory(ctx context.Context, userID string) error {
	if err := validation.ValidateRequired(userID, "user_id"); err != nil {
		return err
	}

	n, err := s.items.CountByUser(ctx, userID)
	if err != nil {
		s.logger.Error(ctx, "count items for provisioning failed",
			logging.String("user_id", userID), logging.Error(err))
		return err
	}
	if n > 0 {
		s.logger.Info(ctx, "default inventory already provisioned, skipping",
			logging.String("user_id", userID), logging.Int64("existing_items", n))
		return nil
	}

	for _, tmpl := range defaultInventoryItems {
		_, err := s.CreateItem(ctx, CreateItemInput{
			UserID:   userID,
			Name:     tmpl.Name,
			Quantity: tmpl.Quantity,
		})
		if err != nil {
			s.logger.Error(ctx, "provision default item failed",
				logging.String("user_id", userID), logging.String("name", tmpl.Name), logging.Error(err))
			return err
		}
	}

	s.logger.Info(ctx, "default inventory provisioned",
		logging.String("user_id", userID), logging.Int("item_count", len(defaultInventoryItems)))
	return nil
}
