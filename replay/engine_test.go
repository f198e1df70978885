package replay

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"stockroom/command"
	"stockroom/errors"
	estore "stockroom/eventing/store"
	"stockroom/inventory"
	istore "stockroom/inventory/store"
)

// buildLog 通过命令服务产生一段真实事件日志
func buildLog(t *testing.T) (*estore.MemoryEventStore, string) {
	t.Helper()
	events := estore.NewMemoryEventStore()
	svc := command.NewService(command.Config{
		Items:    istore.NewMemoryItemRepository(inventory.QuantityPolicyReject),
		Shopping: istore.NewMemoryShoppingListRepository(),
		Users:    istore.NewMemoryUserRepository(),
		Events:   events,
	})
	ctx := context.Background()

	id, err := svc.CreateItem(ctx, command.CreateItemInput{UserID: "u1", Name: "Flour", Quantity: 5})
	require.NoError(t, err)
	_, err = svc.AdjustQuantity(ctx, id, 3)
	require.NoError(t, err)
	_, err = svc.AdjustQuantity(ctx, id, -2)
	require.NoError(t, err)
	return events, id
}

func TestReplayAll_RebuildsState(t *testing.T) {
	events, id := buildLog(t)

	// 全新仓储上重放，状态应与命令路径一致
	fresh := istore.NewMemoryItemRepository(inventory.QuantityPolicyReject)
	engine := NewEngine(events, fresh, nil)

	applied, err := engine.ReplayAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, applied)
	require.Equal(t, StateIdle, engine.State())

	item, err := fresh.Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, 6, item.Quantity)
	require.Equal(t, "Flour", item.Name)
}

func TestReplayAll_IdempotentOnNonEmptyRepository(t *testing.T) {
	events, id := buildLog(t)
	repo := istore.NewMemoryItemRepository(inventory.QuantityPolicyReject)
	engine := NewEngine(events, repo, nil)
	ctx := context.Background()

	_, err := engine.ReplayAll(ctx)
	require.NoError(t, err)
	_, err = engine.ReplayAll(ctx)
	require.NoError(t, err)

	// 第二次重放从 ItemCreated 的快照重新折叠，结果不变
	item, err := repo.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 6, item.Quantity)

	items, err := repo.List(ctx, inventory.Filter{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, items, 1)
}

func TestReplayAll_OverwritesDivergentRow(t *testing.T) {
	events, id := buildLog(t)
	repo := istore.NewMemoryItemRepository(inventory.QuantityPolicyReject)
	ctx := context.Background()

	// 同键但归属和内容都漂移了的行：重放必须用事件快照整行覆盖
	_, err := repo.Create(ctx, &inventory.Item{ID: id, UserID: "intruder", Name: "Stale", Quantity: 99})
	require.NoError(t, err)

	engine := NewEngine(events, repo, nil)
	_, err = engine.ReplayAll(ctx)
	require.NoError(t, err)

	item, err := repo.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "u1", item.UserID)
	require.Equal(t, "Flour", item.Name)
	require.Equal(t, 6, item.Quantity)
}

func TestReplayItem_OnlyAffectsKey(t *testing.T) {
	events := estore.NewMemoryEventStore()
	source := istore.NewMemoryItemRepository(inventory.QuantityPolicyReject)
	svc := command.NewService(command.Config{
		Items:    source,
		Shopping: istore.NewMemoryShoppingListRepository(),
		Users:    istore.NewMemoryUserRepository(),
		Events:   events,
	})
	ctx := context.Background()

	flour, err := svc.CreateItem(ctx, command.CreateItemInput{UserID: "u1", Name: "Flour", Quantity: 5})
	require.NoError(t, err)
	sugar, err := svc.CreateItem(ctx, command.CreateItemInput{UserID: "u1", Name: "Sugar", Quantity: 7})
	require.NoError(t, err)
	_, err = svc.AdjustQuantity(ctx, flour, 2)
	require.NoError(t, err)

	fresh := istore.NewMemoryItemRepository(inventory.QuantityPolicyReject)
	engine := NewEngine(events, fresh, nil)

	applied, err := engine.ReplayItem(ctx, flour)
	require.NoError(t, err)
	require.Equal(t, 2, applied)

	item, err := fresh.Get(ctx, flour)
	require.NoError(t, err)
	require.Equal(t, 7, item.Quantity)

	_, err = fresh.Get(ctx, sugar)
	require.True(t, errors.IsNotFound(err))
}

func TestReplayAll_DeletedItemStaysDeleted(t *testing.T) {
	events := estore.NewMemoryEventStore()
	svc := command.NewService(command.Config{
		Items:    istore.NewMemoryItemRepository(inventory.QuantityPolicyReject),
		Shopping: istore.NewMemoryShoppingListRepository(),
		Users:    istore.NewMemoryUserRepository(),
		Events:   events,
	})
	ctx := context.Background()

	id, err := svc.CreateItem(ctx, command.CreateItemInput{UserID: "u1", Name: "Flour", Quantity: 5})
	require.NoError(t, err)
	deleted, err := svc.DeleteItem(ctx, id)
	require.NoError(t, err)
	require.True(t, deleted)

	fresh := istore.NewMemoryItemRepository(inventory.QuantityPolicyReject)
	engine := NewEngine(events, fresh, nil)

	applied, err := engine.ReplayAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, applied)

	_, err = fresh.Get(ctx, id)
	require.True(t, errors.IsNotFound(err))
}

func TestReplayAll_SkipsUnknownEventTypes(t *testing.T) {
	events := estore.NewMemoryEventStore()
	ctx := context.Background()

	_, err := events.Append(ctx, "ItemArchived", map[string]any{"item_id": "i1"})
	require.NoError(t, err)

	repo := istore.NewMemoryItemRepository(inventory.QuantityPolicyReject)
	engine := NewEngine(events, repo, nil)

	applied, err := engine.ReplayAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, applied)
	require.Equal(t, StateIdle, engine.State())
}

func TestReplayItem_RequiresKey(t *testing.T) {
	engine := NewEngine(estore.NewMemoryEventStore(), istore.NewMemoryItemRepository(inventory.QuantityPolicyReject), nil)
	_, err := engine.ReplayItem(context.Background(), "")
	require.True(t, errors.IsValidation(err))
}

func TestReplayAll_CancelledContext(t *testing.T) {
	events, _ := buildLog(t)
	engine := NewEngine(events, istore.NewMemoryItemRepository(inventory.QuantityPolicyReject), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.ReplayAll(ctx)
	require.Error(t, err)
	require.Equal(t, StateFailed, engine.State())
}
