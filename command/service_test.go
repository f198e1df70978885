package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"stockroom/errors"
	"stockroom/eventing"
	estore "stockroom/eventing/store"
	"stockroom/inventory"
	istore "stockroom/inventory/store"
	"stockroom/messaging"
)

func newTestService(policy inventory.QuantityPolicy) (*Service, *estore.MemoryEventStore) {
	events := estore.NewMemoryEventStore()
	svc := NewService(Config{
		Items:    istore.NewMemoryItemRepository(policy),
		Shopping: istore.NewMemoryShoppingListRepository(),
		Users:    istore.NewMemoryUserRepository(),
		Events:   events,
	})
	return svc, events
}

// capturePublisher 记录发布的消息
type capturePublisher struct {
	messages []messaging.IMessage
	err      error
}

func (p *capturePublisher) Publish(ctx context.Context, msg messaging.IMessage) error {
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, msg)
	return nil
}

func TestCreateItem_AppendsExactlyOneEvent(t *testing.T) {
	svc, events := newTestService(inventory.QuantityPolicyReject)
	ctx := context.Background()

	id, err := svc.CreateItem(ctx, CreateItemInput{UserID: "u1", Name: "Flour", Quantity: 3})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	all, err := events.StreamAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, eventing.EventItemCreated, all[0].Type)
	require.Equal(t, id, all[0].ItemID())
}

func TestCreateItem_Validation(t *testing.T) {
	svc, events := newTestService(inventory.QuantityPolicyReject)
	ctx := context.Background()

	_, err := svc.CreateItem(ctx, CreateItemInput{UserID: "u1", Quantity: 1})
	require.True(t, errors.IsValidation(err))

	_, err = svc.CreateItem(ctx, CreateItemInput{UserID: "u1", Name: "Flour", Quantity: -1})
	require.True(t, errors.IsValidation(err))

	// 被拒绝的命令不得追加事件
	require.Zero(t, events.Len())
}

func TestUpdateItem_NotFoundAppendsNoEvent(t *testing.T) {
	svc, events := newTestService(inventory.QuantityPolicyReject)
	ctx := context.Background()

	_, err := svc.UpdateItem(ctx, "missing", map[string]any{inventory.FieldName: "x"})
	require.True(t, errors.IsNotFound(err))
	require.Zero(t, events.Len())
}

func TestUpdateItem_RejectsUnknownField(t *testing.T) {
	svc, _ := newTestService(inventory.QuantityPolicyReject)
	ctx := context.Background()

	id, err := svc.CreateItem(ctx, CreateItemInput{UserID: "u1", Name: "Flour"})
	require.NoError(t, err)

	_, err = svc.UpdateItem(ctx, id, map[string]any{"id": "hijack"})
	require.True(t, errors.IsValidation(err))
}

func TestDeleteItem_MissingKeyIsFalseWithoutEvent(t *testing.T) {
	svc, events := newTestService(inventory.QuantityPolicyReject)
	ctx := context.Background()

	deleted, err := svc.DeleteItem(ctx, "missing")
	require.NoError(t, err)
	require.False(t, deleted)
	require.Zero(t, events.Len())
}

func TestAdjustQuantity_DeltasAccumulate(t *testing.T) {
	svc, events := newTestService(inventory.QuantityPolicyReject)
	ctx := context.Background()

	id, err := svc.CreateItem(ctx, CreateItemInput{UserID: "u1", Name: "Flour", Quantity: 5})
	require.NoError(t, err)

	item, err := svc.AdjustQuantity(ctx, id, 3)
	require.NoError(t, err)
	require.Equal(t, 8, item.Quantity)

	item, err = svc.AdjustQuantity(ctx, id, -2)
	require.NoError(t, err)
	require.Equal(t, 6, item.Quantity)

	stream, err := events.StreamForKey(ctx, id)
	require.NoError(t, err)
	require.Len(t, stream, 3) // created + 两次调整
}

func TestAdjustQuantity_RejectedAppendsNoEvent(t *testing.T) {
	svc, events := newTestService(inventory.QuantityPolicyReject)
	ctx := context.Background()

	id, err := svc.CreateItem(ctx, CreateItemInput{UserID: "u1", Name: "Flour", Quantity: 2})
	require.NoError(t, err)
	before := events.Len()

	_, err = svc.AdjustQuantity(ctx, id, -5)
	require.True(t, errors.IsValidation(err))
	require.Equal(t, before, events.Len())

	// 状态未被部分应用
	item, err := svc.GetItem(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 2, item.Quantity)
}

func TestProvisionDefaultInventory(t *testing.T) {
	svc, events := newTestService(inventory.QuantityPolicyReject)
	ctx := context.Background()

	require.NoError(t, svc.ProvisionDefaultInventory(ctx, "u1"))

	items, err := svc.ListItems(ctx, inventory.Filter{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, items, 2)

	byName := map[string]int{}
	for _, it := range items {
		byName[it.Name] = it.Quantity
	}
	require.Equal(t, 10, byName["Sample Item 1"])
	require.Equal(t, 5, byName["Sample Item 2"])
	require.Equal(t, 2, events.Len())
}

func TestProvisionDefaultInventory_Idempotent(t *testing.T) {
	svc, events := newTestService(inventory.QuantityPolicyReject)
	ctx := context.Background()

	require.NoError(t, svc.ProvisionDefaultInventory(ctx, "u1"))
	require.NoError(t, svc.ProvisionDefaultInventory(ctx, "u1"))

	items, err := svc.ListItems(ctx, inventory.Filter{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, 2, events.Len())
}

func TestOnboardUser_PublishesNotification(t *testing.T) {
	events := estore.NewMemoryEventStore()
	pub := &capturePublisher{}
	svc := NewService(Config{
		Items:     istore.NewMemoryItemRepository(inventory.QuantityPolicyReject),
		Shopping:  istore.NewMemoryShoppingListRepository(),
		Users:     istore.NewMemoryUserRepository(),
		Events:    events,
		Publisher: pub,
	})
	ctx := context.Background()

	user, err := svc.OnboardUser(ctx, OnboardUserInput{FullName: "Ann Chen", Email: "ann@example.com"})
	require.NoError(t, err)
	require.NotEmpty(t, user.ID)

	require.Len(t, pub.messages, 1)
	msg := pub.messages[0]
	require.Equal(t, messaging.TypeUserSignedUp, msg.GetType())
	require.Equal(t, user.ID, msg.GetPayload()[messaging.PayloadKeyUserID])

	all, err := events.StreamAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, eventing.EventUserSignedUp, all[0].Type)
}

func TestOnboardUser_DuplicateEmailRejected(t *testing.T) {
	svc, _ := newTestService(inventory.QuantityPolicyReject)
	ctx := context.Background()

	_, err := svc.OnboardUser(ctx, OnboardUserInput{FullName: "Ann", Email: "ann@example.com"})
	require.NoError(t, err)

	_, err = svc.OnboardUser(ctx, OnboardUserInput{FullName: "Another Ann", Email: "ann@example.com"})
	require.True(t, errors.IsValidation(err))
}

func TestOnboardUser_InvalidEmail(t *testing.T) {
	svc, _ := newTestService(inventory.QuantityPolicyReject)
	ctx := context.Background()

	_, err := svc.OnboardUser(ctx, OnboardUserInput{FullName: "Ann", Email: "not-an-email"})
	require.True(t, errors.IsValidation(err))
}

func TestShoppingEntries_CRUD(t *testing.T) {
	svc, _ := newTestService(inventory.QuantityPolicyReject)
	ctx := context.Background()

	id, err := svc.AddShoppingEntry(ctx, AddShoppingEntryInput{UserID: "u1", ItemName: "Milk", Quantity: 2})
	require.NoError(t, err)

	entry, err := svc.UpdateShoppingEntry(ctx, id, map[string]any{inventory.FieldPurchased: true})
	require.NoError(t, err)
	require.True(t, entry.Purchased)

	entries, err := svc.ListShoppingEntries(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, entries, 1)

	deleted, err := svc.RemoveShoppingEntry(ctx, id)
	require.NoError(t, err)
	require.True(t, deleted)

	entries, err = svc.ListShoppingEntries(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestAddShoppingEntry_RejectsNonPositiveQuantity(t *testing.T) {
	svc, _ := newTestService(inventory.QuantityPolicyReject)
	ctx := context.Background()

	_, err := svc.AddShoppingEntry(ctx, AddShoppingEntryInput{UserID: "u1", ItemName: "Milk", Quantity: 0})
	require.True(t, errors.IsValidation(err))
}
