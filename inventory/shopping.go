package inventory

import "time"

// ShoppingListItem 购物清单条目
//
// 独立于库存物品，不走事件溯源路径（与库存命令的不对称是
// 沿袭原系统的设计，见 DESIGN.md）。
type ShoppingListItem struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ItemName  string    `json:"item_name"`
	Quantity  int       `json:"quantity"`
	Purchased bool      `json:"purchased"`
	CreatedAt time.Time `json:"created_at"`
}

// 购物清单条目可部分更新的规范字段名
const (
	FieldItemName  = "item_name"
	FieldPurchased = "purchased"
)

var shoppingUpdatableFields = map[string]bool{
	FieldItemName:  true,
	FieldQuantity:  true,
	FieldPurchased: true,
}

// IsShoppingUpdatableField 判断字段是否允许部分更新
func IsShoppingUpdatableField(name string) bool {
	return shoppingUpdatableFields[name]
}
