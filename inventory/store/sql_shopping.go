package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"stockroom/errors"
	"stockroom/inventory"
)

// SQLShoppingListRepository 基于 database/sql 的购物清单仓储实现
type SQLShoppingListRepository struct {
	db *sql.DB
}

// NewSQLShoppingListRepository 创建 SQL 购物清单仓储
func NewSQLShoppingListRepository(db *sql.DB) *SQLShoppingListRepository {
	return &SQLShoppingListRepository{db: db}
}

// Init 创建购物清单表（幂等）
func (r *SQLShoppingListRepository) Init(ctx context.Context) error {
	schema := `CREATE TABLE IF NOT EXISTS shopping_list_items (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		item_name  TEXT NOT NULL,
		quantity   INTEGER NOT NULL DEFAULT 1,
		purchased  INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	)`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return errors.NewStorageError("create shopping list table failed", err)
	}
	idx := `CREATE INDEX IF NOT EXISTS idx_shopping_user_id ON shopping_list_items (user_id)`
	if _, err := r.db.ExecContext(ctx, idx); err != nil {
		return errors.NewStorageError("create shopping list index failed", err)
	}
	return nil
}

const shoppingColumns = `id, user_id, item_name, quantity, purchased, created_at`

func (r *SQLShoppingListRepository) Create(ctx context.Context, entry *inventory.ShoppingListItem) (string, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Quantity == 0 {
		entry.Quantity = 1
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO shopping_list_items (` + shoppingColumns + `) VALUES (?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.UserID, entry.ItemName, entry.Quantity, entry.Purchased, entry.CreatedAt.UnixNano())
	if err != nil {
		return "", errors.NewStorageError("insert shopping entry failed", err).WithContext("item_name", entry.ItemName)
	}
	return entry.ID, nil
}

func (r *SQLShoppingListRepository) Get(ctx context.Context, id string) (*inventory.ShoppingListItem, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+shoppingColumns+` FROM shopping_list_items WHERE id = ?`, id)
	return scanShoppingEntry(row, id)
}

func (r *SQLShoppingListRepository) ListByUser(ctx context.Context, userID string) ([]*inventory.ShoppingListItem, error) {
	query := `SELECT ` + shoppingColumns + ` FROM shopping_list_items WHERE user_id = ? ORDER BY created_at ASC, id ASC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, errors.NewStorageError("list shopping entries failed", err).WithContext("user_id", userID)
	}
	defer rows.Close()

	entries := make([]*inventory.ShoppingListItem, 0)
	for rows.Next() {
		entry, err := scanShoppingFrom(rows)
		if err != nil {
			return nil, errors.NewStorageError("scan shopping entry row failed", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorageError("iterate shopping entry rows failed", err)
	}
	return entries, nil
}

func (r *SQLShoppingListRepository) Update(ctx context.Context, id string, fields map[string]any) (*inventory.ShoppingListItem, error) {
	if len(fields) == 0 {
		return r.Get(ctx, id)
	}

	sets := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields)+1)
	for name, value := range fields {
		if !inventory.IsShoppingUpdatableField(name) {
			continue
		}
		if name == inventory.FieldQuantity {
			if n, ok := toInt(value); ok {
				value = n
			}
		}
		sets = append(sets, name+" = ?")
		args = append(args, value)
	}
	if len(sets) == 0 {
		return r.Get(ctx, id)
	}
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE shopping_list_items SET %s WHERE id = ? RETURNING %s`,
		strings.Join(sets, ", "), shoppingColumns)
	row := r.db.QueryRowContext(ctx, query, args...)
	return scanShoppingEntry(row, id)
}

func (r *SQLShoppingListRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM shopping_list_items WHERE id = ?`, id)
	if err != nil {
		return false, errors.NewStorageError("delete shopping entry failed", err).WithContext("entry_id", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.NewStorageError("delete shopping entry rows affected failed", err)
	}
	return n > 0, nil
}

func scanShoppingEntry(row *sql.Row, id string) (*inventory.ShoppingListItem, error) {
	entry, err := scanShoppingFrom(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("shopping entry %s not found", id)
	}
	if err != nil {
		return nil, errors.NewStorageError("scan shopping entry failed", err)
	}
	return entry, nil
}

func scanShoppingFrom(s scanner) (*inventory.ShoppingListItem, error) {
	var (
		entry     inventory.ShoppingListItem
		createdAt int64
	)
	if err := s.Scan(&entry.ID, &entry.UserID, &entry.ItemName, &entry.Quantity, &entry.Purchased, &createdAt); err != nil {
		return nil, err
	}
	entry.CreatedAt = time.Unix(0, createdAt).UTC()
	return &entry, nil
}
