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

// SQLItemRepository 基于 database/sql 的物品仓储实现
//
// 所有变更操作都是单行原子语句（UPDATE ... RETURNING），
// 与接口要求的按键原子读-改-写语义对应。
// 调用方必须确保所用驱动已通过空导入注册（例如 `_ "modernc.org/sqlite"`）。
type SQLItemRepository struct {
	db     *sql.DB
	policy inventory.QuantityPolicy
}

// NewSQLItemRepository 创建 SQL 物品仓储
func NewSQLItemRepository(db *sql.DB, policy inventory.QuantityPolicy) *SQLItemRepository {
	if policy == "" {
		policy = inventory.QuantityPolicyReject
	}
	return &SQLItemRepository{db: db, policy: policy}
}

// Init 创建物品表（幂等）
func (r *SQLItemRepository) Init(ctx context.Context) error {
	schema := `CREATE TABLE IF NOT EXISTS items (
		id          TEXT PRIMARY KEY,
		user_id     TEXT NOT NULL DEFAULT '',
		name        TEXT NOT NULL,
		category_id TEXT NOT NULL DEFAULT '',
		location_id TEXT NOT NULL DEFAULT '',
		quantity    INTEGER NOT NULL DEFAULT 0,
		created_at  INTEGER NOT NULL,
		updated_at  INTEGER NOT NULL
	)`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return errors.NewStorageError("create items table failed", err)
	}
	idx := `CREATE INDEX IF NOT EXISTS idx_items_user_id ON items (user_id)`
	if _, err := r.db.ExecContext(ctx, idx); err != nil {
		return errors.NewStorageError("create items index failed", err)
	}
	return nil
}

const itemColumns = `id, user_id, name, category_id, location_id, quantity, created_at, updated_at`

func (r *SQLItemRepository) Create(ctx context.Context, item *inventory.Item) (string, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = item.CreatedAt
	}

	query := `INSERT INTO items (` + itemColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		item.ID, item.UserID, item.Name, item.CategoryID, item.LocationID,
		item.Quantity, item.CreatedAt.UnixNano(), item.UpdatedAt.UnixNano())
	if err != nil {
		return "", errors.NewStorageError("insert item failed", err).WithContext("name", item.Name)
	}
	return item.ID, nil
}

func (r *SQLItemRepository) Get(ctx context.Context, id string) (*inventory.Item, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	return scanItem(row, id)
}

func (r *SQLItemRepository) List(ctx context.Context, filter inventory.Filter) ([]*inventory.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items`
	conds := make([]string, 0, 2)
	args := make([]any, 0, 2)
	if filter.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.CategoryID != "" {
		conds = append(conds, "category_id = ?")
		args = append(args, filter.CategoryID)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewStorageError("list items failed", err)
	}
	defer rows.Close()

	items := make([]*inventory.Item, 0)
	for rows.Next() {
		item, err := scanItemRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorageError("iterate item rows failed", err)
	}
	return items, nil
}

func (r *SQLItemRepository) Update(ctx context.Context, id string, fields map[string]any) (*inventory.Item, error) {
	if len(fields) == 0 {
		return r.Get(ctx, id)
	}

	// 字段名已在命令边界验证为规范字段，这里只拼接白名单内的列
	sets := make([]string, 0, len(fields)+1)
	args := make([]any, 0, len(fields)+2)
	for name, value := range fields {
		if !inventory.IsUpdatableField(name) {
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
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC().UnixNano(), id)

	query := fmt.Sprintf(`UPDATE items SET %s WHERE id = ? RETURNING %s`,
		strings.Join(sets, ", "), itemColumns)
	row := r.db.QueryRowContext(ctx, query, args...)
	return scanItem(row, id)
}

func (r *SQLItemRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return false, errors.NewStorageError("delete item failed", err).WithContext("item_id", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.NewStorageError("delete item rows affected failed", err)
	}
	return n > 0, nil
}

func (r *SQLItemRepository) AdjustQuantity(ctx context.Context, id string, delta int) (*inventory.Item, error) {
	now := time.Now().UTC().UnixNano()

	var (
		query string
		args  []any
	)
	switch r.policy {
	case inventory.QuantityPolicyClamp:
		query = `UPDATE items SET quantity = MAX(0, quantity + ?), updated_at = ? WHERE id = ? RETURNING ` + itemColumns
		args = []any{delta, now, id}
	case inventory.QuantityPolicyAllow:
		query = `UPDATE items SET quantity = quantity + ?, updated_at = ? WHERE id = ? RETURNING ` + itemColumns
		args = []any{delta, now, id}
	default:
		// reject：负结果不更新任何行，随后区分未找到与被拒绝
		query = `UPDATE items SET quantity = quantity + ?, updated_at = ? WHERE id = ? AND quantity + ? >= 0 RETURNING ` + itemColumns
		args = []any{delta, now, id, delta}
	}

	item, err := scanItem(r.db.QueryRowContext(ctx, query, args...), id)
	if err == nil {
		return item, nil
	}
	if !errors.IsNotFound(err) {
		return nil, err
	}
	if r.policy == inventory.QuantityPolicyReject {
		// 行存在但被下限策略挡下时返回验证错误
		if _, getErr := r.Get(ctx, id); getErr == nil {
			return nil, errors.NewValidationError("quantity adjustment by %d would drop item %s below zero", delta, id)
		}
	}
	return nil, err
}

func (r *SQLItemRepository) CountByUser(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items WHERE user_id = ?`, userID).Scan(&n)
	if err != nil {
		return 0, errors.NewStorageError("count items by user failed", err).WithContext("user_id", userID)
	}
	return n, nil
}

// scanner 兼容 *sql.Row 与 *sql.Rows 的最小扫描接口
type scanner interface {
	Scan(dest ...any) error
}

func scanItem(row *sql.Row, id string) (*inventory.Item, error) {
	item, err := scanItemFrom(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("item %s not found", id)
	}
	if err != nil {
		return nil, errors.NewStorageError("scan item failed", err)
	}
	return item, nil
}

func scanItemRow(rows *sql.Rows) (*inventory.Item, error) {
	item, err := scanItemFrom(rows)
	if err != nil {
		return nil, errors.NewStorageError("scan item row failed", err)
	}
	return item, nil
}

func scanItemFrom(s scanner) (*inventory.Item, error) {
	var (
		item               inventory.Item
		createdAt, updated int64
	)
	if err := s.Scan(&item.ID, &item.UserID, &item.Name, &item.CategoryID,
		&item.LocationID, &item.Quantity, &createdAt, &updated); err != nil {
		return nil, err
	}
	item.CreatedAt = time.Unix(0, createdAt).UTC()
	item.UpdatedAt = time.Unix(0, updated).UTC()
	return &item, nil
}
