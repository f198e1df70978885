package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"stockroom/errors"
	"stockroom/inventory"
)

// SQLUserRepository 基于 database/sql 的用户仓储实现
type SQLUserRepository struct {
	db *sql.DB
}

// NewSQLUserRepository 创建 SQL 用户仓储
func NewSQLUserRepository(db *sql.DB) *SQLUserRepository {
	return &SQLUserRepository{db: db}
}

// Init 创建用户表（幂等）
func (r *SQLUserRepository) Init(ctx context.Context) error {
	schema := `CREATE TABLE IF NOT EXISTS users (
		id         TEXT PRIMARY KEY,
		full_name  TEXT NOT NULL,
		email      TEXT NOT NULL UNIQUE,
		created_at INTEGER NOT NULL
	)`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return errors.NewStorageError("create users table failed", err)
	}
	return nil
}

func (r *SQLUserRepository) Create(ctx context.Context, user *inventory.User) (string, error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO users (id, full_name, email, created_at) VALUES (?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, user.ID, user.FullName, user.Email, user.CreatedAt.UnixNano())
	if err != nil {
		return "", errors.NewStorageError("insert user failed", err).WithContext("email", user.Email)
	}
	return user.ID, nil
}

func (r *SQLUserRepository) Get(ctx context.Context, id string) (*inventory.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, full_name, email, created_at FROM users WHERE id = ?`, id)
	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("user %s not found", id)
	}
	if err != nil {
		return nil, errors.NewStorageError("scan user failed", err)
	}
	return user, nil
}

func (r *SQLUserRepository) GetByEmail(ctx context.Context, email string) (*inventory.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, full_name, email, created_at FROM users WHERE email = ?`, email)
	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("user with email %s not found", email)
	}
	if err != nil {
		return nil, errors.NewStorageError("scan user failed", err)
	}
	return user, nil
}

func scanUser(row *sql.Row) (*inventory.User, error) {
	var (
		user      inventory.User
		createdAt int64
	)
	if err := row.Scan(&user.ID, &user.FullName, &user.Email, &createdAt); err != nil {
		return nil, err
	}
	user.CreatedAt = time.Unix(0, createdAt).UTC()
	return &user, nil
}
