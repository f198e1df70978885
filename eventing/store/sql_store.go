package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"stockroom/errors"
	"stockroom/eventing"
)

// SQLEventStore 基于 database/sql 的事件存储实现
//
// 追加型事件表：seq 为自增主键，同时充当同一时间戳内的决胜序号。
// 时间戳由存储在追加时分配，并通过与表内最大时间戳取大保证单调不减。
//
// 调用方必须确保所用驱动已通过空导入注册（例如 `_ "modernc.org/sqlite"`）。
type SQLEventStore struct {
	db        *sql.DB
	tableName string
}

// NewSQLEventStore 创建 SQL 事件存储
func NewSQLEventStore(db *sql.DB, tableName string) *SQLEventStore {
	if tableName == "" {
		tableName = "events"
	}
	return &SQLEventStore{db: db, tableName: tableName}
}

// Init 创建事件表（幂等）
func (s *SQLEventStore) Init(ctx context.Context) error {
	schema := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		seq       INTEGER PRIMARY KEY AUTOINCREMENT,
		id        TEXT NOT NULL UNIQUE,
		type      TEXT NOT NULL,
		payload   TEXT NOT NULL,
		item_id   TEXT,
		timestamp INTEGER NOT NULL
	)`, s.tableName)
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return errors.NewStorageError("create event table failed", err)
	}
	idx := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_item_id ON %s (item_id)`, s.tableName, s.tableName)
	if _, err := s.db.ExecContext(ctx, idx); err != nil {
		return errors.NewStorageError("create event index failed", err)
	}
	return nil
}

func (s *SQLEventStore) Append(ctx context.Context, eventType string, payload map[string]any) (string, error) {
	evt := eventing.NewEvent(eventType, payload)

	payloadJSON, err := json.Marshal(evt.Payload)
	if err != nil {
		return "", errors.NewStorageError("marshal event payload failed", err)
	}

	now := time.Now().UTC().UnixNano()

	// MAX(?, 已有最大时间戳) 保证时间戳单调不减；
	// 同一时间戳下由自增 seq 判定次序。
	query := fmt.Sprintf(`INSERT INTO %s (id, type, payload, item_id, timestamp)
		SELECT ?, ?, ?, ?, MAX(?, COALESCE((SELECT MAX(timestamp) FROM %s), 0))`,
		s.tableName, s.tableName)

	itemID := evt.ItemID()
	if _, err := s.db.ExecContext(ctx, query, evt.ID, evt.Type, string(payloadJSON), itemID, now); err != nil {
		return "", errors.NewStorageError("append event failed", err).
			WithContext("event_type", eventType)
	}
	return evt.ID, nil
}

func (s *SQLEventStore) StreamAll(ctx context.Context) ([]eventing.Event, error) {
	query := fmt.Sprintf(`SELECT seq, id, type, payload, timestamp FROM %s
		ORDER BY timestamp ASC, seq ASC`, s.tableName)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.NewStorageError("stream events failed", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *SQLEventStore) StreamForKey(ctx context.Context, itemID string) ([]eventing.Event, error) {
	query := fmt.Sprintf(`SELECT seq, id, type, payload, timestamp FROM %s
		WHERE item_id = ? ORDER BY timestamp ASC, seq ASC`, s.tableName)
	rows, err := s.db.QueryContext(ctx, query, itemID)
	if err != nil {
		return nil, errors.NewStorageError("stream events by key failed", err).
			WithContext("item_id", itemID)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]eventing.Event, error) {
	events := make([]eventing.Event, 0)
	for rows.Next() {
		var (
			evt         eventing.Event
			payloadJSON string
			tsNanos     int64
		)
		if err := rows.Scan(&evt.Seq, &evt.ID, &evt.Type, &payloadJSON, &tsNanos); err != nil {
			return nil, errors.NewStorageError("scan event row failed", err)
		}
		if err := json.Unmarshal([]byte(payloadJSON), &evt.Payload); err != nil {
			return nil, errors.NewStorageError("unmarshal event payload failed", err)
		}
		evt.Timestamp = time.Unix(0, tsNanos).UTC()
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorageError("iterate event rows failed", err)
	}
	return events, nil
}
