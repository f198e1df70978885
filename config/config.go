// Package config 从环境变量装配运行配置
package config

import (
	"os"
	"strconv"
	"time"

	"stockroom/errors"
	"stockroom/inventory"
)

// Config 进程级配置
type Config struct {
	// StoreDSN SQLite 数据源，":memory:" 表示仅进程内
	StoreDSN string

	// NATSURL broker 地址，留空禁用消息侧（发布与监听都不启动）
	NATSURL     string
	NATSStream  string
	NATSSubject string

	// RedisAddr 物品缓存地址，留空禁用缓存
	RedisAddr     string
	CacheTTL      time.Duration
	RedisPassword string
	RedisDB       int

	// ReconnectDelay 监听器断线重连间隔
	ReconnectDelay time.Duration

	// QuantityPolicy 数量下限策略：reject / clamp / allow
	QuantityPolicy inventory.QuantityPolicy

	// LogLevel debug / info / warn / error
	LogLevel string
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		StoreDSN:       "stockroom.db",
		NATSStream:     "STOCKROOM_NOTIFY",
		NATSSubject:    "notify.signup",
		CacheTTL:       5 * time.Minute,
		ReconnectDelay: 5 * time.Second,
		QuantityPolicy: inventory.QuantityPolicyReject,
		LogLevel:       "info",
	}
}

// Load 在默认值之上套用环境变量
//
// 约定前缀 STOCKROOM_，未设置的变量保持默认值。
func Load() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("STOCKROOM_STORE_DSN"); v != "" {
		cfg.StoreDSN = v
	}
	if v := os.Getenv("STOCKROOM_NATS_URL"); v != "" {
		cfg.NATSURL = v
	}
	if v := os.Getenv("STOCKROOM_NATS_STREAM"); v != "" {
		cfg.NATSStream = v
	}
	if v := os.Getenv("STOCKROOM_NATS_SUBJECT"); v != "" {
		cfg.NATSSubject = v
	}
	if v := os.Getenv("STOCKROOM_REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("STOCKROOM_REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("STOCKROOM_REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, errors.NewValidationError("invalid STOCKROOM_REDIS_DB %q", v)
		}
		cfg.RedisDB = n
	}
	if v := os.Getenv("STOCKROOM_CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return cfg, errors.NewValidationError("invalid STOCKROOM_CACHE_TTL %q", v)
		}
		cfg.CacheTTL = d
	}
	if v := os.Getenv("STOCKROOM_RECONNECT_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return cfg, errors.NewValidationError("invalid STOCKROOM_RECONNECT_DELAY %q", v)
		}
		cfg.ReconnectDelay = d
	}
	if v := os.Getenv("STOCKROOM_QUANTITY_POLICY"); v != "" {
		policy, err := inventory.ParseQuantityPolicy(v)
		if err != nil {
			return cfg, errors.NewValidationError("invalid STOCKROOM_QUANTITY_POLICY %q", v)
		}
		cfg.QuantityPolicy = policy
	}
	if v := os.Getenv("STOCKROOM_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	return cfg, nil
}
