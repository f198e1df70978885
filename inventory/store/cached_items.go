package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"stockroom/errors"
	"stockroom/inventory"
	"stockroom/logging"
)

// cacheClient 捕获所依赖的 go-redis 命令子集（便于测试）
type cacheClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// CachedItemRepository 带 Redis 缓存的物品仓储装饰器
//
// 读路径（Get）优先命中缓存，未命中时回源并写入；
// 任何变更（Update/Delete/AdjustQuantity/Create）都使该键的缓存失效。
// 缓存故障只记录日志并回退到底层仓储，绝不让缓存影响正确性。
type CachedItemRepository struct {
	inner     inventory.IItemRepository
	client    cacheClient
	ttl       time.Duration
	keyPrefix string
	logger    logging.Logger
}

// CacheConfig 缓存装饰器配置
type CacheConfig struct {
	Client    redis.UniversalClient
	TTL       time.Duration // 默认 5 分钟
	KeyPrefix string        // 默认 "stockroom:item:"
	Logger    logging.Logger
}

// NewCachedItemRepository 创建带缓存的物品仓储
func NewCachedItemRepository(inner inventory.IItemRepository, cfg CacheConfig) *CachedItemRepository {
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "stockroom:item:"
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.GetLogger().WithFields(logging.String("component", "store.cached"))
	}
	return &CachedItemRepository{
		inner:     inner,
		client:    cfg.Client,
		ttl:       cfg.TTL,
		keyPrefix: cfg.KeyPrefix,
		logger:    cfg.Logger,
	}
}

// newCachedItemRepositoryWithClient 仅测试使用：注入最小客户端实现
func newCachedItemRepositoryWithClient(inner inventory.IItemRepository, client cacheClient, ttl time.Duration) *CachedItemRepository {
	return &CachedItemRepository{
		inner:     inner,
		client:    client,
		ttl:       ttl,
		keyPrefix: "stockroom:item:",
		logger:    logging.NewNoopLogger(),
	}
}

func (r *CachedItemRepository) cacheKey(id string) string {
	return r.keyPrefix + id
}

func (r *CachedItemRepository) Create(ctx context.Context, item *inventory.Item) (string, error) {
	id, err := r.inner.Create(ctx, item)
	if err != nil {
		return "", err
	}
	r.invalidate(ctx, id)
	return id, nil
}

func (r *CachedItemRepository) Get(ctx context.Context, id string) (*inventory.Item, error) {
	key := r.cacheKey(id)
	if data, err := r.client.Get(ctx, key).Bytes(); err == nil {
		var item inventory.Item
		if err := json.Unmarshal(data, &item); err == nil {
			return &item, nil
		}
		// 损坏的缓存条目当作未命中处理
		r.invalidate(ctx, id)
	} else if err != redis.Nil {
		r.logger.Warn(ctx, "cache read failed, falling back", logging.String("item_id", id), logging.Error(err))
	}

	item, err := r.inner.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	r.fill(ctx, key, item)
	return item, nil
}

// List 列表查询不经过缓存，直接回源
func (r *CachedItemRepository) List(ctx context.Context, filter inventory.Filter) ([]*inventory.Item, error) {
	return r.inner.List(ctx, filter)
}

func (r *CachedItemRepository) Update(ctx context.Context, id string, fields map[string]any) (*inventory.Item, error) {
	item, err := r.inner.Update(ctx, id, fields)
	if err != nil {
		return nil, err
	}
	r.invalidate(ctx, id)
	return item, nil
}

func (r *CachedItemRepository) Delete(ctx context.Context, id string) (bool, error) {
	deleted, err := r.inner.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if deleted {
		r.invalidate(ctx, id)
	}
	return deleted, nil
}

func (r *CachedItemRepository) AdjustQuantity(ctx context.Context, id string, delta int) (*inventory.Item, error) {
	item, err := r.inner.AdjustQuantity(ctx, id, delta)
	if err != nil {
		if errors.IsValidation(err) {
			// 调整被下限策略拒绝，物品未变，缓存仍然有效
			return nil, err
		}
		r.invalidate(ctx, id)
		return nil, err
	}
	r.invalidate(ctx, id)
	return item, nil
}

func (r *CachedItemRepository) CountByUser(ctx context.Context, userID string) (int64, error) {
	return r.inner.CountByUser(ctx, userID)
}

func (r *CachedItemRepository) fill(ctx context.Context, key string, item *inventory.Item) {
	data, err := json.Marshal(item)
	if err != nil {
		return
	}
	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		r.logger.Warn(ctx, "cache fill failed", logging.String("key", key), logging.Error(err))
	}
}

func (r *CachedItemRepository) invalidate(ctx context.Context, id string) {
	if err := r.client.Del(ctx, r.cacheKey(id)).Err(); err != nil {
		r.logger.Warn(ctx, "cache invalidation failed", logging.String("item_id", id), logging.Error(err))
	}
}
