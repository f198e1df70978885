// Package app 装配并托管库存核心的全部组件
//
// 这里是唯一的组合根：打开存储、搭好缓存与消息侧、
// 把命令服务 / 重放引擎 / 注册监听器接到一起。
// 除 logging 的进程级默认 logger 外不依赖任何全局状态。
package app

import (
	"context"
	"database/sql"
	"time"

	"github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite"

	"stockroom/command"
	"stockroom/config"
	"stockroom/errors"
	estore "stockroom/eventing/store"
	"stockroom/inventory"
	istore "stockroom/inventory/store"
	"stockroom/listener"
	"stockroom/logging"
	"stockroom/messaging/transport/natsfanout"
	"stockroom/replay"
)

// App 已装配的应用实例
type App struct {
	Commands *command.Service
	Replay   *replay.Engine
	Listener *listener.SignupListener

	db        *sql.DB
	redis     *redis.Client
	publisher *natsfanout.Publisher
	logger    logging.Logger
}

// New 按配置装配应用
//
// 失败时已打开的资源会被回收，调用方无须清理半成品。
func New(ctx context.Context, cfg config.Config) (*App, error) {
	var logger logging.Logger = logging.NewStdLoggerAt("[stockroom]", logging.ParseLevel(cfg.LogLevel))

	db, err := sql.Open("sqlite", cfg.StoreDSN)
	if err != nil {
		return nil, errors.NewStorageError("open sqlite store failed", err)
	}
	// modernc.org/sqlite 的连接不可跨 goroutine 并发写
	db.SetMaxOpenConns(1)

	a := &App{db: db, logger: logger}
	if err := a.build(ctx, cfg); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, cfg config.Config) error {
	events := estore.NewSQLEventStore(a.db, "")
	if err := events.Init(ctx); err != nil {
		return err
	}

	itemRepo := istore.NewSQLItemRepository(a.db, cfg.QuantityPolicy)
	if err := itemRepo.Init(ctx); err != nil {
		return err
	}
	shoppingRepo := istore.NewSQLShoppingListRepository(a.db)
	if err := shoppingRepo.Init(ctx); err != nil {
		return err
	}
	userRepo := istore.NewSQLUserRepository(a.db)
	if err := userRepo.Init(ctx); err != nil {
		return err
	}

	var items inventory.IItemRepository = itemRepo
	if cfg.RedisAddr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		items = istore.NewCachedItemRepository(itemRepo, istore.CacheConfig{
			Client: a.redis,
			TTL:    cfg.CacheTTL,
			Logger: a.logger,
		})
		a.logger.Info(ctx, "item cache enabled", logging.String("redis_addr", cfg.RedisAddr))
	}

	svcCfg := command.Config{
		Items:    items,
		Shopping: shoppingRepo,
		Users:    userRepo,
		Events:   events,
		Logger:   a.logger.WithFields(logging.String("component", "command")),
	}

	var brokerCfg natsfanout.Config
	if cfg.NATSURL != "" {
		brokerCfg = natsfanout.Config{
			URL:     cfg.NATSURL,
			Stream:  cfg.NATSStream,
			Subject: cfg.NATSSubject,
			Logger:  a.logger.WithFields(logging.String("component", "broker")),
		}
		pub, err := natsfanout.NewPublisher(brokerCfg)
		if err != nil {
			return err
		}
		a.publisher = pub
		svcCfg.Publisher = pub
	}

	a.Commands = command.NewService(svcCfg)

	if cfg.NATSURL != "" {
		a.Listener = listener.NewSignupListener(listener.Config{
			Dialer:         natsfanout.NewDialer(brokerCfg),
			ReconnectDelay: cfg.ReconnectDelay,
			Logger:         a.logger.WithFields(logging.String("component", "signup-listener")),
		}, a.Commands)
	}
	a.Replay = replay.NewEngine(events, items, a.logger.WithFields(logging.String("component", "replay")))
	return nil
}

// Start 启动后台组件（目前只有注册监听器）
func (a *App) Start(ctx context.Context) {
	if a.Listener != nil {
		a.Listener.Start(ctx)
	}
	a.logger.Info(ctx, "stockroom started")
}

// Close 停止后台组件并释放全部资源，可重复调用
func (a *App) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if a.Listener != nil {
		a.Listener.Stop()
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn(ctx, "close publisher failed", logging.Error(err))
		}
		a.publisher = nil
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn(ctx, "close redis client failed", logging.Error(err))
		}
		a.redis = nil
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn(ctx, "close sqlite store failed", logging.Error(err))
		}
		a.db = nil
	}
	a.logger.Info(ctx, "stockroom stopped")
}
