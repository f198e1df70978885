package retry

import (
	"context"
	"time"
)

// Operation 可重试的操作函数类型
type Operation func(ctx context.Context) error

// Config 重试配置
type Config struct {
	MaxAttempts   int           // 最大尝试次数（包括首次），0 表示无上限重试
	InitialDelay  time.Duration // 初始退避延迟
	BackoffFactor float64       // 退避倍数（指数退避），<=1 表示固定延迟
	MaxDelay      time.Duration // 最大延迟
}

// DefaultConfig 返回默认配置
//
// 默认值：
//   - MaxAttempts: 3（1次初始 + 2次重试）
//   - InitialDelay: 100ms
//   - BackoffFactor: 2.0（指数退避）
//   - MaxDelay: 5s
func DefaultConfig() Config {
	return Config{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		BackoffFactor: 2.0,
		MaxDelay:      5 * time.Second,
	}
}

// ForeverConfig 返回固定延迟、无上限重试的配置
//
// 用于长生命周期消费者的重连循环：连接断开后按固定间隔
// 无限次重连，只有上下文取消才能终止。
func ForeverConfig(delay time.Duration) Config {
	return Config{
		MaxAttempts:   0,
		InitialDelay:  delay,
		BackoffFactor: 1.0,
		MaxDelay:      delay,
	}
}

// Do 执行带重试的操作
//
// 参数：
//   - ctx: 上下文（支持取消）
//   - op: 要执行的操作
//   - cfg: 重试配置
//
// 返回：
//   - 最后一次执行的错误（如果所有尝试都失败）
//   - nil（如果任意一次尝试成功）
//   - ctx.Err()（如果上下文在等待期间被取消）
//
// MaxAttempts 为 0 时无上限重试，此时只有成功或上下文取消才会返回。
func Do(ctx context.Context, op Operation, cfg Config) error {
	var lastErr error

	for attempt := 1; cfg.MaxAttempts == 0 || attempt <= cfg.MaxAttempts; attempt++ {
		// 检查上下文是否已取消
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		// 最后一次尝试不需要等待
		if cfg.MaxAttempts == 0 || attempt < cfg.MaxAttempts {
			if err := sleep(ctx, delayFor(cfg, attempt)); err != nil {
				return err
			}
		}
	}

	return lastErr
}

// delayFor 计算第 attempt 次失败后的退避延迟（指数退避，封顶 MaxDelay）
func delayFor(cfg Config, attempt int) time.Duration {
	delay := cfg.InitialDelay
	if cfg.BackoffFactor > 1 {
		delay = time.Duration(float64(cfg.InitialDelay) * pow(cfg.BackoffFactor, float64(attempt-1)))
	}
	if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	return delay
}

// sleep 等待退避延迟（支持上下文取消）
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// pow 简单的幂运算实现（避免引入 math 包）
func pow(base, exp float64) float64 {
	if exp == 0 {
		return 1
	}
	result := base
	for i := 1; i < int(exp); i++ {
		result *= base
	}
	return result
}
