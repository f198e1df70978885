// stockroom 库存核心进程：装配存储、缓存与消息侧并运行到收到退出信号
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"stockroom/app"
	"stockroom/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("assemble application: %v", err)
	}
	defer a.Close()

	a.Start(ctx)

	<-ctx.Done()
	os.Stdout.WriteString("shutting down\n")
}
