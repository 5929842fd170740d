package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	_ "go.uber.org/automaxprocs"
	"go.uber.org/zap"

	"github.com/lk2023060901/shout-live-go/application"
	"github.com/lk2023060901/shout-live-go/pkg/log"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.New().Run(ctx); err != nil {
		log.Error("live service exited", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
}
