package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"bollinger-service/config"
	"bollinger-service/internal/bandengine"
	"bollinger-service/internal/logger"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	cfg := config.Load()
	logger.Init("bandengine", logger.ParseLevel(cfg.LogLevel))
	log.Printf("[bandengine] defaults: length=%d mult=%g offset=%d, candle limit %d",
		cfg.Bollinger.Length, cfg.Bollinger.StdDevMultiplier, cfg.Bollinger.Offset, cfg.CandleLimit)

	svc, err := bandengine.New(cfg)
	if err != nil {
		log.Fatalf("[bandengine] init failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := svc.Run(ctx); err != nil {
		log.Fatalf("[bandengine] fatal: %v", err)
	}
}
