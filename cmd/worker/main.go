package main

import (
	"context"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"classattend/internal/config"
	"classattend/internal/logger"
	"classattend/internal/queue"
	"classattend/internal/store"
	"classattend/internal/worker"
)

// Worker consumes attendance events from Redis and keeps live lecture counters.
func main() {
	cfg := config.Load()
	log := logger.New(cfg, "classattend-worker")
	defer func() { _ = log.Sync() }()

	if cfg.QueueBackend == "memory" {
		log.Fatal("QUEUE_BACKEND=memory runs the worker inside the api process; nothing to do here")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		log.Warn("redis not reachable yet, consumer will keep retrying", zap.String("addr", cfg.RedisAddr))
	}

	q := queue.NewRedisQueue(redisClient.Client, "")
	counters := worker.NewRedisCounters(redisClient.Client, 0)

	if err := worker.New(q, counters, log).Run(ctx); err != nil {
		log.Fatal("worker failed", zap.Error(err))
	}
}
