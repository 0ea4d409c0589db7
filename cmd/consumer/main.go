package main

import (
	"context"
	"fmt"
	"os"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/samber/do"
	"github.com/serroba/bookmarks-go/internal/container"
	"github.com/serroba/bookmarks-go/internal/messaging"
	"go.uber.org/zap"
)

// The consumer reads the same SERVICE_ settings as the server so both
// processes agree on the Redis address and the top feed cache keys.
func main() {
	cli := humacli.New(func(hooks humacli.Hooks, options *container.Options) {
		// Invalidating a process-local cache from another process does nothing.
		options.CacheBackend = container.BackendRedis

		if err := options.Validate(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}

		if options.RedisAddr == "" {
			fmt.Fprintln(os.Stderr, "the consumer requires a Redis address")
			os.Exit(2)
		}

		injector := do.New()
		do.ProvideValue(injector, options)
		container.LoggerPackage(injector)
		container.RedisPackage(injector)
		container.CachePackage(injector)
		container.ConsumerGroupPackage(injector)

		logger := do.MustInvoke[*zap.Logger](injector)
		ctx, cancel := context.WithCancel(context.Background())

		hooks.OnStart(func() {
			group := do.MustInvoke[*messaging.ConsumerGroup](injector)

			if err := group.Start(ctx); err != nil {
				logger.Fatal("failed to start consumer group", zap.Error(err))
			}

			logger.Info("consumer running",
				zap.String("redis_addr", options.RedisAddr),
				zap.Int("cache_ttl_seconds", options.CacheTTLSeconds),
			)

			<-ctx.Done()
		})

		hooks.OnStop(func() {
			logger.Info("shutting down")
			cancel()

			if err := injector.Shutdown(); err != nil {
				logger.Error("shutdown error", zap.Error(err))
			}

			logger.Info("shutdown complete")
		})
	})

	cli.Run()
}
