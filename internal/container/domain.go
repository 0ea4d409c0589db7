package container

import (
	"context"
	"fmt"
	"time"

	"github.com/jaevor/go-nanoid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/samber/do"
	"github.com/serroba/bookmarks-go/internal/auth"
	"github.com/serroba/bookmarks-go/internal/bookmark"
	"github.com/serroba/bookmarks-go/internal/events"
	"github.com/serroba/bookmarks-go/internal/messaging"
	"github.com/serroba/bookmarks-go/internal/metrics"
	"github.com/serroba/bookmarks-go/internal/ratelimit"
	"github.com/serroba/bookmarks-go/internal/store"
	"go.uber.org/zap"
)

const (
	clientStoreName = "client"
	writeStoreName  = "writes"
	writeKeyPrefix  = "writes:"

	cacheCleanupInterval = time.Minute
)

// RepositoryPackage provides the bookmark.Repository and the store.RecentCounter
// backed by the same store.
func RepositoryPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (bookmark.Repository, error) {
		opts := do.MustInvoke[*Options](i)

		if opts.StoreBackend == BackendMemory {
			return store.NewMemoryStore(), nil
		}

		pg := store.NewPostgresStore(do.MustInvoke[*PostgresPool](i).Pool)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, err
		}

		return pg, nil
	})

	do.Provide(i, func(i *do.Injector) (store.RecentCounter, error) {
		counter, ok := do.MustInvoke[bookmark.Repository](i).(store.RecentCounter)
		if !ok {
			return nil, fmt.Errorf("bookmark store cannot count recent writes")
		}

		return counter, nil
	})
}

// MetricsPackage provides the *metrics.Metrics on a dedicated registry.
func MetricsPackage(i *do.Injector) {
	do.Provide(i, func(*do.Injector) (*metrics.Metrics, error) {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		return metrics.New(reg)
	})
}

// RateLimitPackage provides the window stores and the per-user write limiter.
func RateLimitPackage(i *do.Injector) {
	do.ProvideNamed(i, writeStoreName, newWriteStore)

	do.ProvideNamed(i, clientStoreName, func(i *do.Injector) (ratelimit.Store, error) {
		opts := do.MustInvoke[*Options](i)
		if opts.RateLimitBackend == BackendRedis && redisConfigured(i) {
			return store.NewRateLimitRedisStore(do.MustInvoke[*RedisClient](i).Client), nil
		}

		return store.NewRateLimitMemoryStore(), nil
	})

	do.Provide(i, func(i *do.Injector) (ratelimit.Limiter, error) {
		opts := do.MustInvoke[*Options](i)

		limiterOpts, err := limiterOptions(i, writeKeyPrefix, "writes")
		if err != nil {
			return nil, err
		}

		return ratelimit.NewSlidingWindowLimiter(
			do.MustInvokeNamed[ratelimit.Store](i, writeStoreName),
			int64(opts.MaxEventsPerWindow),
			opts.Window(),
			limiterOpts...,
		), nil
	})
}

func newWriteStore(i *do.Injector) (ratelimit.Store, error) {
	opts := do.MustInvoke[*Options](i)
	logger := do.MustInvoke[*zap.Logger](i)

	switch opts.RateLimitBackend {
	case BackendRedis:
		if !redisConfigured(i) {
			logger.Warn("no redis address configured, falling back to the local rate limit store")

			return store.NewRateLimitLocalStore(), nil
		}

		return store.NewRateLimitRedisStore(do.MustInvoke[*RedisClient](i).Client), nil
	case BackendMemory:
		return store.NewRateLimitMemoryStore(), nil
	case BackendLocal:
		logger.Warn("local rate limit store counts fixed windows per process")

		return store.NewRateLimitLocalStore(), nil
	case BackendDatabase:
		logger.Warn("database rate limit store is not atomic under concurrent writes")

		return store.NewRateLimitDatabaseStore(do.MustInvoke[store.RecentCounter](i), writeKeyPrefix), nil
	default:
		return nil, fmt.Errorf("unknown rate limit backend %q", opts.RateLimitBackend)
	}
}

// limiterOptions returns the shared limiter settings. prefix namespaces keys
// and scope labels the decision metrics.
func limiterOptions(i *do.Injector, prefix, scope string) ([]ratelimit.Option, error) {
	opts := do.MustInvoke[*Options](i)

	policy, err := ratelimit.ParseFailPolicy(opts.RateLimitFailPolicy)
	if err != nil {
		return nil, err
	}

	limiterOpts := []ratelimit.Option{
		ratelimit.WithFailPolicy(policy),
		ratelimit.WithTimeout(opts.RateLimitTimeout()),
		ratelimit.WithLogger(do.MustInvoke[*zap.Logger](i)),
		ratelimit.WithRecorder(do.MustInvoke[*metrics.Metrics](i).RateLimitRecorder(scope)),
	}

	if prefix != "" {
		limiterOpts = append(limiterOpts, ratelimit.WithKeyPrefix(prefix))
	}

	return limiterOpts, nil
}

// CachePackage provides the top feed *bookmark.TopReader, cached when enabled.
func CachePackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (bookmark.Cache, error) {
		opts := do.MustInvoke[*Options](i)

		if opts.CacheBackend == BackendRedis && redisConfigured(i) {
			return store.NewRedisCache(do.MustInvoke[*RedisClient](i).Client), nil
		}

		if opts.CacheBackend == BackendRedis {
			do.MustInvoke[*zap.Logger](i).Warn("no redis address configured, caching the top feed in memory")
		}

		return store.NewMemoryCache(cacheCleanupInterval), nil
	})

	do.Provide(i, func(i *do.Injector) (*bookmark.TopReader, error) {
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)
		m := do.MustInvoke[*metrics.Metrics](i)

		topOpts := []bookmark.TopOption{bookmark.WithCacheRecorder(m)}
		if opts.CacheEnabled {
			topOpts = append(topOpts, bookmark.WithCache(do.MustInvoke[bookmark.Cache](i), opts.CacheTTL()))
		}

		return bookmark.NewTopReader(do.MustInvoke[bookmark.Repository](i), logger, topOpts...), nil
	})
}

// ServicePackage provides the *bookmark.Service and the session *auth.Issuer.
func ServicePackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*bookmark.Service, error) {
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)
		top := do.MustInvoke[*bookmark.TopReader](i)

		var serviceOpts []bookmark.ServiceOption

		if top.CacheEnabled() {
			serviceOpts = append(serviceOpts, bookmark.WithInvalidator(top))
		}

		if opts.EventsEnabled {
			group := do.MustInvoke[*messaging.PublisherGroup](i)
			serviceOpts = append(serviceOpts, bookmark.WithPublisher(events.NewPublisher(group.Publisher())))
		}

		return bookmark.NewService(
			do.MustInvoke[bookmark.Repository](i),
			do.MustInvoke[ratelimit.Limiter](i),
			logger,
			serviceOpts...,
		), nil
	})

	do.Provide(i, func(i *do.Injector) (*auth.Issuer, error) {
		opts := do.MustInvoke[*Options](i)

		secret := opts.SessionSecret
		if secret == "" {
			gen, err := nanoid.Standard(32)
			if err != nil {
				return nil, err
			}

			secret = gen()

			do.MustInvoke[*zap.Logger](i).Warn("no session secret configured, sessions end when the process restarts")
		}

		return auth.NewIssuer(secret), nil
	})
}
