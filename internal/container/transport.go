package container

import (
	"time"

	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	_ "github.com/danielgtaylor/huma/v2/formats/cbor" // CBOR format support for huma
	"github.com/go-chi/chi/v5"
	"github.com/samber/do"
	"github.com/serroba/bookmarks-go/internal/auth"
	"github.com/serroba/bookmarks-go/internal/bookmark"
	"github.com/serroba/bookmarks-go/internal/events"
	"github.com/serroba/bookmarks-go/internal/handlers"
	"github.com/serroba/bookmarks-go/internal/health"
	"github.com/serroba/bookmarks-go/internal/messaging"
	"github.com/serroba/bookmarks-go/internal/metrics"
	"github.com/serroba/bookmarks-go/internal/middleware"
	"github.com/serroba/bookmarks-go/internal/ratelimit"
	"go.uber.org/zap"
)

const consumerGroup = "bookmarks-cache"

// PublisherGroupPackage provides the *messaging.PublisherGroup on Redis streams.
func PublisherGroupPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*messaging.PublisherGroup, error) {
		client := do.MustInvoke[*RedisClient](i)
		logger := do.MustInvoke[*zap.Logger](i)

		publisher, err := redisstream.NewPublisher(redisstream.PublisherConfig{
			Client: client.Client,
		}, messaging.NewZapLoggerAdapter(logger))
		if err != nil {
			return nil, err
		}

		return messaging.NewPublisherGroup(publisher), nil
	})
}

// ConsumerGroupPackage provides the *messaging.ConsumerGroup that invalidates
// the top feed cache for every created bookmark.
func ConsumerGroupPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*messaging.ConsumerGroup, error) {
		client := do.MustInvoke[*RedisClient](i)
		logger := do.MustInvoke[*zap.Logger](i)

		subscriber, err := redisstream.NewSubscriber(redisstream.SubscriberConfig{
			Client:        client.Client,
			ConsumerGroup: consumerGroup,
		}, messaging.NewZapLoggerAdapter(logger))
		if err != nil {
			return nil, err
		}

		invalidator := bookmark.NewCacheInvalidator(do.MustInvoke[bookmark.Cache](i))

		group := messaging.NewConsumerGroup(subscriber, logger)
		group.Add(messaging.NewConsumer(
			subscriber,
			events.TopicBookmarkCreated,
			events.NewCacheInvalidationHandler(invalidator, logger),
			logger,
		))

		return group, nil
	})
}

// HTTPPackage provides the *chi.Mux and the huma.API with every route registered.
func HTTPPackage(i *do.Injector) {
	do.Provide(i, func(*do.Injector) (*chi.Mux, error) {
		return chi.NewMux(), nil
	})

	do.Provide(i, newAPI)
}

func newAPI(i *do.Injector) (huma.API, error) {
	opts := do.MustInvoke[*Options](i)
	logger := do.MustInvoke[*zap.Logger](i)
	router := do.MustInvoke[*chi.Mux](i)
	m := do.MustInvoke[*metrics.Metrics](i)
	issuer := do.MustInvoke[*auth.Issuer](i)

	guardOpts, err := limiterOptions(i, "", "client")
	if err != nil {
		return nil, err
	}

	api := humachi.New(router, huma.DefaultConfig("Bookmarks", "1.0.0"))

	api.UseMiddleware(
		m.Middleware(),
		middleware.RequestMetaMiddleware(api),
		middleware.Identity(issuer, opts.TrustUserHeader, logger),
		middleware.ClientGuard(api,
			do.MustInvokeNamed[ratelimit.Store](i, clientStoreName),
			logger,
			guardOpts...,
		),
	)

	router.Handle("/metrics", m.Handler())

	handlers.RegisterRoutes(api,
		handlers.NewBookmarkHandler(
			do.MustInvoke[*bookmark.Service](i),
			do.MustInvoke[*bookmark.TopReader](i),
			logger,
		),
		handlers.NewAuthHandler(issuer, opts.SecureCookie, logger),
		ratelimit.EndpointConfig{Limit: int64(opts.TopClientLimit), Window: time.Minute},
	)

	health.RegisterRoutes(api, health.NewHandler(healthCheckers(i)))

	return api, nil
}

func healthCheckers(i *do.Injector) map[string]health.Checker {
	opts := do.MustInvoke[*Options](i)
	checkers := make(map[string]health.Checker)

	if redisConfigured(i) {
		checkers["redis"] = health.NewRedisChecker(do.MustInvoke[*RedisClient](i).Client)
	}

	if opts.StoreBackend == BackendPostgres {
		checkers["postgres"] = health.NewPostgresChecker(do.MustInvoke[*PostgresPool](i).Pool)
	}

	return checkers
}
