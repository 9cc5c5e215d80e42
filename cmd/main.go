package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GeorgeMcIntyre-Web/urbane-jungle/internal/cache"
	"github.com/GeorgeMcIntyre-Web/urbane-jungle/internal/catalog"
	"github.com/GeorgeMcIntyre-Web/urbane-jungle/internal/config"
	cartgrpc "github.com/GeorgeMcIntyre-Web/urbane-jungle/internal/grpc"
	"github.com/GeorgeMcIntyre-Web/urbane-jungle/internal/health"
	carthttp "github.com/GeorgeMcIntyre-Web/urbane-jungle/internal/http"
	"github.com/GeorgeMcIntyre-Web/urbane-jungle/internal/identity"
	"github.com/GeorgeMcIntyre-Web/urbane-jungle/internal/logger"
	"github.com/GeorgeMcIntyre-Web/urbane-jungle/internal/poller"
	"github.com/GeorgeMcIntyre-Web/urbane-jungle/internal/publisher"
	"github.com/GeorgeMcIntyre-Web/urbane-jungle/internal/repository"
	"github.com/GeorgeMcIntyre-Web/urbane-jungle/internal/service"
	"github.com/GeorgeMcIntyre-Web/urbane-jungle/internal/telemetry"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/errgroup"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		slog.Error("cart service stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()
	log := logger.New(logger.Options{
		Service: cfg.ServiceName,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Options{
		ServiceName: cfg.ServiceName,
		Version:     version,
		Env:         cfg.Env,
		Endpoint:    cfg.OTLPEndpoint,
	})
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			log.Warn("tracer shutdown failed", slog.Any("error", err))
		}
	}()

	repo, err := openCartStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer repo.Close()
	log.Info("cart store ready", slog.String("store", cfg.CartStore))

	reader, closeCatalog, err := openCatalog(cfg)
	if err != nil {
		return err
	}
	defer closeCatalog()
	breaker := catalog.NewBreakerReader(reader, catalog.DefaultBreakerSettings(), log)
	log.Info("catalog ready", slog.String("driver", cfg.CatalogDriver))

	checker := health.NewChecker(cfg.ServiceName, 2*time.Second, log)
	checker.Register("cart_store", repo.Ping)
	checker.Register("catalog", func(context.Context) error {
		if breaker.State() == gobreaker.StateOpen {
			return errors.New("circuit breaker open")
		}
		return nil
	})

	opts := []service.Option{service.WithLogger(log)}

	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       0,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warn("redis ping failed, reads fall back to the store", slog.Any("error", err))
		}
		redisCache := cache.NewRedisCache(redisClient).WithTTL(cfg.CacheTTL)
		opts = append(opts, service.WithCache(redisCache))
		checker.Register("redis", redisCache.Ping)
	}

	var events interface {
		service.EventPublisher
		Close() error
	} = publisher.Noop{}
	if len(cfg.KafkaBrokers) > 0 {
		events = publisher.NewCheckoutPublisher(cfg.KafkaBrokers...)
	}
	defer events.Close()
	opts = append(opts, service.WithPublisher(events))

	cartService := service.NewCartService(repo, breaker, opts...)

	var resolver identity.Resolver = identity.HeaderResolver{}
	if cfg.AuthJWTSecret != "" {
		resolver = identity.NewJWTResolver(cfg.AuthJWTSecret)
	}

	srv := &http.Server{
		Addr: ":" + cfg.HTTPPort,
		Handler: carthttp.NewRouter(carthttp.RouterConfig{
			Service:        cartService,
			Resolver:       resolver,
			Health:         checker,
			Logger:         log,
			RequestTimeout: cfg.RequestTimeout,
			MaxBodyBytes:   cfg.MaxRequestBodyBytes,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	lis, err := net.Listen("tcp", ":"+cfg.GRPCHealthPort)
	if err != nil {
		return fmt.Errorf("failed to listen on admin port: %w", err)
	}
	admin := cartgrpc.NewAdminServer(checker.GRPCServer(), log)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("cart service listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return admin.Serve(lis)
	})
	g.Go(func() error {
		checker.Run(gctx, cfg.HealthInterval)
		return nil
	})
	if len(cfg.KafkaBrokers) > 0 {
		p := poller.NewPoller(cartService, log, cfg.KafkaBrokers...)
		g.Go(func() error {
			defer p.Close()
			p.Run(gctx)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down cart service")
		checker.Shutdown()

		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		admin.Stop(ctx)
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("cart service stopped")
	return nil
}

func openCartStore(ctx context.Context, cfg *config.Config) (repository.CartRepository, error) {
	switch cfg.CartStore {
	case config.StoreMemory:
		return repository.NewMemoryRepository(), nil

	case config.StoreSQLite:
		db, err := repository.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return migrated(repository.NewSQLRepository(db, repository.DialectSQLite))

	case config.StorePostgres:
		db, err := repository.OpenPostgres(postgresCredentials(cfg))
		if err != nil {
			return nil, err
		}
		return migrated(repository.NewSQLRepository(db, repository.DialectPostgres))

	case config.StoreMongo:
		db, err := repository.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
		if err != nil {
			return nil, err
		}
		repo := repository.NewMongoRepository(db)
		if err := repo.CreateIndexes(ctx); err != nil {
			repo.Close()
			return nil, err
		}
		return repo, nil

	default:
		return nil, fmt.Errorf("unknown CART_STORE %q", cfg.CartStore)
	}
}

func migrated(repo *repository.SQLRepository) (repository.CartRepository, error) {
	if err := repo.RunMigrations(); err != nil {
		repo.Close()
		return nil, err
	}
	return repo, nil
}

// openCatalog uses its own connection pool even when it shares a database
// with the cart store, so each side can be closed independently.
func openCatalog(cfg *config.Config) (catalog.Reader, func(), error) {
	var (
		db  *sql.DB
		err error
	)
	switch cfg.CatalogDriver {
	case config.StoreMemory:
		return catalog.NewMemoryReader(), func() {}, nil
	case config.StoreSQLite:
		path := cfg.CatalogDSN
		if path == "" {
			path = cfg.SQLitePath
		}
		db, err = repository.OpenSQLite(path)
	case config.StorePostgres:
		if cfg.CatalogDSN != "" {
			db, err = repository.OpenPostgresDSN(cfg.CatalogDSN)
		} else {
			db, err = repository.OpenPostgres(postgresCredentials(cfg))
		}
	default:
		return nil, nil, fmt.Errorf("unknown CATALOG_DRIVER %q", cfg.CatalogDriver)
	}
	if err != nil {
		return nil, nil, err
	}

	reader := catalog.NewSQLReader(db, cfg.CatalogDriver)
	if err := reader.RunMigrations(); err != nil {
		reader.Close()
		return nil, nil, err
	}
	return reader, func() { reader.Close() }, nil
}

func postgresCredentials(cfg *config.Config) *repository.Credentials {
	return &repository.Credentials{
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		DBName:   cfg.Postgres.DBName,
	}
}
