package app

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/simonbray/firecrest/internal/infra/config"
	"github.com/simonbray/firecrest/internal/infra/queue"
	taskstore "github.com/simonbray/firecrest/internal/infra/store/task"
	natsq "github.com/simonbray/firecrest/internal/libs/nats"
	rediscli "github.com/simonbray/firecrest/internal/libs/redis"
	"github.com/simonbray/firecrest/internal/registry"
	"github.com/simonbray/firecrest/internal/service"
	"github.com/simonbray/firecrest/internal/transport"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

const (
	defaultCfgPath = "./configs/local.yaml"
	cfgPathEnv     = "TASKSD_CONFIG"

	eventStream = "TASK_EVENTS"
)

type Router interface {
	MountRoutes(*http.ServeMux) *http.ServeMux
}

type dependencyInjector struct {
	cfg    *config.Config
	logger *slog.Logger

	redis     *redis.Client
	taskStore service.TaskStore

	natsConn *nats.Conn
	js       nats.JetStreamContext
	events   service.Events

	reg     *registry.Registry
	service *service.Service

	handler transport.Handler
	router  Router
}

func newDI() *dependencyInjector {
	return &dependencyInjector{}
}

func (di *dependencyInjector) Config() *config.Config {
	if di.cfg == nil {
		path := os.Getenv(cfgPathEnv)
		if path == "" {
			path = defaultCfgPath
		}
		di.cfg = config.MustLoad(path)
	}

	return di.cfg
}

func (di *dependencyInjector) Logger() *slog.Logger {
	if di.logger == nil {
		di.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	slog.SetDefault(di.logger)
	return di.logger
}

func (di *dependencyInjector) RedisClient(ctx context.Context) *redis.Client {
	if di.redis == nil {
		cfg := di.Config().Redis
		client, err := rediscli.NewClient(rediscli.Config{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
			PoolSize: cfg.PoolSize,
		})
		if err != nil {
			// no durable layer, no service
			log.Fatalf("persistence database is not functional: %+v", err)
		}

		di.redis = client
		di.Logger().Info("connected to redis", slog.String("addr", cfg.Addr))
	}
	return di.redis
}

func (di *dependencyInjector) TaskStore(ctx context.Context) service.TaskStore {
	if di.taskStore == nil {
		di.taskStore = taskstore.NewRedisTaskStore(di.RedisClient(ctx))
	}
	return di.taskStore
}

func (di *dependencyInjector) NATSConn(ctx context.Context) *nats.Conn {
	if di.natsConn == nil {
		cfg := di.Config().NATS
		nc, err := natsq.NewConnect(cfg.URL, natsq.Config{
			Name:          cfg.ClientName,
			MaxReconnects: cfg.MaxReconnects,
		})
		if err != nil {
			log.Fatalf("NATS connect: %+v", err)
		}
		di.natsConn = nc
	}
	return di.natsConn
}

func (di *dependencyInjector) JetStream(ctx context.Context) nats.JetStreamContext {
	if di.js == nil {
		js, err := natsq.NewJetStream(di.NATSConn(ctx), &nats.StreamConfig{
			Name:     eventStream,
			Subjects: []string{di.Config().NATS.Subject},
			Storage:  nats.FileStorage,
			Replicas: 1,
		})
		if err != nil {
			log.Fatalf("DI JetStream: %+v", err)
		}

		di.js = js
	}
	return di.js
}

func (di *dependencyInjector) Events(ctx context.Context) service.Events {
	if di.events == nil {
		di.events = queue.New(di.JetStream(ctx), di.Config().NATS.Subject)
	}
	return di.events
}

func (di *dependencyInjector) Registry() *registry.Registry {
	if di.reg == nil {
		di.reg = registry.New()
	}
	return di.reg
}

func (di *dependencyInjector) Service(ctx context.Context) *service.Service {
	if di.service == nil {
		cfg := di.Config()
		di.service = service.New(
			di.Registry(),
			di.TaskStore(ctx),
			di.Events(ctx),
			cfg.TaskExpiry,
		)

		restored, err := di.service.Bootstrap(ctx)
		if err != nil {
			// serving an unverifiable registry is worse than not starting
			log.Fatalf("tasks service cannot be started: %+v", err)
		}
		di.Logger().Info("registry bootstrapped", slog.Int("tasks", restored))
	}

	return di.service
}

func (di *dependencyInjector) Handler(ctx context.Context) transport.Handler {
	if di.handler == nil {
		cfg := di.Config()
		di.handler = transport.NewHandler(
			di.Service(ctx),
			cfg.TaskBaseURL,
			transport.Origins{
				Storage: cfg.Origins.Storage,
				Compute: cfg.Origins.Compute,
				Status:  cfg.Origins.Status,
			},
		)
	}

	return di.handler
}

func (di *dependencyInjector) Router(ctx context.Context) Router {
	if di.router == nil {
		di.router = transport.NewRouter(di.Handler(ctx))
	}

	return di.router
}
