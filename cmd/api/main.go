package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"backend-pilanitrails/internal/config"
	"backend-pilanitrails/internal/db"
	"backend-pilanitrails/internal/server"
	"backend-pilanitrails/internal/store"
	"backend-pilanitrails/internal/stream"

	"github.com/gofiber/fiber/v2"
	"github.com/minio/minio-go/v7"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

var mainDepsProvider = defaultDeps
var mainRunner = realMain

func main() {
	mainRunner(mainDepsProvider())
}

type mainDeps struct {
	loadConfig   func() config.Config
	connectRedis func(config.Config) *redis.Client
	openStore    func(context.Context, config.Config, store.Notifier) (store.Store, func(), error)
	connectNATS  func(config.Config) (*nats.Conn, error)
	connectMinio func(context.Context, config.Config) (*minio.Client, error)
	notify       func(chan<- os.Signal, ...os.Signal)
	run          func(context.Context, config.Config, resources, <-chan os.Signal, ListenFunc) error
}

// resources are the long-lived connections Run owns and releases on exit.
type resources struct {
	store      store.Store
	closeStore func()
	hub        *stream.Hub
	redis      *redis.Client
	nats       *nats.Conn
	minio      *minio.Client
}

func defaultDeps() mainDeps {
	return mainDeps{
		loadConfig:   config.Load,
		connectRedis: db.ConnectRedis,
		openStore:    openStore,
		connectNATS:  db.ConnectNATS,
		connectMinio: db.ConnectMinio,
		notify:       signal.Notify,
		run:          Run,
	}
}

func realMain(deps mainDeps) {
	cfg := deps.loadConfig()
	ctx := context.Background()

	res := resources{redis: deps.connectRedis(cfg)}
	res.hub = stream.NewHub(res.redis)

	st, closeStore, err := deps.openStore(ctx, cfg, res.hub)
	if err != nil {
		log.Printf("%s store unavailable, falling back to memory: %v", cfg.StoreDriver, err)
		st, closeStore = store.NewMemory(res.hub), nil
	}
	res.store, res.closeStore = st, closeStore

	if res.nats, err = deps.connectNATS(cfg); err != nil {
		log.Printf("nats connection failed, lifecycle events disabled: %v", err)
	}
	if res.minio, err = deps.connectMinio(ctx, cfg); err != nil {
		log.Printf("minio connection failed, image uploads disabled: %v", err)
	}

	signals := make(chan os.Signal, 1)
	deps.notify(signals, syscall.SIGINT, syscall.SIGTERM)

	if err := deps.run(ctx, cfg, res, signals, nil); err != nil {
		log.Printf("server exited with error: %v", err)
	}
}

// openStore selects the document store backend named by STORE_DRIVER.
func openStore(ctx context.Context, cfg config.Config, n store.Notifier) (store.Store, func(), error) {
	switch cfg.StoreDriver {
	case "postgres":
		pool, err := db.ConnectPostgres(cfg)
		if err != nil {
			return nil, nil, err
		}
		pg := store.NewPostgres(pool, n)
		if err := pg.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return pg, pool.Close, nil
	case "mongo":
		database, err := db.ConnectMongo(cfg)
		if err != nil {
			return nil, nil, err
		}
		return store.NewMongo(database, n), func() {
			_ = database.Client().Disconnect(context.Background())
		}, nil
	case "memory", "":
		return store.NewMemory(n), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

type ListenFunc func(app *fiber.App, addr string) error

var defaultListen ListenFunc = func(app *fiber.App, addr string) error {
	return app.Listen(addr)
}

var shutdownFn = func(app *fiber.App, ctx context.Context) error {
	return app.ShutdownWithContext(ctx)
}

// Run starts the HTTP server and the location feed, then waits for
// termination signals.
func Run(ctx context.Context, cfg config.Config, res resources, signals <-chan os.Signal, listen ListenFunc) error {
	deps := server.Deps{Store: res.store, Hub: res.hub}
	if res.nats != nil {
		deps.Events = res.nats
	}
	if res.minio != nil {
		deps.Objects = res.minio
	}
	srv := server.NewServer(cfg, deps)

	if err := srv.Auth.SeedAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		log.Printf("admin seed failed: %v", err)
	}

	feedCtx, stopFeed := context.WithCancel(ctx)
	feedDone := make(chan struct{})
	go func() {
		defer close(feedDone)
		srv.Locations.Run(feedCtx)
	}()

	if listen == nil {
		listen = defaultListen
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- listen(srv.App, cfg.ServerPort)
	}()

	var runErr error
	select {
	case <-signals:
	case <-ctx.Done():
	case err := <-errCh:
		runErr = err
	}

	stopFeed()
	<-feedDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := shutdownFn(srv.App, shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	res.release()
	return runErr
}

func (r resources) release() {
	if r.nats != nil {
		_ = r.nats.Drain()
	}
	if r.hub != nil {
		_ = r.hub.Close()
	}
	if r.closeStore != nil {
		r.closeStore()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}
}
