// Package main match-server 入口
//
// 启动顺序：配置 → 日志 → Run 存储 → 封禁名单 → 审计记录 → PGN 归档
// → 写缓冲 → 调度器 → HTTP。写缓冲刷盘、回收扫描和 HTTP 服务在同一个 errgroup 中运行，
// 收到 SIGINT/SIGTERM 后依次停止 HTTP、后台循环，最后把写缓冲全部落盘。
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"match-admin/internal/apiserver/scheduler"
	"match-admin/internal/apiserver/server"
	"match-admin/internal/apiserver/writebuffer"
	"match-admin/internal/config"
	"match-admin/internal/shared/actionlog"
	"match-admin/internal/shared/archive"
	"match-admin/internal/shared/registry"
	"match-admin/internal/shared/storage"
	"match-admin/internal/shared/storage/dbutil"
	"match-admin/internal/shared/storage/memstore"
	"match-admin/internal/shared/storage/mongostore"
	"match-admin/internal/shared/storage/sqlstore"
	"match-admin/pkg/logging"
)

func main() {
	configDir := flag.String("config", "", "配置文件目录，优先于 CONFIG_DIR")
	flag.Parse()
	if *configDir != "" {
		config.SetConfigDir(*configDir)
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "match-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.New(logging.Config{
		Level:     cfg.Log.Level,
		Format:    cfg.Log.Format,
		Component: "match-server",
	})
	logger.Info("[server.start]", "env", cfg.Env, "config", cfg.String(), "config_file", cfg.ConfigFilePath)

	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()
	logger.Info("[server.store.ready]", "driver", cfg.Storage.Driver)

	blocklist, closeRegistry, err := openRegistry(cfg)
	if err != nil {
		return fmt.Errorf("open registry: %w", err)
	}
	defer closeRegistry()
	logger.Info("[server.registry.ready]", "driver", cfg.Registry.Driver)

	sink, err := openArchive(cfg)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	logger.Info("[server.archive.ready]", "driver", cfg.Archive.Driver)

	recorder := actionlog.Multi{
		actionlog.NewStoreRecorder(store, logger.Named("actionlog")),
		actionlog.NewLogRecorder(logger.Named("actionlog")),
	}

	buffer := writebuffer.New(store, bufferConfig(cfg.Buffer), logger.Named("writebuffer"),
		writebuffer.NewMetrics(prometheus.DefaultRegisterer, "match"))

	sched, err := scheduler.NewScheduler(buffer, blocklist, recorder, sink, schedulerConfig(cfg.Scheduler))
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	sched.SetLogger(logger.Named("scheduler"))
	sched.SetMetrics(scheduler.NewMetrics(prometheus.DefaultRegisterer, "match"))

	h := server.NewHandler(sched)
	h.SetLogger(logger.Named("server"))
	h.SetMetrics(server.NewMetrics(prometheus.DefaultRegisterer, "match"), prometheus.DefaultGatherer)
	h.SetBlocklist(blocklist)
	h.SetActionStore(store)
	if lister, ok := sink.(archive.Lister); ok {
		h.SetPGNLister(lister)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      h.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// HTTP 先停，后台循环随后退出，写缓冲最后落盘
	loopCtx, stopLoops := context.WithCancel(context.Background())
	defer stopLoops()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("[server.listen]", "addr", srv.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return buffer.Run(loopCtx)
	})
	g.Go(func() error {
		return sched.RunScavenger(loopCtx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("[server.shutdown]", "reason", context.Cause(gctx))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("[server.shutdown.http_failed]")
		}
		stopLoops()
		return nil
	})

	runErr := g.Wait()

	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := buffer.Close(drainCtx); err != nil {
		logger.WithError(err).Error("[server.drain.failed]", "dirty", buffer.Dirty())
		return errors.Join(runErr, err)
	}
	logger.Info("[server.stopped]")
	return runErr
}

// openStore 按 storage.driver 打开 Run 存储
func openStore(cfg *config.Config) (storage.PersistentStore, error) {
	switch cfg.Storage.Driver {
	case "memory":
		return memstore.NewStore(), nil
	case "postgres":
		return sqlstore.Open(dbutil.DriverPostgres, cfg.StorageURL)
	case "sqlite":
		return sqlstore.Open(dbutil.DriverSQLite, cfg.StorageURL)
	default:
		return mongostore.NewStore(cfg.StorageURL, cfg.Storage.Mongo.Database)
	}
}

// openRegistry 按 registry.driver 创建封禁名单，返回的 close 函数总是非空
func openRegistry(cfg *config.Config) (registry.Blocklist, func(), error) {
	rc := cfg.Registry
	switch rc.Driver {
	case "redis":
		r, err := registry.NewRedis(rc.Redis.Addr(), rc.Redis.Password, rc.Redis.DB)
		if err != nil {
			return nil, nil, err
		}
		return r, func() { r.Close() }, nil
	case "etcd":
		e, err := registry.NewEtcd(registry.EtcdConfig{
			Endpoints:   rc.Etcd.Endpoints,
			DialTimeout: rc.Etcd.DialTimeout,
			Prefix:      rc.Etcd.Prefix,
		})
		if err != nil {
			return nil, nil, err
		}
		return e, func() { e.Close() }, nil
	default:
		return registry.NewStatic(rc.Blocked...), func() {}, nil
	}
}

// openArchive 按 archive.driver 创建 PGN 归档
func openArchive(cfg *config.Config) (archive.Sink, error) {
	if cfg.Archive.Driver != "minio" {
		return archive.Nop{}, nil
	}
	m, err := archive.NewMinIO(cfg.Archive.MinIO)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func bufferConfig(c config.BufferConfig) *writebuffer.Config {
	return &writebuffer.Config{
		FlushInterval:       c.FlushInterval,
		MaxPendingMutations: c.MaxPendingMutations,
		RetryBase:           c.RetryBase,
		RetryMax:            c.RetryMax,
		MaxRetries:          c.MaxRetries,
	}
}

func schedulerConfig(c config.SchedulerConfig) *scheduler.Config {
	sc := &scheduler.Config{
		RequireApproval:   c.RequireApproval,
		GamesPerCore:      c.GamesPerCore,
		MinChunk:          c.MinChunk,
		MaxChunk:          c.MaxChunk,
		MaxTasksPerWorker: c.MaxTasksPerWorker,
		StaleTimeout:      c.StaleTimeout,
		ScavengeInterval:  c.ScavengeInterval,
	}
	sc.Strategy.Chain = c.StrategyChain
	return sc
}
