package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"marketsim/internal/adapter/cache"
	"marketsim/internal/adapter/in_memory"
	"marketsim/internal/adapter/pg"
	httpapi "marketsim/internal/api/http"
	"marketsim/internal/config"
	"marketsim/internal/feed"
	"marketsim/internal/logger"
	"marketsim/internal/port"
	"marketsim/internal/session"
	"marketsim/internal/tape"
)

func main() {
	configPath := flag.String("config", "config/simulator.yaml", "path to config file")
	serve := flag.Bool("serve", false, "expose the control API instead of running a full replay")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	zlog, err := logger.New(cfg.LogLevel, "simulator")
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer zlog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	events, err := feed.Load(cfg.Feed.Path)
	if err != nil {
		zlog.Fatal("load feed", zap.Error(err))
	}
	zlog.Info("feed loaded", zap.Int("events", len(events)))

	t, err := tape.New(events, cfg.Feed.Latency, cfg.Feed.EndTime)
	if err != nil {
		zlog.Fatal("build tape", zap.Error(err))
	}

	var repo port.Repository
	if cfg.Postgres.DSN != "" {
		pgRepo, err := pg.NewPgRepo(ctx, cfg.Postgres.DSN)
		if err != nil {
			zlog.Fatal("connect postgres", zap.Error(err))
		}
		defer pgRepo.Close(ctx)
		repo = pgRepo
	} else {
		repo = in_memory.NewMemoryRepo()
	}

	var depthCache port.DepthCache
	if cfg.Redis.Addr != "" {
		depthCache = cache.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TTL)
	} else {
		depthCache = in_memory.NewCache()
	}

	sess := session.New(zlog, t, repo, depthCache, session.Config{
		StartTime:        cfg.Session.StartTime,
		OrderSize:        cfg.Session.OrderSize,
		PositionLimit:    cfg.Session.PositionLimit,
		LiquidationRatio: cfg.Session.LiquidationRatio,
		Tick:             cfg.Session.Tick,
		DepthLevels:      cfg.Session.DepthLevels,
	})

	if *serve {
		srv := httpapi.NewHTTPServer(sess, zlog)
		if err := sess.Reset(ctx); err != nil {
			zlog.Fatal("reset session", zap.Error(err))
		}
		zlog.Info("serving control API", zap.String("addr", cfg.HTTP.Addr))
		if err := srv.Run(cfg.HTTP.Addr); err != nil {
			zlog.Fatal("http server", zap.Error(err))
		}
		return
	}

	if err := sess.Run(ctx); err != nil {
		zlog.Fatal("replay", zap.Error(err))
	}
}
