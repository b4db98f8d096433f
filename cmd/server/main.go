package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/eternalApril/firefly/internal/config"
	"github.com/eternalApril/firefly/internal/eviction"
	"github.com/eternalApril/firefly/internal/expiry"
	"github.com/eternalApril/firefly/internal/logger"
	"github.com/eternalApril/firefly/internal/metrics"
	"github.com/eternalApril/firefly/internal/resp"
	"github.com/eternalApril/firefly/internal/server"
	"github.com/eternalApril/firefly/internal/storage"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	defer log.Sync()

	store := storage.NewKeyspace()

	mgr := expiry.NewManager(store, cfg.GC.SampleSize)
	store.SetExpiryIndex(mgr)

	if cfg.Memory.MaxMemory > 0 {
		policy, err := eviction.ParsePolicy(cfg.Memory.Policy)
		if err != nil {
			log.Fatal("invalid eviction policy", zap.Error(err))
		}
		store.SetEvictor(eviction.New(store, policy, cfg.Memory.MaxMemory, cfg.Memory.Samples))
		log.Info("memory limit active",
			zap.Int64("max_memory", cfg.Memory.MaxMemory),
			zap.String("policy", cfg.Memory.Policy))
	}

	engine := server.NewEngine(store, mgr, cfg, log)

	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.Serve(cfg.Metrics.Addr, log); err != nil {
				log.Error("metrics endpoint failed", zap.Error(err))
			}
		}()
	}

	limits := resp.Limits{
		MaxBulkSize:  cfg.Limits.MaxBulkSize,
		MaxArrayLen:  cfg.Limits.MaxArrayLen,
		MaxInlineLen: cfg.Limits.MaxInlineLen,
	}
	srv := server.NewServer(engine, limits, log)
	if err := srv.Start(net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)); err != nil {
		log.Fatal("failed to start server", zap.Error(err))
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("shutdown did not complete cleanly", zap.Error(err))
	}
	log.Info("goodbye")
}
