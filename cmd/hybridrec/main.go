// Command hybridrec 是混合推荐系统的入口。
//
//	hybridrec train   离线批任务：评估、选权重并写入推荐结果
//	hybridrec serve   在线推荐服务：GET /api/recommend?k=10
//
// 配置按 默认值 → YAML（-config 或 HYBRIDREC_CONFIG）→ 环境变量 HYBRIDREC_* 叠加，
// 启动时会先加载当前目录的 .env。
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

	"github.com/joho/godotenv"

	"github.com/rushteam/hybridrec/config"
	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/index"
	"github.com/rushteam/hybridrec/offline"
	"github.com/rushteam/hybridrec/pkg/logging"
	"github.com/rushteam/hybridrec/service"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s <train|serve> [-config path]\n", os.Args[0])
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	cmd := os.Args[1]

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	_ = fs.Parse(os.Args[2:])

	_ = godotenv.Load()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logging.Init(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "train":
		err = train(ctx, cfg)
	case "serve":
		err = serve(ctx, cfg)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		logging.Error().Err(err).Str("command", cmd).Msg("command failed")
		os.Exit(1)
	}
}

func train(ctx context.Context, cfg *config.AppConfig) error {
	ds, err := loadDataset(ctx, cfg)
	if err != nil {
		return err
	}
	out, err := openOutput(ctx, cfg)
	if err != nil {
		return err
	}
	defer out.Close()
	cache, err := openWeightsCache(cfg)
	if err != nil {
		return err
	}
	defer cache.Close()

	r := &offline.Runner{
		Config:   cfg,
		Provider: newProvider(cfg),
		Output:   out.Recommendations,
		Cache:    cache.WeightsCache,
		Hot:      out.KV,
	}
	report, err := r.Run(ctx, ds)
	if err != nil {
		return err
	}
	logging.Info().
		Str("run_id", report.RunID).
		Int("window", report.Window).
		Float64("w_embed", report.Weights.Embed).
		Float64("w_collab", report.Weights.Collab).
		Float64("w_pop", report.Weights.Pop).
		Int("rows", report.Rows).
		Msg("training finished")
	return nil
}

func serve(ctx context.Context, cfg *config.AppConfig) error {
	ds, err := loadDataset(ctx, cfg)
	if err != nil {
		return err
	}
	holder := index.NewHolder(&index.Snapshot{Catalog: ds.Catalog})

	out, err := openOutput(ctx, cfg)
	if err != nil {
		return err
	}
	defer out.Close()

	rec := service.NewRecommender(out.Recommendations, func() *core.Catalog {
		if snap := holder.Load(); snap != nil {
			return snap.Catalog
		}
		return nil
	})
	if cfg.Server.JWTSecret == "" {
		logging.Warn().Msg("server.jwt_secret not set, every request is served as anonymous")
	}
	h := service.NewHandler(rec, service.NewTokenParser(cfg.Server.JWTSecret), service.HandlerConfig{
		DefaultK:  cfg.Server.DefaultK,
		MaxK:      cfg.Server.MaxK,
		RateLimit: cfg.Server.RateLimit,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      h.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", srv.Addr).Int("products", ds.Catalog.Len()).Msg("serving recommendations")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logging.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
