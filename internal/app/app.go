package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	manager "v2scrape/collector"
	"v2scrape/collector/scraper"
	"v2scrape/collector/storage"
	"v2scrape/internal/service/web"
	"v2scrape/internal/shared/logger"
	"v2scrape/internal/shared/types"
)

const (
	ModeOnce   = "once"
	ModeDaemon = "daemon"
)

var ErrUnknownMode = errors.New("unknown mode")

// App 组装采集器的所有组件并管理其生命周期。
type App struct {
	cfg     *types.Config
	manager *manager.Manager
	hub     *web.Hub
}

// New 根据配置创建 App。配置了 Mongo DSN 或 S3 bucket 时连接对应的 sink，连接失败直接返回错误。
func New(ctx context.Context, cfg *types.Config) (*App, error) {
	fetcher, err := scraper.NewFetcher(scraper.OptionsFrom(cfg.FetchConf))
	if err != nil {
		return nil, fmt.Errorf("failed to create fetcher: %w", err)
	}
	return newApp(ctx, cfg, fetcher)
}

func newApp(ctx context.Context, cfg *types.Config, fetcher scraper.PageFetcher) (*App, error) {
	l := logger.WithComponent("App")
	m := manager.NewManager(cfg, fetcher)

	if cfg.MongoConf.DSN != "" {
		sink, err := storage.NewMongoSink(ctx, cfg.MongoConf)
		if err != nil {
			return nil, err
		}
		m.AddSink(sink)
	}
	if cfg.S3Conf.Bucket != "" {
		// README 与输出目录的公共父目录作为对象键的根
		base := commonDir(cfg.ReadmeFile, cfg.OutputDir)
		sink, err := storage.NewS3Sink(ctx, cfg.S3Conf, base)
		if err != nil {
			m.Close(ctx)
			return nil, err
		}
		m.AddSink(sink)
	}

	l.Info().Str("mode", cfg.Mode).Str("output_dir", cfg.OutputDir).Msg("Collector initialized.")
	return &App{cfg: cfg, manager: m, hub: web.NewHub()}, nil
}

// Run 按配置的模式运行，收到 SIGINT/SIGTERM 时退出。
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.manager.Close(closeCtx)
	}()

	switch a.cfg.Mode {
	case ModeOnce, "":
		_, err := a.manager.Run(ctx)
		return err
	case ModeDaemon:
		return a.runDaemon(ctx)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMode, a.cfg.Mode)
	}
}

func (a *App) runDaemon(ctx context.Context) error {
	l := logger.WithComponent("App")
	g, ctx := errgroup.WithContext(ctx)

	a.manager.OnRunFinished(a.hub.BroadcastRunFinished)

	g.Go(func() error {
		a.hub.Run(ctx)
		return nil
	})
	g.Go(func() error {
		return a.manager.Serve(ctx, time.Duration(a.cfg.IntervalMinutes)*time.Minute)
	})
	g.Go(func() error {
		return web.Serve(ctx, a.cfg.WebConf, web.NewMux(a.cfg.WebConf, a.manager, a.hub))
	})
	if a.cfg.WatchInputs {
		g.Go(func() error {
			err := watchInputs(ctx, []string{a.cfg.URLsFile, a.cfg.KeywordsFile}, func() { a.manager.TriggerRun() })
			if err != nil {
				// 监听失败不影响定时运行
				l.Warn().Err(err).Msg("Input watcher disabled.")
			}
			return nil
		})
	}

	err := g.Wait()
	l.Info().Msg("Daemon stopped.")
	return err
}

// commonDir 返回两个路径最深的公共父目录
func commonDir(a, b string) string {
	da, err1 := filepath.Abs(filepath.Dir(a))
	db, err2 := filepath.Abs(b)
	if err1 != nil || err2 != nil {
		return "."
	}
	for {
		rel, err := filepath.Rel(da, db)
		if err == nil && rel != ".." && !startsWithParent(rel) {
			return da
		}
		parent := filepath.Dir(da)
		if parent == da {
			return da
		}
		da = parent
	}
}

func startsWithParent(rel string) bool {
	return len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator)
}
