package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	_ "time/tzdata"

	"github.com/spf13/pflag"

	"v2scrape/internal/app"
	"v2scrape/internal/shared/config"
	"v2scrape/internal/shared/logger"
	"v2scrape/internal/shared/types"
)

func main() {
	configDir := pflag.String("configdir", "config", "Path to config directory")
	iniName := pflag.String("config", "collector.ini", "Config file name (relative to --configdir) or path")
	mode := pflag.String("mode", "", "Run mode: once or daemon (overrides the config file)")
	once := pflag.Bool("once", false, "Shorthand for --mode=once")
	pflag.Parse()

	iniPath := *iniName
	if !filepath.IsAbs(iniPath) && filepath.Dir(iniPath) == "." {
		iniPath = filepath.Join(*configDir, iniPath)
	}

	// 1. 加载 .ini 行为配置
	cfg := types.DefaultConfig()
	if err := config.LoadIni(cfg, iniPath); err != nil {
		// Use standard fmt before logger is initialized.
		fmt.Fprintf(os.Stderr, "Fatal: Failed to load config file '%s': %v\n", iniPath, err)
		os.Exit(1)
	}
	switch {
	case *once:
		cfg.Mode = app.ModeOnce
	case *mode != "":
		cfg.Mode = *mode
	}

	// 1.1 初始化日志系统
	if err := logger.Init(cfg.LogConf); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal: Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	os.Exit(run(cfg))
}

func run(cfg *types.Config) int {
	defer logger.Close()

	ctx := context.Background()
	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize collector.")
		return 1
	}
	if err := a.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("Collector exited with error.")
		return 1
	}
	return 0
}
