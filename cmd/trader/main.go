package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/logs"

	"main/internal/app"
	"main/internal/ops"
	"main/internal/store"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to optional YAML config file")
	showVersion := flag.Bool("version", false, "show version")
	flag.Parse()

	if *showVersion {
		fmt.Printf("trader %s (built: %s)\n", version, buildTime)
		os.Exit(0)
	}

	cfg, err := ops.Load(*configPath)
	if err != nil {
		logs.Errorf("config load failed: %+v", err)
		os.Exit(1)
	}
	if cfg.PyroscopeAddr != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "trader",
			ServerAddress:   cfg.PyroscopeAddr,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			logs.Errorf("pyroscope start failed: %+v", err)
			os.Exit(1)
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := store.OpenPostgres(store.PGConfig{
		Host:     cfg.DB.Host,
		Port:     cfg.DB.Port,
		User:     cfg.DB.User,
		Password: cfg.DB.Password,
		Database: cfg.DB.Name,
		Debug:    cfg.LogLevel == "debug",
	})
	if err != nil {
		logs.Errorf("database connect failed: %+v", err)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(db); err != nil {
			logs.Errorf("database close failed: %+v", err)
		}
	}()

	a, err := app.New(ctx, cfg, db)
	if err != nil {
		logs.Errorf("app construction failed: %+v", err)
		os.Exit(1)
	}

	logs.Infof("trader starting: symbols=%v synthetic=%t api=%s:%d",
		cfg.Symbols, cfg.UseSyntheticFeed, cfg.API.Host, cfg.API.Port)
	if err := a.Run(ctx); err != nil {
		logs.Errorf("trader stopped with error: %+v", err)
		os.Exit(1)
	}
	logs.Info("trader stopped")
}
