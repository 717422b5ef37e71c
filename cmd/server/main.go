package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dualstore/internal/api"
	"dualstore/internal/app/bootstrap"
	"dualstore/internal/platform/config"
	applog "dualstore/internal/platform/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Config load failed: %v\n", err)
		os.Exit(1)
	}

	applog.Init(applog.Config{
		Level:     cfg.LogLevel,
		Format:    cfg.LogFormat,
		Component: "server",
	})
	defer applog.Sync()

	rt, err := bootstrap.Build(context.Background(), cfg)
	if err != nil {
		applog.Fatal("❌ Failed to initialize stores", "error", err)
	}

	serverConfig := api.DefaultServerConfig()
	serverConfig.Host = cfg.Server.Host
	serverConfig.Port = cfg.Server.Port
	serverConfig.ReadTimeout = time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second
	serverConfig.WriteTimeout = time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second
	server := api.NewServer(serverConfig, rt.Coordinator)

	shutdownTimeout := config.Seconds(cfg.Runtime.ShutdownTimeoutSeconds, 15*time.Second)
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		applog.Info("🔄 Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Stop(ctx); err != nil {
			applog.Error("❌ Server shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil {
		rt.Close(context.Background())
		applog.Fatal("❌ Server error", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	rt.Close(ctx)
	applog.Info("👋 Server stopped")
}
