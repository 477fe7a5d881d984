// cmd/storefront-cron/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	zlog "github.com/rs/zerolog/log"

	"storefront/internal/app"
	"storefront/internal/pkg/bootstrap"
	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/tracing"
)

const serviceName = "storefront-cron"

// 用法: storefront-cron <job> [flags]
// 例如 storefront-cron deliver -max 20，storefront-cron reconcile -since 6h
func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <%s> [flags]\n", serviceName, strings.Join(app.JobNames(), "|"))
		os.Exit(2)
	}
	cfg := bootstrap.Init()
	logger.Init(serviceName, cfg.App.LogLevel)

	tp, err := tracing.InitTracerProvider(serviceName, cfg.Infra.Jaeger.Endpoint)
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to initialize tracer provider")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container, err := app.New(cfg)
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to assemble storefront")
	}

	code := 0
	if err := container.RunJob(ctx, os.Args[1], os.Args[2:], os.Stdout); err != nil {
		code = 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := container.Close(); err != nil {
		zlog.Error().Err(err).Msg("error releasing resources")
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Err(err).Msg("error shutting down tracer provider")
	}
	if code != 0 {
		cancel()
		stop()
		os.Exit(code)
	}
}
