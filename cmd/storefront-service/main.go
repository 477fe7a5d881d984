// cmd/storefront-service/main.go
package main

import (
	"context"

	zlog "github.com/rs/zerolog/log"

	"storefront/internal/app"
	"storefront/internal/pkg/bootstrap"
)

// main 是组装根：加载配置、组装依赖，然后交给 bootstrap 启动 HTTP 服务
func main() {
	cfg := bootstrap.Init()

	var container *app.Container
	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: cfg.App.Name,
		Port:        cfg.App.Port,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			var err error
			container, err = app.New(appCtx.Config)
			if err != nil {
				zlog.Fatal().Err(err).Msg("failed to assemble storefront service")
			}
			container.RegisterRoutes(appCtx.Mux)
			container.StartConsumers(context.Background())
		},
		OnShutdown: func(ctx context.Context) {
			if container == nil {
				return
			}
			if err := container.Close(); err != nil {
				zlog.Error().Err(err).Msg("error releasing storefront resources")
			}
		},
	})
}
