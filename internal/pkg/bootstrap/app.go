// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	zlog "github.com/rs/zerolog/log"

	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/nacos"
	"storefront/internal/pkg/tracing"
)

type AppCtx struct {
	Mux    *http.ServeMux
	Config *Config
	Nacos  *nacos.Client // 未配置 Nacos 时为 nil
}

// AppInfo 包含了启动一个服务所需的特定信息
type AppInfo struct {
	ServiceName      string
	Port             int
	RegisterHandlers func(appCtx AppCtx)       // 每个服务注册自己的 HTTP 路由
	OnShutdown       func(ctx context.Context) // 关停时释放服务自己的资源（Kafka reader、DB 等）
}

// StartService 封装通用的启动和优雅关停逻辑，阻塞直到收到退出信号
func StartService(info AppInfo) {
	cfg := GetCurrentConfig()
	logger.Init(info.ServiceName, cfg.App.LogLevel)

	// 1. Tracer
	tp, err := tracing.InitTracerProvider(info.ServiceName, cfg.Infra.Jaeger.Endpoint)
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to initialize tracer provider")
	}

	// 2. 可选的 Nacos 注册
	var namingClient *nacos.Client
	var ip string
	if cfg.Infra.Nacos.ServerAddrs != "" {
		namingClient, err = nacos.NewNacosClient(cfg.Infra.Nacos.ServerAddrs, cfg.Infra.Nacos.Namespace, cfg.Infra.Nacos.Group)
		if err != nil {
			zlog.Fatal().Err(err).Msg("failed to initialize nacos client")
		}
		if ip, err = outboundIP(); err != nil {
			zlog.Fatal().Err(err).Msg("failed to get outbound IP address")
		}
		if err := namingClient.RegisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
			zlog.Fatal().Err(err).Msg("failed to register service with nacos")
		}
	}

	// 3. HTTP Server
	mux := http.NewServeMux()
	if info.RegisterHandlers != nil {
		info.RegisterHandlers(AppCtx{Mux: mux, Config: cfg, Nacos: namingClient})
	}
	server := &http.Server{
		Addr:              ":" + strconv.Itoa(info.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		zlog.Info().Int("port", info.Port).Msgf("🚀 %s listening", info.ServiceName)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal().Err(err).Str("addr", server.Addr).Msg("could not listen")
		}
	}()

	// 4. 优雅关停
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msgf("shutting down %s...", info.ServiceName)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// 清理顺序：先摘流量，再停 HTTP，然后释放服务资源，最后刷出 trace
	if namingClient != nil {
		if err := namingClient.DeregisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
			zlog.Error().Err(err).Msg("error deregistering from nacos")
		}
		namingClient.Close()
	}
	if err := server.Shutdown(ctx); err != nil {
		zlog.Error().Err(err).Msg("error shutting down http server")
	}
	if info.OnShutdown != nil {
		info.OnShutdown(ctx)
	}
	if err := tp.Shutdown(ctx); err != nil {
		zlog.Error().Err(err).Msg("error shutting down tracer provider")
	}
	zlog.Info().Msgf("✅ %s gracefully shut down", info.ServiceName)
}

// outboundIP 取本机对外通信使用的地址，用于服务注册
func outboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}
